// Package db loads the SMTP relay settings from the smtp_settings table,
// either through the project's REST endpoint or a direct Postgres pool.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vindennt/outfred-gateway/internal/models"
)

var ErrSMTPNotConfigured = errors.New("SMTP is not configured or enabled")

// SMTPSettingsRepository returns the first enabled smtp_settings row.
// token is the caller's access token; empty means a server-initiated lookup.
type SMTPSettingsRepository interface {
	ActiveSMTPSettings(ctx context.Context, token string) (*models.SMTPSettings, error)
}

// RestSettingsRepository reads through PostgREST.
type RestSettingsRepository struct {
	client *Client
}

func NewRestSettingsRepository(client *Client) *RestSettingsRepository {
	return &RestSettingsRepository{client: client}
}

func (r *RestSettingsRepository) ActiveSMTPSettings(ctx context.Context, token string) (*models.SMTPSettings, error) {
	if !r.client.Configured() {
		return nil, ErrSMTPNotConfigured
	}

	client := r.client.GetSystemClient()
	if token != "" {
		client = r.client.GetUserClient(token)
	}

	resp, _, err := client.From("smtp_settings").
		Select("*", "", false).
		Eq("is_enabled", "true").
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("query smtp_settings: %w", err)
	}

	var rows []models.SMTPSettings
	if err := json.Unmarshal(resp, &rows); err != nil {
		return nil, fmt.Errorf("decode smtp_settings: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrSMTPNotConfigured
	}
	return &rows[0], nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgSettingsRepository reads straight from Postgres when DATABASE_URL is set.
// It bypasses row level security; the relay only calls it after the caller
// has been authenticated.
type PgSettingsRepository struct {
	pool rowQuerier
}

func NewPgSettingsRepository(pool rowQuerier) *PgSettingsRepository {
	return &PgSettingsRepository{pool: pool}
}

const activeSMTPQuery = `SELECT id::text, host, port, encryption, username, password, from_name, from_email, is_enabled FROM smtp_settings WHERE is_enabled = true LIMIT 1`

func (r *PgSettingsRepository) ActiveSMTPSettings(ctx context.Context, _ string) (*models.SMTPSettings, error) {
	var s models.SMTPSettings
	err := r.pool.QueryRow(ctx, activeSMTPQuery).Scan(
		&s.ID, &s.Host, &s.Port, &s.Encryption, &s.Username, &s.Password, &s.FromName, &s.FromEmail, &s.IsEnabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSMTPNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("query smtp_settings: %w", err)
	}
	return &s, nil
}

// OpenPool connects to Postgres and checks the connection.
func OpenPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
