// Package verification issues the six-digit email verification codes handed
// out at registration.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/storage"
)

// TTL is how long an issued code stays valid.
const TTL = 10 * time.Minute

// Record is stored as JSON under verification_code_<email>. Times are unix
// milliseconds.
type Record struct {
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
	Expires   int64  `json:"expires"`
	UserID    string `json:"userId"`
}

type Codes struct {
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(store storage.Store, logger *zap.Logger) *Codes {
	return &Codes{store: store, logger: logger, now: time.Now}
}

func Key(email string) string {
	return storage.KeyVerificationCode + email
}

// Issue generates a fresh code for email, replacing any earlier one.
func (c *Codes) Issue(ctx context.Context, email, userID string) (string, error) {
	code, err := generate()
	if err != nil {
		return "", err
	}

	now := c.now()
	rec := Record{
		Code:      code,
		Timestamp: now.UnixMilli(),
		Expires:   now.Add(TTL).UnixMilli(),
		UserID:    userID,
	}
	if err := storage.SetJSON(ctx, c.store, Key(email), rec, TTL); err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}

	c.logger.Debug("verification code issued", zap.String("email", email), zap.String("user_id", userID))
	return code, nil
}

// Verify reports whether code matches the one issued for email. A matching
// code is consumed.
func (c *Codes) Verify(ctx context.Context, email, code string) (bool, error) {
	var rec Record
	err := storage.GetJSON(ctx, c.store, Key(email), &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if c.now().UnixMilli() >= rec.Expires {
		return false, c.store.Delete(ctx, Key(email))
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return false, nil
	}

	if err := c.store.Delete(ctx, Key(email)); err != nil {
		return false, err
	}
	return true, nil
}

var codeRange = big.NewInt(900000)

func generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
