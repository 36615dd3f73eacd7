package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/models"
)

// Transport delivers a composed message using the given server settings.
type Transport interface {
	Send(ctx context.Context, settings *models.SMTPSettings, msg *Message) error
}

// SMTPTransport talks SMTP directly. Encryption "ssl" means implicit TLS,
// "tls" and "starttls" require a STARTTLS upgrade, anything else is plain
// text.
type SMTPTransport struct {
	timeout   time.Duration
	tlsConfig *tls.Config
	logger    *zap.Logger
}

type TransportOption func(*SMTPTransport)

func WithTimeout(d time.Duration) TransportOption {
	return func(t *SMTPTransport) { t.timeout = d }
}

// WithTLSConfig overrides the TLS settings; ServerName is always set to the
// configured host.
func WithTLSConfig(cfg *tls.Config) TransportOption {
	return func(t *SMTPTransport) { t.tlsConfig = cfg }
}

func NewSMTPTransport(logger *zap.Logger, opts ...TransportOption) *SMTPTransport {
	t := &SMTPTransport{
		timeout:   30 * time.Second,
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *SMTPTransport) Send(ctx context.Context, settings *models.SMTPSettings, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("render message: %w", err)
	}

	tlsConfig := t.tlsConfig.Clone()
	tlsConfig.ServerName = settings.Host
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))

	c, stop, err := t.dial(ctx, addr, settings.Encryption, tlsConfig)
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	c.CommandTimeout = t.timeout
	c.SubmissionTimeout = t.timeout

	if settings.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", settings.Username, settings.Password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.SendMail(settings.FromEmail, msg.Recipients(), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	if err := c.Quit(); err != nil {
		t.logger.Debug("smtp quit failed", zap.Error(err))
	}
	return nil
}

// dial opens the connection under ctx and the transport timeout. Cancelling
// ctx closes the connection, aborting whatever command is in flight.
func (t *SMTPTransport) dial(ctx context.Context, addr, encryption string, tlsConfig *tls.Config) (*smtp.Client, func() bool, error) {
	dialer := &net.Dialer{Timeout: t.timeout}

	var (
		conn net.Conn
		err  error
	)
	if encryption == "ssl" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	switch encryption {
	case "tls", "starttls":
		c, err := smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			stop()
			conn.Close()
			return nil, nil, fmt.Errorf("starttls with %s: %w", addr, err)
		}
		return c, stop, nil
	default:
		return smtp.NewClient(conn), stop, nil
	}
}
