package mail

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/db"
	"github.com/vindennt/outfred-gateway/internal/metrics"
)

// ErrNotConfigured is returned when there is no usable SMTP settings row.
var ErrNotConfigured = db.ErrSMTPNotConfigured

// Relay loads the active SMTP settings and hands composed messages to the
// transport.
type Relay struct {
	settings  db.SMTPSettingsRepository
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
}

func NewRelay(settings db.SMTPSettingsRepository, transport Transport, logger *zap.Logger) *Relay {
	return &Relay{
		settings:  settings,
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

// Send delivers one HTML email and returns its Message-ID. token is the
// caller's access token used for the settings lookup; empty means a
// server-initiated send.
func (r *Relay) Send(ctx context.Context, token, to, subject, htmlBody string) (string, error) {
	log := r.logger.With(zap.String("to", to), zap.String("subject", subject))
	log.Info("email send request received")

	rcpts, err := ParseRecipients(to)
	if err != nil {
		metrics.EmailsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	settings, err := r.settings.ActiveSMTPSettings(ctx, token)
	if err != nil || settings == nil {
		if err != nil && !errors.Is(err, db.ErrSMTPNotConfigured) {
			log.Warn("smtp settings lookup failed", zap.Error(err))
		}
		log.Info("smtp not configured or not enabled")
		metrics.EmailsTotal.WithLabelValues("not_configured").Inc()
		return "", ErrNotConfigured
	}
	log.Info("smtp settings found",
		zap.String("host", settings.Host),
		zap.Int("port", settings.Port),
		zap.String("from", settings.FromEmail),
	)

	msg := Compose(settings, rcpts, subject, htmlBody, r.now())

	start := time.Now()
	err = r.transport.Send(ctx, settings, msg)
	metrics.EmailSendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("email send error", zap.Error(err))
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		return "", err
	}

	log.Info("email sent", zap.String("message_id", msg.MessageID))
	metrics.EmailsTotal.WithLabelValues("sent").Inc()
	return msg.MessageID, nil
}

// SendWelcome sends the localised welcome email after registration.
func (r *Relay) SendWelcome(ctx context.Context, to, name, lang string) error {
	subject, body, err := WelcomeEmail(name, lang)
	if err != nil {
		return err
	}
	_, err = r.Send(ctx, "", to, subject, body)
	return err
}
