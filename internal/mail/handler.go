package mail

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vindennt/outfred-gateway/internal/auth"
	"github.com/vindennt/outfred-gateway/internal/metrics"
	"github.com/vindennt/outfred-gateway/internal/models"
)

const (
	msgMissingFields   = "Missing required fields: to, subject, htmlBody"
	msgTooManyRequests = "Too many requests"
	msgSendFailed      = "Failed to send email"
	msgInvalidTo       = "Invalid recipient address"
	maxBodyBytes       = 1 << 20
)

// Handler serves POST /api/email/send. It expects auth.Authenticator's
// middleware in front of it.
type Handler struct {
	relay    *Relay
	limits   *userLimits
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(relay *Relay, perMinute, burst int, logger *zap.Logger) *Handler {
	return &Handler{
		relay:    relay,
		limits:   newUserLimits(perMinute, burst),
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("email handler panic", zap.Any("panic", rec))
			writeJSON(w, http.StatusInternalServerError, models.EmailResponse{Error: fmt.Sprint(rec)})
		}
	}()

	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.EmailRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, models.EmailResponse{Error: err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		metrics.EmailsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msgMissingFields})
		return
	}

	if !h.limits.allow(id.ID) {
		metrics.EmailsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusTooManyRequests, models.EmailResponse{Error: msgTooManyRequests})
		return
	}

	messageID, err := h.relay.Send(r.Context(), auth.AccessTokenFrom(r.Context()), req.To, req.Subject, req.HTMLBody)
	switch {
	case errors.Is(err, ErrInvalidRecipient):
		writeJSON(w, http.StatusBadRequest, models.EmailResponse{Error: msgInvalidTo})
	case errors.Is(err, ErrNotConfigured):
		writeJSON(w, http.StatusBadRequest, models.EmailResponse{Error: ErrNotConfigured.Error()})
	case err != nil:
		msg := err.Error()
		if msg == "" {
			msg = msgSendFailed
		}
		writeJSON(w, http.StatusInternalServerError, models.EmailResponse{Error: msg})
	default:
		writeJSON(w, http.StatusOK, models.EmailResponse{Success: true, MessageID: messageID})
	}
}

// userLimits keeps one token bucket per user.
type userLimits struct {
	every rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newUserLimits(perMinute, burst int) *userLimits {
	every := rate.Inf
	if perMinute > 0 {
		every = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	return &userLimits{every: every, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (u *userLimits) allow(userID string) bool {
	u.mu.Lock()
	l, ok := u.limiters[userID]
	if !ok {
		l = rate.NewLimiter(u.every, u.burst)
		u.limiters[userID] = l
	}
	u.mu.Unlock()
	return l.Allow()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
