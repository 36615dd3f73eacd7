package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/models"
)

type Handlers struct {
	registry     *Registry
	validate     *validator.Validate
	secureCookie bool
	logger       *zap.Logger
}

func NewHandlers(registry *Registry, secureCookie bool, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry:     registry,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if !h.decode(w, r, &req) {
		return
	}

	c := h.registry.Get(r.Context(), h.EnsureScope(w, r))
	if err := c.Login(r.Context(), req.Email, req.Password); err != nil {
		writeJSON(w, StatusCode(err), models.ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, snapshot(c))
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	c := h.registry.Get(r.Context(), h.EnsureScope(w, r))
	if err := c.Register(r.Context(), req.Email, req.Password, req.Name); err != nil {
		h.logger.Warn("register failed", zap.String("email", req.Email), zap.Error(err))
		writeJSON(w, StatusCode(err), models.ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, snapshot(c))
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if c, ok := h.registry.Restore(r.Context(), cookie.Value); ok {
			// Errors are logged by the container; the caller is signed out either way
			_ = c.Logout(r.Context())
			h.registry.Remove(cookie.Value)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, models.SessionResponse{})
}

func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, models.SessionResponse{})
		return
	}

	c, ok := h.registry.Restore(r.Context(), cookie.Value)
	if !ok {
		writeJSON(w, http.StatusOK, models.SessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, snapshot(c))
}

func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	c := h.registry.Get(r.Context(), h.EnsureScope(w, r))
	if err := c.Verify(r.Context(), req.Email, req.Code); err != nil {
		writeJSON(w, StatusCode(err), models.ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8192)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid " + verrs[0].Field()})
			return false
		}
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

// EnsureScope returns the browser session id, issuing a cookie for a new one.
func (h *Handlers) EnsureScope(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

func snapshot(c *Container) models.SessionResponse {
	res := models.SessionResponse{
		Loading: c.Loading(),
		IsAdmin: c.IsAdmin(),
	}
	if id, ok := c.Identity(); ok {
		res.Authenticated = true
		res.User = &id
	}
	return res
}
