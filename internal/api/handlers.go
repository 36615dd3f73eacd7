package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/auth"
	"github.com/vindennt/outfred-gateway/internal/models"
	"github.com/vindennt/outfred-gateway/internal/nav"
	"github.com/vindennt/outfred-gateway/internal/notify"
)

type handlers struct {
	scopes        *auth.Handlers
	header        *nav.Builder
	languages     *nav.Languages
	settings      *nav.SiteSettings
	notifications *notify.Service
	logger        *zap.Logger
}

func (h *handlers) Header(w http.ResponseWriter, r *http.Request) {
	req := nav.Request{
		Scope:          auth.ScopeFrom(r.Context()),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		CurrentPage:    r.URL.Query().Get("page"),
	}
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		req.User = &id
	}

	writeJSON(w, http.StatusOK, h.header.Header(r.Context(), req))
}

func (h *handlers) ToggleLanguage(w http.ResponseWriter, r *http.Request) {
	scope := h.scopes.EnsureScope(w, r)
	lang, err := h.languages.Toggle(r.Context(), scope, r.Header.Get("Accept-Language"))
	if err != nil {
		h.logger.Error("failed to toggle language", zap.String("scope", scope), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": lang})
}

func (h *handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	list, err := h.notifications.List(r.Context(), id.ID)
	if err != nil {
		h.logger.Error("error loading notifications", zap.String("user_id", id.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"unread":        unread,
		"badge":         nav.Badge(unread),
	})
}

func (h *handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	err := h.notifications.MarkRead(r.Context(), id.ID, chi.URLParam(r, "id"))
	if errors.Is(err, notify.ErrNotificationNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	if err := h.notifications.MarkAllRead(r.Context(), id.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) UpdateSiteSettings(w http.ResponseWriter, r *http.Request) {
	var req models.SiteSettings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8192)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if err := h.settings.Update(r.Context(), req); err != nil {
		h.logger.Error("failed to save site settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
