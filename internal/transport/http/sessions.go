package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/retailops/notifier/internal/app/publisher"
	"github.com/retailops/notifier/internal/app/session"
)

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims.Role == "" {
		h.writeError(w, http.StatusForbidden, "token carries no role")
		return
	}
	s, err := h.Sessions.Create(r.Context(), session.Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
	})
	if err != nil {
		h.Log.WithError(err).Error("create session")
		h.writeError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	h.writeJSON(w, http.StatusCreated, s.State())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, sessionFromContext(r.Context()).State())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if err := h.Sessions.Close(s.ID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if err := s.MarkSeen(r.Context()); err != nil {
		h.Log.WithError(err).WithField("session_id", s.ID).Warn("mark seen")
		h.writeError(w, http.StatusInternalServerError, "could not persist watermark")
		return
	}
	h.writeJSON(w, http.StatusOK, s.State().Tracker)
}

func (h *Handler) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	dismissed := sessionFromContext(r.Context()).DismissToast()
	h.writeJSON(w, http.StatusOK, map[string]bool{"dismissed": dismissed})
}

func (h *Handler) handleFocus(w http.ResponseWriter, r *http.Request) {
	sessionFromContext(r.Context()).Focus()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil || req.Visible == nil {
		h.writeError(w, http.StatusBadRequest, "body must be {\"visible\": bool}")
		return
	}
	sessionFromContext(r.Context()).SetVisible(*req.Visible)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefreshBadges(w http.ResponseWriter, r *http.Request) {
	if err := h.Publisher.RefreshBadges(r.Context()); err != nil {
		h.Log.WithError(err).Error("publish badge refresh")
		h.writeError(w, http.StatusBadGateway, "publish failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	event, err := h.Publisher.HandlePayload(r.Context(), body)
	switch {
	case errors.Is(err, publisher.ErrInvalidCommandPayload), errors.Is(err, publisher.ErrUnsupportedCommandAction):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.Log.WithError(err).Error("publish event")
		h.writeError(w, http.StatusBadGateway, "publish failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, event)
}
