package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/retailops/notifier/internal/app/publisher"
	"github.com/retailops/notifier/internal/app/session"
	platformauth "github.com/retailops/notifier/internal/platform/auth"
	"github.com/retailops/notifier/internal/platform/logging"
)

const defaultHeartbeat = 25 * time.Second

type Handler struct {
	Sessions       *session.Manager
	Tokens         platformauth.Manager
	Publisher      *publisher.Service
	AdminTokenHash string
	AllowedOrigins []string
	Limiter        *RateLimiter
	Log            *logrus.Entry

	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Frontend is mounted at / when set.
	Frontend http.Handler

	Heartbeat time.Duration
}

func (h *Handler) Router() http.Handler {
	if h.Log == nil {
		h.Log = logging.Discard()
	}
	if h.Heartbeat <= 0 {
		h.Heartbeat = defaultHeartbeat
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Admin-Token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if h.Limiter != nil {
			api.Use(h.Limiter.Limit)
		}
		api.Group(func(authR chi.Router) {
			authR.Use(h.authMiddleware)
			authR.Post("/sessions", h.handleCreateSession)
			authR.Route("/sessions/{sessionID}", func(sr chi.Router) {
				sr.Use(h.sessionMiddleware)
				sr.Get("/", h.handleGetSession)
				sr.Delete("/", h.handleDeleteSession)
				sr.Post("/seen", h.handleMarkSeen)
				sr.Post("/toast/dismiss", h.handleDismissToast)
				sr.Post("/focus", h.handleFocus)
				sr.Post("/visibility", h.handleVisibility)
				sr.Get("/events", h.handleEvents)
				sr.Get("/views/refresh", h.handleViewRefresh)
			})
		})
		api.Group(func(adminR chi.Router) {
			adminR.Use(h.adminMiddleware)
			adminR.Post("/admin/refresh-badges", h.handleRefreshBadges)
			adminR.Post("/admin/events", h.handlePublishEvent)
		})
	})

	if h.Frontend != nil {
		r.Handle("/*", h.Frontend)
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1500*time.Millisecond)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	h.handleHealth(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
