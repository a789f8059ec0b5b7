package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/retailops/notifier/internal/app/refresh"
	"github.com/retailops/notifier/internal/app/session"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/render"
)

const (
	eventPatchElements = "datastar-patch-elements"
	eventState         = "state"
	eventRefresh       = "refresh"
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSE(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event string, lines ...string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range lines {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) sendJSON(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.send(event, string(data))
}

// sendPatch emits one element patch. Multi-line markup becomes one data line
// per line, as the datastar wire format expects.
func (s *sseWriter) sendPatch(ctx context.Context, selector string, c templ.Component) error {
	html, err := render.String(ctx, c)
	if err != nil {
		return err
	}
	lines := []string{"selector " + selector, "mode outer"}
	for _, line := range strings.Split(html, "\n") {
		lines = append(lines, "elements "+line)
	}
	return s.send(eventPatchElements, lines...)
}

func (s *sseWriter) heartbeat() error {
	if _, err := s.w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	updates, unsubscribe, err := s.Subscribe()
	if err != nil {
		h.writeError(w, http.StatusGone, err.Error())
		return
	}
	defer unsubscribe()

	sse, ok := newSSE(w)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	log := h.Log.WithField("session_id", s.ID)
	log.Debug("event stream opened")
	defer log.Debug("event stream closed")

	if err := h.sendFullState(r.Context(), sse, s.State()); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := sse.heartbeat(); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok || u.Kind == session.UpdateClosed {
				_ = sse.sendJSON(eventState, map[string]string{"status": "closed"})
				return
			}
			if err := h.sendUpdate(r.Context(), sse, s, u); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendFullState(ctx context.Context, sse *sseWriter, st session.State) error {
	if err := sse.sendJSON(eventState, st); err != nil {
		return err
	}
	if err := sse.sendPatch(ctx, "#"+render.BadgesID, render.Badges(st.Identity.Role, st.Badges)); err != nil {
		return err
	}
	if err := sse.sendPatch(ctx, "#"+render.TrackerID, render.Tracker(st.Tracker)); err != nil {
		return err
	}
	return sse.sendPatch(ctx, "#"+render.ToastID, render.Toast(st.Tracker.ActiveToast))
}

func (h *Handler) sendUpdate(ctx context.Context, sse *sseWriter, s *session.Session, u session.Update) error {
	if err := sse.sendJSON(eventState, u); err != nil {
		return err
	}
	switch {
	case u.Badges != nil:
		return sse.sendPatch(ctx, "#"+render.BadgesID, render.Badges(s.Identity.Role, *u.Badges))
	case u.Tracker != nil:
		if err := sse.sendPatch(ctx, "#"+render.TrackerID, render.Tracker(*u.Tracker)); err != nil {
			return err
		}
		return sse.sendPatch(ctx, "#"+render.ToastID, render.Toast(u.Tracker.ActiveToast))
	}
	return nil
}

// handleViewRefresh streams a refresh signal whenever the described view
// should reload, e.g. ?domains=order,retur&order_id=42.
func (h *Handler) handleViewRefresh(w http.ResponseWriter, r *http.Request) {
	spec, err := parseViewSpec(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s := sessionFromContext(r.Context())

	triggers := make(chan refresh.Trigger, 8)
	stop, err := s.WatchView(spec, func(ctx context.Context, trigger refresh.Trigger) {
		select {
		case triggers <- trigger:
		case <-ctx.Done():
		default:
		}
	})
	if err != nil {
		h.writeError(w, http.StatusGone, err.Error())
		return
	}
	defer stop()

	sse, ok := newSSE(w)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	heartbeat := time.NewTicker(h.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := sse.heartbeat(); err != nil {
				return
			}
		case trigger := <-triggers:
			if err := sse.sendJSON(eventRefresh, map[string]string{"trigger": string(trigger)}); err != nil {
				return
			}
		}
	}
}

func parseViewSpec(r *http.Request) (session.ViewSpec, error) {
	q := r.URL.Query()
	var spec session.ViewSpec
	for _, raw := range splitList(q["domains"]) {
		d := contracts.Domain(raw)
		if contracts.EventName(d) == "" {
			return session.ViewSpec{}, fmt.Errorf("unknown domain %q", raw)
		}
		spec.Domains = append(spec.Domains, d)
	}
	if len(spec.Domains) == 0 {
		return session.ViewSpec{}, fmt.Errorf("domains is required")
	}
	spec.Filters = refresh.Filters{
		OrderIDs:  splitList(q["order_id"]),
		ReturIDs:  splitList(q["retur_id"]),
		DriverIDs: splitList(q["driver_id"]),
	}
	return spec, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
