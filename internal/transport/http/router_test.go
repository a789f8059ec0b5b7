package httptransport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/retailops/notifier/internal/app/publisher"
	"github.com/retailops/notifier/internal/app/session"
	"github.com/retailops/notifier/internal/backend"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/kvstore"
	platformauth "github.com/retailops/notifier/internal/platform/auth"
	"github.com/retailops/notifier/internal/pushchannel"
)

type fakeSource struct {
	mu    sync.Mutex
	stats contracts.OrderStats
}

func (f *fakeSource) OrderStats(context.Context) (contracts.OrderStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := contracts.OrderStats{}
	for k, v := range f.stats {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) set(status string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[status] = n
}

func (f *fakeSource) PendingCOD(context.Context) ([]backend.CODGroup, error) { return nil, nil }
func (f *fakeSource) Returs(context.Context) ([]backend.Retur, error)        { return nil, nil }
func (f *fakeSource) DriverTasks(context.Context, string) ([]backend.DriverTask, error) {
	return nil, nil
}

type fixture struct {
	handler *Handler
	hub     *pushchannel.Hub
	source  *fakeSource
	tokens  platformauth.Manager
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := pushchannel.NewHub()
	src := &fakeSource{stats: contracts.OrderStats{"pending": 2, "waiting_payment": 1}}
	mgr := session.NewManager(session.Options{
		BadgePollInterval:   time.Hour,
		TrackerPollInterval: time.Hour,
		TrackerDebounce:     10 * time.Millisecond,
		ViewPollInterval:    time.Hour,
		ViewDebounce:        10 * time.Millisecond,
		ToastTTL:            time.Minute,
	}, session.Deps{Source: src, Store: kvstore.NewMemory(), Channel: hub})
	t.Cleanup(mgr.Shutdown)

	adminHash, err := platformauth.HashAdminToken("s3cret-admin")
	require.NoError(t, err)

	h := &Handler{
		Sessions:       mgr,
		Tokens:         platformauth.NewManager("test-secret-value", time.Hour),
		Publisher:      publisher.NewService(hub.Publish),
		AdminTokenHash: adminHash,
		AllowedOrigins: []string{"*"},
		Heartbeat:      50 * time.Millisecond,
	}
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &fixture{handler: h, hub: hub, source: src, tokens: h.Tokens, server: srv}
}

func (f *fixture) token(t *testing.T, userID string, role contracts.Role) string {
	t.Helper()
	tok, err := f.tokens.Sign(userID, "user-"+userID, role)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) createSession(t *testing.T, token string) session.State {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/v1/sessions", token, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var st session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

type sseFrame struct {
	event string
	data  []string
}

func readFrames(t *testing.T, resp *http.Response) <-chan sseFrame {
	t.Helper()
	out := make(chan sseFrame, 64)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		var cur sseFrame
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if cur.event != "" {
					out <- cur
				}
				cur = sseFrame{}
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = append(cur.data, strings.TrimPrefix(line, "data: "))
			}
		}
	}()
	return out
}

func waitFrame(t *testing.T, frames <-chan sseFrame, pred func(sseFrame) bool) sseFrame {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatal("stream ended")
			}
			if pred(f) {
				return f
			}
		case <-deadline:
			t.Fatal("timed out waiting for frame")
			return sseFrame{}
		}
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz_ReportsFailure(t *testing.T) {
	h := &Handler{Ready: func(context.Context) error { return assert.AnError }}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessions_RequireToken(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/v1/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/sessions", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessions_CreateGetDelete(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u1", contracts.RoleKasir)
	st := f.createSession(t, tok)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, contracts.RoleKasir, st.Identity.Role)
	assert.Equal(t, "u1", st.Identity.UserID)

	assert.Eventually(t, func() bool {
		resp := f.do(t, http.MethodGet, "/api/v1/sessions/"+st.ID, tok, "")
		var got session.State
		if json.NewDecoder(resp.Body).Decode(&got) != nil {
			return false
		}
		return got.Badges.OrderBadgeCount == 3
	}, 2*time.Second, 20*time.Millisecond)

	resp := f.do(t, http.MethodDelete, "/api/v1/sessions/"+st.ID, tok, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, f.handler.Sessions.Count())

	resp = f.do(t, http.MethodGet, "/api/v1/sessions/"+st.ID, tok, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessions_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	st := f.createSession(t, f.token(t, "u1", contracts.RoleKasir))

	resp := f.do(t, http.MethodGet, "/api/v1/sessions/"+st.ID, f.token(t, "u2", contracts.RoleKasir), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessions_VisibilityValidation(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u1", contracts.RoleKasir)
	st := f.createSession(t, tok)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+st.ID+"/visibility", tok, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/sessions/"+st.ID+"/visibility", tok, `{"visible":false}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	s, err := f.handler.Sessions.Get(st.ID)
	require.NoError(t, err)
	assert.False(t, s.State().Visible)

	resp = f.do(t, http.MethodPost, "/api/v1/sessions/"+st.ID+"/focus", tok, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSessions_ToastAndMarkSeen(t *testing.T) {
	f := newFixture(t)
	f.source.set("pending", 0)
	f.source.set("waiting_payment", 0)
	f.source.set("ready_to_ship", 6)
	tok := f.token(t, "g1", contracts.RoleAdminGudang)
	st := f.createSession(t, tok)
	s, err := f.handler.Sessions.Get(st.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.State().Tracker.ActionableCount == 6 }, 2*time.Second, 10*time.Millisecond)

	f.source.set("ready_to_ship", 7)
	resp := f.do(t, http.MethodPost, "/api/v1/admin/events", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/admin/events",
		strings.NewReader(`{"action":"order-status","order_id":"42","order_number":"INV-0042","from_status":"pending","to_status":"ready_to_ship"}`))
	require.NoError(t, err)
	req.Header.Set("X-Admin-Token", "s3cret-admin")
	adminResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	adminResp.Body.Close()
	require.Equal(t, http.StatusAccepted, adminResp.StatusCode)

	require.Eventually(t, func() bool {
		snap := s.State().Tracker
		return snap.NewTaskCount == 1 && snap.ActiveToast != nil
	}, 2*time.Second, 10*time.Millisecond)

	resp = f.do(t, http.MethodPost, "/api/v1/sessions/"+st.ID+"/toast/dismiss", tok, "")
	var dismissed map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dismissed))
	assert.True(t, dismissed["dismissed"])

	resp = f.do(t, http.MethodPost, "/api/v1/sessions/"+st.ID+"/seen", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap struct {
		NewTaskCount int `json:"new_task_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Zero(t, snap.NewTaskCount)
	assert.Zero(t, s.State().Tracker.NewTaskCount)
}

func TestAdmin_RejectsBadCommand(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/admin/events", strings.NewReader(`{"action":"explode"}`))
	require.NoError(t, err)
	req.Header.Set("X-Admin-Token", "s3cret-admin")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents_StreamsStateAndPatches(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u1", contracts.RoleKasir)
	st := f.createSession(t, tok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/api/v1/sessions/"+st.ID+"/events?token="+tok, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, resp)
	waitFrame(t, frames, func(fr sseFrame) bool { return fr.event == eventState })
	patch := waitFrame(t, frames, func(fr sseFrame) bool { return fr.event == eventPatchElements })
	require.NotEmpty(t, patch.data)
	assert.Equal(t, "selector #ops-badges", patch.data[0])
	assert.Equal(t, "mode outer", patch.data[1])

	f.source.set("pending", 5)
	require.NoError(t, f.handler.Publisher.RefreshBadges(context.Background()))
	waitFrame(t, frames, func(fr sseFrame) bool {
		return fr.event == eventPatchElements && strings.Contains(strings.Join(fr.data, "\n"), ">6<")
	})
}

func TestViewRefresh_StreamsTriggers(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u1", contracts.RoleAdminGudang)
	st := f.createSession(t, tok)

	resp := f.do(t, http.MethodGet, "/api/v1/sessions/"+st.ID+"/views/refresh?domains=invoice", tok, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.server.URL+"/api/v1/sessions/"+st.ID+"/views/refresh?domains=order&order_id=42", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()

	frames := readFrames(t, streamResp)
	initial := waitFrame(t, frames, func(fr sseFrame) bool { return fr.event == eventRefresh })
	assert.Equal(t, `{"trigger":"initial"}`, initial.data[0])

	payload, err := json.Marshal(contracts.OrderStatusChanged{OrderID: "42", ToStatus: "shipped", TriggeredAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, f.hub.Publish(context.Background(), contracts.EventOrderStatusChanged, payload))

	ev := waitFrame(t, frames, func(fr sseFrame) bool { return fr.event == eventRefresh })
	assert.Equal(t, `{"trigger":"event"}`, ev.data[0])
}

func TestParseViewSpec(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?domains=order,retur&order_id=1,2&retur_id=9", nil)
	spec, err := parseViewSpec(req)
	require.NoError(t, err)
	assert.Equal(t, []contracts.Domain{contracts.DomainOrder, contracts.DomainRetur}, spec.Domains)
	assert.Equal(t, []string{"1", "2"}, spec.Filters.OrderIDs)
	assert.Equal(t, []string{"9"}, spec.Filters.ReturIDs)
	assert.Empty(t, spec.Filters.DriverIDs)

	_, err = parseViewSpec(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}

func TestRateLimiter_Rejects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(1), 2)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(1), 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.get("10.0.0.1")
	now = now.Add(11 * time.Minute)
	rl.prune()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}
