// Package session composes the coordinators serving one operator's
// dashboard. They share one window signal source.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retailops/notifier/internal/app/badges"
	"github.com/retailops/notifier/internal/app/refresh"
	"github.com/retailops/notifier/internal/app/tracker"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/kvstore"
	"github.com/retailops/notifier/internal/platform/logging"
	"github.com/retailops/notifier/internal/platform/metrics"
	"github.com/retailops/notifier/internal/platform/window"
	"github.com/retailops/notifier/internal/pushchannel"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// Source is everything the coordinators read from the backend.
type Source interface {
	badges.Source
	tracker.Source
}

type Identity struct {
	UserID   string         `json:"user_id"`
	Username string         `json:"username"`
	Role     contracts.Role `json:"role"`
}

type Options struct {
	BadgePollInterval   time.Duration
	TrackerPollInterval time.Duration
	TrackerDebounce     time.Duration
	ViewPollInterval    time.Duration
	ViewDebounce        time.Duration
	ToastTTL            time.Duration
}

type Deps struct {
	Source  Source
	Store   kvstore.Store
	Channel pushchannel.Channel
	Log     *logrus.Entry
	Now     func() time.Time
	NewID   func() string
}

// UpdateKind tags what changed in an Update.
type UpdateKind string

const (
	UpdateBadges  UpdateKind = "badges"
	UpdateTracker UpdateKind = "tracker"
	UpdateClosed  UpdateKind = "closed"
)

type Update struct {
	Kind    UpdateKind        `json:"kind"`
	Badges  *badges.State     `json:"badges,omitempty"`
	Tracker *tracker.Snapshot `json:"tracker,omitempty"`
}

type State struct {
	ID        string           `json:"id"`
	Identity  Identity         `json:"identity"`
	CreatedAt time.Time        `json:"created_at"`
	Visible   bool             `json:"visible"`
	Badges    badges.State     `json:"badges"`
	Tracker   tracker.Snapshot `json:"tracker"`
}

// ViewSpec describes which domain changes should refresh a view.
type ViewSpec struct {
	Domains []contracts.Domain
	Filters refresh.Filters
}

type Session struct {
	ID        string
	Identity  Identity
	CreatedAt time.Time
	Window    *window.Emitter

	opts Options
	deps Deps
	log  *logrus.Entry
	ctx  context.Context

	badges  *badges.Aggregator
	tracker *tracker.Tracker

	mu          sync.Mutex
	closed      bool
	subscribers map[uint64]chan Update
	views       map[uint64]*refresh.Handle
	nextID      uint64
}

func (s *Session) State() State {
	return State{
		ID:        s.ID,
		Identity:  s.Identity,
		CreatedAt: s.CreatedAt,
		Visible:   s.Window.Visible(),
		Badges:    s.badges.State(),
		Tracker:   s.tracker.Snapshot(),
	}
}

// Subscribe returns a channel of updates. Slow readers miss updates rather
// than block the coordinators; the next update carries full state anyway.
// The channel is closed when the session closes.
func (s *Session) Subscribe() (<-chan Update, func(), error) {
	ch := make(chan Update, 16)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrSessionClosed
	}
	s.nextID++
	id := s.nextID
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Session) broadcast(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Session) MarkSeen(ctx context.Context) error {
	return s.tracker.MarkSeen(ctx)
}

func (s *Session) DismissToast() bool {
	return s.tracker.DismissToast()
}

func (s *Session) Focus() {
	s.Window.Focus()
}

func (s *Session) SetVisible(visible bool) {
	s.Window.SetVisible(visible)
}

// WatchView starts a refresh coordinator for one view of the dashboard. The
// returned stop function is also called when the session closes.
func (s *Session) WatchView(spec ViewSpec, onRefresh func(ctx context.Context, trigger refresh.Trigger)) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	h, err := refresh.Start(s.ctx, refresh.Config{
		Enabled:             true,
		OnRefresh:           onRefresh,
		Domains:             spec.Domains,
		Filters:             spec.Filters,
		Debounce:            s.opts.ViewDebounce,
		PollInterval:        s.opts.ViewPollInterval,
		RefreshOnFocus:      true,
		RefreshOnVisibility: true,
	}, refresh.Deps{
		Channel:   s.deps.Channel,
		Window:    s.Window,
		Log:       s.log,
		Component: "view",
	})
	if err != nil {
		return nil, fmt.Errorf("starting view coordinator: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.Stop()
		return nil, ErrSessionClosed
	}
	s.nextID++
	id := s.nextID
	s.views[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		_, ok := s.views[id]
		delete(s.views, id)
		s.mu.Unlock()
		if ok {
			h.Stop()
		}
	}, nil
}

// Views returns the number of running view coordinators.
func (s *Session) Views() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	views := make([]*refresh.Handle, 0, len(s.views))
	for _, h := range s.views {
		views = append(views, h)
	}
	s.views = map[uint64]*refresh.Handle{}
	s.mu.Unlock()

	for _, h := range views {
		h.Stop()
	}
	s.badges.Stop()
	s.tracker.Stop()

	s.mu.Lock()
	s.closed = true
	subs := s.subscribers
	s.subscribers = map[uint64]chan Update{}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- Update{Kind: UpdateClosed}:
		default:
		}
		close(ch)
	}
}

// Manager owns the live sessions of the process.
type Manager struct {
	opts Options
	deps Deps
	log  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(opts Options, deps Deps) *Manager {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:     opts,
		deps:     deps,
		log:      deps.Log,
		ctx:      ctx,
		cancel:   cancel,
		sessions: map[string]*Session{},
	}
}

// Create starts the coordinators for a new dashboard session. Sessions
// outlive the request that created them and end with Close.
func (m *Manager) Create(ctx context.Context, id Identity) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Session{
		ID:          m.deps.NewID(),
		Identity:    id,
		CreatedAt:   m.deps.Now(),
		Window:      window.NewEmitter(),
		opts:        m.opts,
		deps:        m.deps,
		ctx:         m.ctx,
		subscribers: map[uint64]chan Update{},
		views:       map[uint64]*refresh.Handle{},
	}
	s.log = m.log.WithFields(logrus.Fields{"session_id": s.ID, "role": string(id.Role)})

	agg, err := badges.Start(m.ctx, badges.Config{
		Enabled:      true,
		Role:         id.Role,
		PollInterval: m.opts.BadgePollInterval,
		OnChange: func(st badges.State) {
			s.broadcast(Update{Kind: UpdateBadges, Badges: &st})
		},
	}, badges.Deps{
		Source:  m.deps.Source,
		Channel: m.deps.Channel,
		Window:  s.Window,
		Log:     s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("starting badge aggregator: %w", err)
	}
	s.badges = agg

	tr, err := tracker.Start(m.ctx, tracker.Config{
		Enabled:      true,
		Role:         id.Role,
		UserID:       id.UserID,
		PollInterval: m.opts.TrackerPollInterval,
		Debounce:     m.opts.TrackerDebounce,
		ToastTTL:     m.opts.ToastTTL,
		OnChange: func(snap tracker.Snapshot) {
			s.broadcast(Update{Kind: UpdateTracker, Tracker: &snap})
		},
	}, tracker.Deps{
		Source:  m.deps.Source,
		Store:   m.deps.Store,
		Channel: m.deps.Channel,
		Window:  s.Window,
		Log:     s.log,
	})
	if err != nil {
		agg.Stop()
		return nil, fmt.Errorf("starting notification tracker: %w", err)
	}
	s.tracker = tr

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	s.log.Info("session started")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops every coordinator of the session. The watermark stays in the
// store.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	metrics.ActiveSessions.Set(float64(n))
	s.close()
	s.log.Info("session closed")
	return nil
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes all sessions.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	m.cancel()
	for _, s := range sessions {
		s.close()
	}
	metrics.ActiveSessions.Set(0)
}
