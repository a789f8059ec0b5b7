// Package tracker follows order status changes for one operator: which of
// them need the operator's attention, how many are new since the operator
// last looked, and which toast to show.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retailops/notifier/internal/app/refresh"
	"github.com/retailops/notifier/internal/backend"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/kvstore"
	"github.com/retailops/notifier/internal/platform/logging"
	"github.com/retailops/notifier/internal/platform/metrics"
	"github.com/retailops/notifier/internal/platform/window"
	"github.com/retailops/notifier/internal/pushchannel"
	"github.com/retailops/notifier/internal/roles"
	"github.com/retailops/notifier/internal/toast"
)

var (
	ErrMissingSource = errors.New("tracker: source is required")
	ErrMissingStore  = errors.New("tracker: key-value store is required")
)

const (
	MaxLatestEvents     = 30
	DefaultPollInterval = 45 * time.Second
	DefaultDebounce     = 400 * time.Millisecond

	dedupCapacity = 256
	driverCard    = "delivery_tasks"
)

// Source is the subset of the backend API the tracker reads.
type Source interface {
	OrderStats(ctx context.Context) (contracts.OrderStats, error)
	DriverTasks(ctx context.Context, driverID string) ([]backend.DriverTask, error)
}

type PriorityCard struct {
	Status   string `json:"status"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
	NewCount int    `json:"new_count"`
}

type Snapshot struct {
	Role            contracts.Role                 `json:"role"`
	NewTaskCount    int                            `json:"new_task_count"`
	ActionableCount int                            `json:"actionable_count"`
	Watermark       Watermark                      `json:"watermark"`
	LatestEvents    []contracts.OrderStatusChanged `json:"latest_events"`
	PriorityCards   []PriorityCard                 `json:"priority_cards"`
	ActiveToast     *toast.Entry                   `json:"active_toast,omitempty"`
}

type Config struct {
	Enabled      bool
	Role         contracts.Role
	UserID       string
	PollInterval time.Duration
	// Debounce delays the actionable count refresh after accepted events.
	Debounce time.Duration
	ToastTTL time.Duration
	OnChange func(Snapshot)
}

type Deps struct {
	Source  Source
	Store   kvstore.Store
	Channel pushchannel.Channel
	Window  window.Source
	Log     *logrus.Entry
	Now     func() time.Time
}

type Tracker struct {
	role     contracts.Role
	userID   string
	source   Source
	store    kvstore.Store
	log      *logrus.Entry
	now      func() time.Time
	onChange func(Snapshot)

	mu           sync.Mutex
	loaded       bool
	actionable   int
	stats        contracts.OrderStats
	watermark    Watermark
	hasWatermark bool
	events       []contracts.OrderStatusChanged
	seen         map[string]struct{}
	seenOrder    []string
	stopped      bool
	// wmGen counts in-memory watermark changes; a save only lands if it is
	// still the latest one.
	wmGen  uint64
	saveMu sync.Mutex

	toasts *toast.Queue
	handle *refresh.Handle
}

// Start loads the watermark, computes the actionable count and begins
// following order status events. A disabled config or an empty role yields a
// tracker whose snapshot stays empty.
func Start(ctx context.Context, cfg Config, deps Deps) (*Tracker, error) {
	enabled := cfg.Enabled && cfg.Role != ""
	if enabled && deps.Source == nil {
		return nil, ErrMissingSource
	}
	if enabled && deps.Store == nil {
		return nil, ErrMissingStore
	}
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	wait := cfg.Debounce
	if wait <= 0 {
		wait = DefaultDebounce
	}

	t := &Tracker{
		role:     cfg.Role,
		userID:   cfg.UserID,
		source:   deps.Source,
		store:    deps.Store,
		log:      log.WithFields(logrus.Fields{"role": string(cfg.Role), "user_id": cfg.UserID}),
		now:      now,
		onChange: cfg.OnChange,
		seen:     map[string]struct{}{},
	}
	t.toasts = toast.NewQueue(1, cfg.ToastTTL, t.notify)

	var domains []contracts.Domain
	if deps.Channel != nil {
		domains = []contracts.Domain{contracts.DomainOrder}
	}
	h, err := refresh.Start(ctx, refresh.Config{
		Enabled:             enabled,
		OnRefresh:           t.recount,
		OnEvent:             t.accept,
		Domains:             domains,
		Debounce:            wait,
		PollInterval:        interval,
		RefreshOnFocus:      true,
		RefreshOnVisibility: true,
	}, refresh.Deps{
		Channel:   deps.Channel,
		Window:    deps.Window,
		Log:       log,
		Component: "tracker",
	})
	if err != nil {
		return nil, err
	}
	t.handle = h
	return t, nil
}

func (t *Tracker) Stop() {
	t.handle.Stop()
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.toasts.Stop()
}

// Refresh requests an immediate actionable count refresh.
func (t *Tracker) Refresh() { t.handle.Refresh() }

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	snap := t.snapshotLocked()
	t.mu.Unlock()
	if entry, ok := t.toasts.Active(); ok {
		snap.ActiveToast = &entry
	}
	return snap
}

func (t *Tracker) snapshotLocked() Snapshot {
	visible := t.visibleEventsLocked()
	snap := Snapshot{
		Role:            t.role,
		ActionableCount: t.actionable,
		Watermark:       t.watermark,
		LatestEvents:    visible,
		PriorityCards:   t.cardsLocked(visible),
	}
	if t.hasWatermark {
		snap.NewTaskCount = NewTaskCount(t.actionable, t.watermark.LastSeenCount)
	}
	return snap
}

// NewTaskCount is the actionable work beyond the watermark, never negative.
func NewTaskCount(actionable, lastSeen int) int {
	if n := actionable - lastSeen; n > 0 {
		return n
	}
	return 0
}

func (t *Tracker) visibleEventsLocked() []contracts.OrderStatusChanged {
	out := make([]contracts.OrderStatusChanged, 0, len(t.events))
	for _, e := range t.events {
		if t.hasWatermark && !e.TriggeredAt.After(t.watermark.LastSeenAt) {
			continue
		}
		out = append(out, e)
		if len(out) == MaxLatestEvents {
			break
		}
	}
	return out
}

func (t *Tracker) cardsLocked(visible []contracts.OrderStatusChanged) []PriorityCard {
	if t.role == contracts.RoleDriver {
		return []PriorityCard{{
			Status:   driverCard,
			Label:    "Delivery tasks",
			Count:    t.actionable,
			NewCount: len(visible),
		}}
	}
	statuses := roles.ActionableStatuses(t.role)
	cards := make([]PriorityCard, 0, len(statuses))
	for _, status := range statuses {
		card := PriorityCard{
			Status: status,
			Label:  roles.StatusLabel(status),
			Count:  t.stats.Count(status),
		}
		for _, e := range visible {
			if e.ToStatus == status {
				card.NewCount++
			}
		}
		cards = append(cards, card)
	}
	return cards
}

// MarkSeen moves the watermark to the current actionable count and time and
// persists it. It is the only way the watermark advances.
func (t *Tracker) MarkSeen(ctx context.Context) error {
	if t.store == nil || !t.handle.Active() {
		return nil
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	wm := Watermark{LastSeenCount: t.actionable, LastSeenAt: t.now()}
	t.watermark = wm
	t.hasWatermark = true
	t.loaded = true
	t.wmGen++
	gen := t.wmGen
	t.events = t.visibleEventsLocked()
	t.mu.Unlock()

	metrics.NewTasks.WithLabelValues(string(t.role)).Set(0)
	t.notify()
	if err := t.persist(ctx, gen, wm); err != nil {
		return fmt.Errorf("persisting watermark: %w", err)
	}
	return nil
}

// persist writes wm unless a newer watermark replaced it in memory. Writes
// are serialized so the count and time keys always come from one watermark.
func (t *Tracker) persist(ctx context.Context, gen uint64, wm Watermark) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	t.mu.Lock()
	stale := gen != t.wmGen
	t.mu.Unlock()
	if stale {
		return nil
	}
	return SaveWatermark(ctx, t.store, t.role, wm)
}

// DismissToast hides the visible toast, if any.
func (t *Tracker) DismissToast() bool {
	return t.toasts.Dismiss("")
}

// recount runs on the coordinator goroutine.
func (t *Tracker) recount(ctx context.Context, _ refresh.Trigger) {
	t.loadWatermark(ctx)

	actionable, stats, ok := t.fetchActionable(ctx)

	t.mu.Lock()
	if ctx.Err() != nil || t.stopped {
		t.mu.Unlock()
		return
	}
	t.actionable = actionable
	t.stats = stats
	var seed *Watermark
	var gen uint64
	if ok && !t.hasWatermark {
		wm := Watermark{LastSeenCount: actionable, LastSeenAt: t.now()}
		t.watermark = wm
		t.hasWatermark = true
		t.wmGen++
		gen = t.wmGen
		seed = &wm
	}
	newTasks := 0
	if t.hasWatermark {
		newTasks = NewTaskCount(t.actionable, t.watermark.LastSeenCount)
	}
	t.mu.Unlock()

	metrics.NewTasks.WithLabelValues(string(t.role)).Set(float64(newTasks))
	if seed != nil {
		if err := t.persist(ctx, gen, *seed); err != nil {
			t.log.WithError(err).Warn("persisting seeded watermark failed")
		}
	}
	t.notify()
}

func (t *Tracker) loadWatermark(ctx context.Context) {
	t.mu.Lock()
	loaded := t.loaded
	t.mu.Unlock()
	if loaded {
		return
	}

	wm, ok, err := LoadWatermark(ctx, t.store, t.role)
	if err != nil {
		t.log.WithError(err).Warn("reading watermark failed, treating as absent")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded {
		return
	}
	t.loaded = true
	if ok {
		t.watermark = wm
		t.hasWatermark = true
	}
}

// fetchActionable returns ok=false when the fetch failed and the count is the
// fail-soft zero.
func (t *Tracker) fetchActionable(ctx context.Context) (int, contracts.OrderStats, bool) {
	if t.role == contracts.RoleDriver {
		tasks, err := t.source.DriverTasks(ctx, t.userID)
		if err != nil {
			t.failed(ctx, backend.PathDriverTasks, err)
			return 0, nil, false
		}
		return len(tasks), nil, true
	}
	if len(roles.BadgeStatuses(t.role)) == 0 {
		return 0, contracts.OrderStats{}, true
	}
	stats, err := t.source.OrderStats(ctx)
	if err != nil {
		t.failed(ctx, backend.PathOrderStats, err)
		return 0, contracts.OrderStats{}, false
	}
	return roles.BadgeFormula(t.role)(stats), stats, true
}

func (t *Tracker) failed(ctx context.Context, endpoint string, err error) {
	if ctx.Err() != nil {
		return
	}
	metrics.FetchFailuresTotal.WithLabelValues(endpoint).Inc()
	t.log.WithError(err).WithField("endpoint", endpoint).Warn("actionable count fetch failed, using zero")
}

// accept runs on the coordinator goroutine for every order event.
func (t *Tracker) accept(_ context.Context, event contracts.DomainEvent) {
	e, ok := event.(contracts.OrderStatusChanged)
	if !ok {
		return
	}
	if e.TriggeredAt.IsZero() {
		e.TriggeredAt = t.now()
	}
	outcome := t.admit(e)
	metrics.EventsTotal.WithLabelValues(contracts.EventOrderStatusChanged, outcome).Inc()
	if outcome != "accepted" {
		return
	}
	metrics.ToastsTotal.WithLabelValues(string(t.role)).Inc()
	t.toasts.Push(ToastMessage(t.role, e))
}

func (t *Tracker) admit(e contracts.OrderStatusChanged) string {
	if !roles.IsRelevant(t.role, t.userID, e) {
		return "irrelevant"
	}
	if !roles.IsActionable(t.role, e.ToStatus) {
		return "not_actionable"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return "stopped"
	}
	if t.hasWatermark && !e.TriggeredAt.After(t.watermark.LastSeenAt) {
		return "before_watermark"
	}
	key := e.DedupKey()
	if _, dup := t.seen[key]; dup {
		return "duplicate"
	}
	t.seen[key] = struct{}{}
	t.seenOrder = append(t.seenOrder, key)
	if len(t.seenOrder) > dedupCapacity {
		delete(t.seen, t.seenOrder[0])
		t.seenOrder = t.seenOrder[1:]
	}

	t.events = append(t.events, e)
	sort.SliceStable(t.events, func(i, j int) bool {
		return t.events[i].TriggeredAt.After(t.events[j].TriggeredAt)
	})
	if len(t.events) > MaxLatestEvents {
		t.events = t.events[:MaxLatestEvents]
	}
	return "accepted"
}

// ToastMessage renders the human readable text for a status transition.
func ToastMessage(role contracts.Role, e contracts.OrderStatusChanged) string {
	ref := e.OrderNumber
	if ref == "" {
		ref = e.OrderID
	}
	if role == contracts.RoleDriver {
		return fmt.Sprintf("Delivery task update: order %s is now %s", ref, roles.StatusLabel(e.ToStatus))
	}
	if e.FromStatus != "" {
		return fmt.Sprintf("Order %s: %s to %s", ref, roles.StatusLabel(e.FromStatus), roles.StatusLabel(e.ToStatus))
	}
	return fmt.Sprintf("Order %s is now %s", ref, roles.StatusLabel(e.ToStatus))
}

func (t *Tracker) notify() {
	if t.onChange == nil {
		return
	}
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	t.onChange(t.Snapshot())
}
