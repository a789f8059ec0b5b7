// Package refresh reruns a view's refresh callback whenever one of its
// domains changes. Push events are debounced and polling is the fallback.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/platform/debounce"
	"github.com/retailops/notifier/internal/platform/logging"
	"github.com/retailops/notifier/internal/platform/metrics"
	"github.com/retailops/notifier/internal/platform/window"
	"github.com/retailops/notifier/internal/pushchannel"
)

var (
	ErrMissingRefresh = errors.New("refresh: OnRefresh is required")
	ErrMissingChannel = errors.New("refresh: push channel is required when domains are set")
)

// Trigger names the signal that caused a refresh.
type Trigger string

const (
	TriggerInitial    Trigger = "initial"
	TriggerEvent      Trigger = "event"
	TriggerPoll       Trigger = "poll"
	TriggerFocus      Trigger = "focus"
	TriggerVisibility Trigger = "visibility"
	TriggerManual     Trigger = "manual"
)

// Filters restrict events to specific entities. Each filter applies to any
// event carrying ids of its kind; empty means match all.
type Filters struct {
	OrderIDs  []string
	ReturIDs  []string
	DriverIDs []string
}

func (f Filters) forKind(kind contracts.IDKind) []string {
	switch kind {
	case contracts.IDOrder:
		return f.OrderIDs
	case contracts.IDRetur:
		return f.ReturIDs
	case contracts.IDDriver:
		return f.DriverIDs
	default:
		return nil
	}
}

type Config struct {
	Enabled   bool
	OnRefresh func(ctx context.Context, trigger Trigger)
	// OnEvent, when set, sees every matching event as soon as it arrives,
	// before the debounced refresh it schedules.
	OnEvent func(ctx context.Context, event contracts.DomainEvent)

	Domains []contracts.Domain
	Filters Filters

	Debounce            time.Duration
	PollInterval        time.Duration
	RefreshOnFocus      bool
	RefreshOnVisibility bool
}

type Deps struct {
	Channel pushchannel.Channel
	Window  window.Source
	Log     *logrus.Entry
	// Component labels metrics; defaults to "view".
	Component string
}

type incoming struct {
	event contracts.DomainEvent
}

// Handle is a running coordinator. All callbacks run on a single goroutine,
// one at a time.
type Handle struct {
	cfg       Config
	log       *logrus.Entry
	component string

	ctx    context.Context
	cancel context.CancelFunc

	triggers  chan Trigger
	events    chan incoming
	debouncer *debounce.Debouncer

	cleanupMu sync.Mutex
	cleanups  []func()

	stopOnce sync.Once
	done     chan struct{}
}

// Start activates the coordinator and schedules the initial refresh. A
// disabled config returns a handle that never calls back.
func Start(ctx context.Context, cfg Config, deps Deps) (*Handle, error) {
	if !cfg.Enabled {
		done := make(chan struct{})
		close(done)
		return &Handle{done: done}, nil
	}
	if cfg.OnRefresh == nil {
		return nil, ErrMissingRefresh
	}
	if len(cfg.Domains) > 0 && deps.Channel == nil {
		return nil, ErrMissingChannel
	}
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	component := deps.Component
	if component == "" {
		component = "view"
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cfg:       cfg,
		log:       log.WithField("component", component),
		component: component,
		ctx:       runCtx,
		cancel:    cancel,
		triggers:  make(chan Trigger, 8),
		events:    make(chan incoming, 64),
		done:      make(chan struct{}),
	}
	if cfg.Debounce > 0 {
		h.debouncer = debounce.New(cfg.Debounce, func() { h.enqueue(TriggerEvent) })
	}

	if len(cfg.Domains) > 0 {
		off, err := pushchannel.SubscribeAll(runCtx, deps.Channel, eventNames(cfg.Domains), h.onPush)
		if err != nil {
			cancel()
			return nil, err
		}
		h.addCleanup(off)
	}
	if deps.Window != nil {
		if cfg.RefreshOnFocus {
			h.addCleanup(deps.Window.OnFocus(func() { h.enqueue(TriggerFocus) }))
		}
		if cfg.RefreshOnVisibility {
			h.addCleanup(deps.Window.OnVisibilityChange(func(visible bool) {
				if visible {
					h.enqueue(TriggerVisibility)
				}
			}))
		}
	}

	go h.loop()
	return h, nil
}

func eventNames(domains []contracts.Domain) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		name := contracts.EventName(d)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (h *Handle) addCleanup(fn func()) {
	h.cleanupMu.Lock()
	h.cleanups = append(h.cleanups, fn)
	h.cleanupMu.Unlock()
}

// onPush runs on the channel's delivery goroutine.
func (h *Handle) onPush(name string, payload []byte) {
	if h.ctx.Err() != nil {
		return
	}
	event, err := contracts.Decode(name, payload)
	if err != nil {
		h.log.WithError(err).WithField("event", name).Debug("dropping undecodable push event")
		metrics.EventsTotal.WithLabelValues(name, "invalid").Inc()
		return
	}
	if !Matches(h.cfg.Domains, h.cfg.Filters, event) {
		metrics.EventsTotal.WithLabelValues(name, "filtered").Inc()
		return
	}
	metrics.EventsTotal.WithLabelValues(name, "matched").Inc()
	select {
	case h.events <- incoming{event: event}:
	case <-h.ctx.Done():
	}
}

var filterKinds = []contracts.IDKind{contracts.IDOrder, contracts.IDRetur, contracts.IDDriver}

// Matches reports whether event belongs to one of domains and passes the id
// filters. A configured filter constrains every event that carries ids of its
// kind; kinds the event does not carry are ignored.
func Matches(domains []contracts.Domain, filters Filters, event contracts.DomainEvent) bool {
	domain := event.Domain()
	active := false
	for _, d := range domains {
		if d == domain {
			active = true
			break
		}
	}
	if !active {
		return false
	}
	for _, kind := range filterKinds {
		wanted := filters.forKind(kind)
		ids := event.EntityIDs(kind)
		if len(wanted) == 0 || len(ids) == 0 {
			continue
		}
		if !intersects(ids, wanted) {
			return false
		}
	}
	return true
}

func intersects(ids, wanted []string) bool {
	for _, id := range ids {
		for _, w := range wanted {
			if id == w {
				return true
			}
		}
	}
	return false
}

// enqueue never blocks. A full queue already holds a pending refresh.
func (h *Handle) enqueue(t Trigger) {
	if h.ctx.Err() != nil {
		return
	}
	select {
	case h.triggers <- t:
	default:
	}
}

// Refresh requests an out-of-band refresh.
func (h *Handle) Refresh() {
	if h.triggers == nil {
		return
	}
	h.enqueue(TriggerManual)
}

func (h *Handle) loop() {
	defer close(h.done)

	var tick <-chan time.Time
	if h.cfg.PollInterval > 0 {
		ticker := time.NewTicker(h.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	h.run(TriggerInitial)
	for {
		select {
		case <-h.ctx.Done():
			return
		case in := <-h.events:
			if h.ctx.Err() != nil {
				return
			}
			if h.cfg.OnEvent != nil {
				h.cfg.OnEvent(h.ctx, in.event)
			}
			if h.debouncer != nil {
				h.debouncer.Trigger()
			} else {
				h.run(TriggerEvent)
			}
		case t := <-h.triggers:
			h.run(t)
		case <-tick:
			h.run(TriggerPoll)
		}
	}
}

func (h *Handle) run(t Trigger) {
	if h.ctx.Err() != nil {
		return
	}
	metrics.RefreshesTotal.WithLabelValues(h.component, string(t)).Inc()
	h.cfg.OnRefresh(h.ctx, t)
}

// Stop unsubscribes from the push channel, removes window listeners, cancels
// any pending debounce and the poll ticker, and waits for the running
// callback to return. It must not be called from inside a callback.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		if h.cancel == nil {
			return
		}
		h.cancel()
		if h.debouncer != nil {
			h.debouncer.Stop()
		}
		h.cleanupMu.Lock()
		cleanups := h.cleanups
		h.cleanups = nil
		h.cleanupMu.Unlock()
		for _, fn := range cleanups {
			fn()
		}
	})
	<-h.done
}

// Active reports whether the coordinator is running.
func (h *Handle) Active() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
