package badges

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retailops/notifier/internal/app/refresh"
	"github.com/retailops/notifier/internal/backend"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/platform/logging"
	"github.com/retailops/notifier/internal/platform/metrics"
	"github.com/retailops/notifier/internal/platform/window"
	"github.com/retailops/notifier/internal/pushchannel"
	"github.com/retailops/notifier/internal/roles"
)

var ErrMissingSource = errors.New("badges: stats source is required")

const DefaultPollInterval = 60 * time.Second

// Source is the subset of the backend API the aggregator reads.
type Source interface {
	OrderStats(ctx context.Context) (contracts.OrderStats, error)
	PendingCOD(ctx context.Context) ([]backend.CODGroup, error)
	Returs(ctx context.Context) ([]backend.Retur, error)
}

type FinanceBadges struct {
	VerifyPayment int `json:"verify_payment"`
	CODSettlement int `json:"cod_settlement"`
	RefundRetur   int `json:"refund_retur"`
}

type State struct {
	OrderBadgeCount int           `json:"order_badge_count"`
	Finance         FinanceBadges `json:"finance_card_badges"`
	UpdatedAt       time.Time     `json:"updated_at,omitempty"`
}

type Config struct {
	Enabled      bool
	Role         contracts.Role
	PollInterval time.Duration
	// OnChange receives every recomputed state.
	OnChange func(State)
}

type Deps struct {
	Source  Source
	Channel pushchannel.Channel
	Window  window.Source
	Log     *logrus.Entry
	Now     func() time.Time
}

type Aggregator struct {
	role     contracts.Role
	source   Source
	log      *logrus.Entry
	now      func() time.Time
	onChange func(State)

	mu    sync.RWMutex
	state State

	handle *refresh.Handle
}

// Start recomputes the badges immediately, on every admin badge refresh
// event, on the poll interval and on focus or visibility.
func Start(ctx context.Context, cfg Config, deps Deps) (*Aggregator, error) {
	if deps.Source == nil {
		return nil, ErrMissingSource
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
	a := &Aggregator{
		role:     cfg.Role,
		source:   deps.Source,
		log:      log.WithField("role", string(cfg.Role)),
		now:      now,
		onChange: cfg.OnChange,
	}

	var domains []contracts.Domain
	if deps.Channel != nil {
		domains = []contracts.Domain{contracts.DomainBadgeRefresh}
	}
	h, err := refresh.Start(ctx, refresh.Config{
		Enabled:             cfg.Enabled && cfg.Role != "",
		OnRefresh:           a.recompute,
		Domains:             domains,
		PollInterval:        interval,
		RefreshOnFocus:      true,
		RefreshOnVisibility: true,
	}, refresh.Deps{
		Channel:   deps.Channel,
		Window:    deps.Window,
		Log:       log,
		Component: "badges",
	})
	if err != nil {
		return nil, err
	}
	a.handle = h
	return a, nil
}

func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Refresh requests an immediate recomputation.
func (a *Aggregator) Refresh() { a.handle.Refresh() }

func (a *Aggregator) Stop() { a.handle.Stop() }

func (a *Aggregator) recompute(ctx context.Context, _ refresh.Trigger) {
	var (
		stats  contracts.OrderStats
		cod    []backend.CODGroup
		returs []backend.Retur
	)
	if len(roles.BadgeStatuses(a.role)) > 0 {
		stats = a.fetchStats(ctx)
	}
	if a.role == contracts.RoleAdminFinance {
		cod = a.fetchCOD(ctx)
		returs = a.fetchReturs(ctx)
	}
	next := Compute(a.role, stats, cod, returs)
	next.UpdatedAt = a.now()

	a.mu.Lock()
	if ctx.Err() != nil {
		// Stopped while fetching; the result is stale.
		a.mu.Unlock()
		return
	}
	a.state = next
	a.mu.Unlock()

	metrics.OrderBadge.WithLabelValues(string(a.role)).Set(float64(next.OrderBadgeCount))
	if a.onChange != nil {
		a.onChange(next)
	}
}

func (a *Aggregator) fetchStats(ctx context.Context) contracts.OrderStats {
	stats, err := a.source.OrderStats(ctx)
	if err != nil {
		a.failed(ctx, backend.PathOrderStats, err)
		return contracts.OrderStats{}
	}
	return stats
}

func (a *Aggregator) fetchCOD(ctx context.Context) []backend.CODGroup {
	groups, err := a.source.PendingCOD(ctx)
	if err != nil {
		a.failed(ctx, backend.PathPendingCOD, err)
		return nil
	}
	return groups
}

func (a *Aggregator) fetchReturs(ctx context.Context) []backend.Retur {
	returs, err := a.source.Returs(ctx)
	if err != nil {
		a.failed(ctx, backend.PathReturs, err)
		return nil
	}
	return returs
}

func (a *Aggregator) failed(ctx context.Context, endpoint string, err error) {
	if ctx.Err() != nil {
		return
	}
	metrics.FetchFailuresTotal.WithLabelValues(endpoint).Inc()
	a.log.WithError(err).WithField("endpoint", endpoint).Warn("badge fetch failed, using empty input")
}

// Compute applies the role's badge formula. Only admin_finance gets the
// supplemental card badges.
func Compute(role contracts.Role, stats contracts.OrderStats, cod []backend.CODGroup, returs []backend.Retur) State {
	state := State{OrderBadgeCount: roles.BadgeFormula(role)(stats)}
	if role == contracts.RoleAdminFinance {
		state.Finance = FinanceBadges{
			VerifyPayment: stats.Count(contracts.StatusWaitingAdminVerification),
			CODSettlement: CountCODOrders(cod),
			RefundRetur:   CountRefundable(returs),
		}
	}
	return state
}

// CountCODOrders totals the orders nested under every driver group.
func CountCODOrders(groups []backend.CODGroup) int {
	total := 0
	for _, g := range groups {
		total += len(g.Orders)
	}
	return total
}

var refundableStatuses = map[string]struct{}{
	"approved":            {},
	"pickup_assigned":     {},
	"picked_up":           {},
	"handed_to_warehouse": {},
	"received":            {},
	"completed":           {},
}

// CountRefundable counts accepted returns whose refund is not yet disbursed.
func CountRefundable(returs []backend.Retur) int {
	n := 0
	for _, r := range returs {
		if _, ok := refundableStatuses[r.Status]; !ok {
			continue
		}
		if r.RefundDisbursedAt != nil && !r.RefundDisbursedAt.IsZero() {
			continue
		}
		n++
	}
	return n
}
