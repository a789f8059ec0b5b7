package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opsnotifier"

// Default holds every collector of the process. It is a private registry so
// tests can read values without touching the global prometheus registry.
var Default = prometheus.NewRegistry()

var (
	RefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Refresh cycles run, by component and trigger.",
	}, []string{"component", "trigger"})

	FetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_failures_total",
		Help:      "Backend fetches that failed and were degraded to empty input.",
	}, []string{"endpoint"})

	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_events_total",
		Help:      "Push channel events seen by coordinators, by outcome.",
	}, []string{"event", "outcome"})

	ToastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "toasts_total",
		Help:      "Toast notifications emitted per role.",
	}, []string{"role"})

	OrderBadge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "order_badge",
		Help:      "Last computed order badge per role.",
	}, []string{"role"})

	NewTasks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "new_tasks",
		Help:      "Last computed new-since-seen count per role.",
	}, []string{"role"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Operator sessions with running coordinators.",
	})
)

func DefaultHandler() http.Handler {
	return promhttp.HandlerFor(Default, promhttp.HandlerOpts{Registry: Default})
}

func init() {
	Default.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RefreshesTotal,
		FetchFailuresTotal,
		EventsTotal,
		ToastsTotal,
		OrderBadge,
		NewTasks,
		ActiveSessions,
	)
}
