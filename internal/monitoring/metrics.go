// Package monitoring exposes Prometheus metrics for the sync engine.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all engine metrics.
type Metrics struct {
	// Session metrics
	Sends        prometheus.Counter
	SendFailures prometheus.Counter
	Loads        prometheus.Counter
	LoadFailures prometheus.Counter
	Clears       prometheus.Counter

	// Directory metrics
	Refreshes         prometheus.Counter
	RefreshDiscards   prometheus.Counter
	RefreshFailures   prometheus.Counter
	Deletes           prometheus.Counter
	DeleteFailures    prometheus.Counter
	FallbackSelection *prometheus.CounterVec

	// Guard metrics
	AutoLoads       prometheus.Counter
	AutoLoadRetries prometheus.Counter
}

// New creates a metrics collector registered against reg. A nil reg uses
// a private registry, which keeps tests independent.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Sends: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Total number of send operations",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_send_failures_total",
			Help: "Total number of failed send operations",
		}),
		Loads: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_loads_total",
			Help: "Total number of history load operations",
		}),
		LoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_load_failures_total",
			Help: "Total number of failed history loads",
		}),
		Clears: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_clears_total",
			Help: "Total number of session clears",
		}),
		Refreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_directory_refreshes_total",
			Help: "Total number of directory refreshes applied",
		}),
		RefreshDiscards: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_directory_refresh_discards_total",
			Help: "Total number of stale refresh responses discarded",
		}),
		RefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_directory_refresh_failures_total",
			Help: "Total number of failed directory refreshes",
		}),
		Deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_directory_deletes_total",
			Help: "Total number of conversation deletions",
		}),
		DeleteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_directory_delete_failures_total",
			Help: "Total number of failed conversation deletions",
		}),
		FallbackSelection: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_directory_fallbacks_total",
			Help: "Fallback selections after deleting the active conversation",
		}, []string{"kind"}), // "left", "head", "clear"
		AutoLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_auto_loads_total",
			Help: "Total number of auto-load attempts issued by the guard",
		}),
		AutoLoadRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_auto_load_retries_total",
			Help: "Total number of guard resets after a failed auto-load",
		}),
	}
}
