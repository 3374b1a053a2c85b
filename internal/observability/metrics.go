package observability

import (
	"snapgram/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperations counts directory and feed operations by outcome.
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgram_store_operations_total",
		Help: "Total number of state store operations by store, operation and outcome",
	}, []string{"store", "operation", "outcome"})

	// SessionWrites counts session snapshot writes by backend and kind (save, clear).
	SessionWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapgram_session_writes_total",
		Help: "Total number of session snapshot writes",
	}, []string{"kind", "outcome"})

	// ActiveClients is the gauge of live per-client state owners.
	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapgram_active_clients",
		Help: "Number of clients with a live state store",
	})

	// ClientEvictions counts idle clients dropped by the registry.
	ClientEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapgram_client_evictions_total",
		Help: "Total number of idle clients evicted",
	})
)

// Outcome maps an operation error to a metric label: "ok", "noop" or the error code.
func Outcome(err error, changed bool) string {
	if err != nil {
		return models.CodeOf(err)
	}
	if !changed {
		return "noop"
	}
	return "ok"
}

// ObserveStoreOp records one store operation.
func ObserveStoreOp(store, operation string, err error, changed bool) {
	StoreOperations.WithLabelValues(store, operation, Outcome(err, changed)).Inc()
}
