package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hookbridge"
)

var (
	lifecycleDurationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	// Endpoint lifecycle metrics
	LifecycleOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lifecycle_operations_total",
		Help:      "Count of endpoint lifecycle operations.",
	}, []string{"operation", "status"})

	LifecycleOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lifecycle_operation_duration_seconds",
		Help:      "Time taken for an endpoint lifecycle operation to complete.",
		Buckets:   lifecycleDurationBuckets,
	}, []string{"operation"})

	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lifecycle_compensations_total",
		Help:      "Count of cross-system compensating actions issued after partial failures.",
	}, []string{"operation", "target", "status"})

	// Secrets vault metrics
	VaultCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "vault_calls_total",
		Help:      "Count of secrets vault calls.",
	}, []string{"call", "status"})

	// Authorization inventory metrics
	InventoryCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_calls_total",
		Help:      "Count of authorization inventory calls.",
	}, []string{"call", "status"})

	// Behavior group reconciler metrics
	BehaviorGroupChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "behavior_group_changes_total",
		Help:      "Count of structural behavior group changes applied by the reconciler.",
	}, []string{"change"})
)
