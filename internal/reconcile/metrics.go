package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netbox_zabbix_operations_total",
			Help: "Reconciliation operations performed against Zabbix",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netbox_zabbix_operation_duration_seconds",
			Help:    "Time spent per reconciliation operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	driftTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netbox_zabbix_drift_detected_total",
			Help: "Host comparisons that found configuration drift",
		},
	)

	rollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netbox_zabbix_rollbacks_total",
			Help: "Compensating deletions after partial create failures",
		},
	)
)

func observeOp(op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
