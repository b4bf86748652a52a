// Package metrics provides Prometheus metrics for the triage orchestrator
// (RED for HTTP + queue/worker/progress gauges, plus a registered pipeline
// stage histogram that no code observes).
// Enterprise-grade: scrapeable /metrics; runbooks and dashboards can rely on
// these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "triage"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "path"},
	)

	// DBQueryDurationSeconds is repository call latency by operation name.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2.5, 10),
		},
		[]string{"operation"},
	)

	// PipelineStageDurationSeconds is a per-stage latency histogram for the
	// analysis pipeline. It is registered and exported, but no code records
	// into it, so it stays empty; agent run time is in
	// AgentInvocationDurationSeconds.
	PipelineStageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Analysis pipeline stage duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"stage"},
	)

	// TasksTotal counts tasks reaching a terminal state, by state.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of tasks reaching a terminal state, by state.",
		},
		[]string{"state"},
	)

	// QueueDepth is the number of tasks currently waiting to be dequeued.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of tasks waiting in the in-process queue.",
		},
	)

	// WorkersBusy is the number of worker goroutines currently processing a task.
	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Number of worker goroutines currently processing a task.",
		},
	)

	// ProgressSubscribersActive is the number of live Progress Bus subscribers.
	ProgressSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_subscribers_active",
			Help:      "Number of active Progress Bus subscribers across all tasks.",
		},
	)

	// AgentInvocationDurationSeconds is per-provider agent subprocess latency.
	AgentInvocationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_invocation_duration_seconds",
			Help:      "Agent subprocess invocation duration in seconds, by provider.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"provider"},
	)

	// RuleCatalogReloadsTotal counts catalog reload attempts by outcome.
	RuleCatalogReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_catalog_reloads_total",
			Help:      "Total number of rule catalog reload attempts, by outcome.",
		},
		[]string{"outcome"},
	)
)
