// Package metrics registers the Prometheus series for intake and the generation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound WhatsApp webhook events by resulting status token",
		},
		[]string{"status"},
	)

	GenerationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_total",
			Help: "Generation jobs reaching a terminal state",
		},
		[]string{"status", "error_class"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_stage_duration_seconds",
			Help:    "Latency of each pipeline stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_retries_total",
			Help: "Transient failures handed back to the queue for retry",
		},
		[]string{"stage"},
	)

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Outbound WhatsApp sends that failed",
	})

	CreditsDebited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credits_debited_total",
		Help: "Credits consumed by completed generations",
	})

	QueueTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_total",
			Help: "Queue task outcomes",
		},
		[]string{"outcome"},
	)
)
