// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicketsCreated counts tickets accepted by ingestion, labeled by
	// outcome (created, duplicate, thread_reply).
	TicketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "Total number of tickets created",
	}, []string{"status"})

	// TicketsProcessed counts worker finalizations, labeled by outcome
	// (completed, awaiting_approval, retried, failed).
	TicketsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_processed_total",
		Help: "Total number of tickets processed",
	}, []string{"status"})

	// ApprovalsDecided counts human approval decisions by outcome
	// (approved, rejected).
	ApprovalsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvals_decided_total",
		Help: "Total number of approval decisions",
	}, []string{"decision"})

	// WorkflowStepDuration observes the duration of each workflow step.
	WorkflowStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workflow_step_duration_seconds",
		Help:    "Duration of each workflow step",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	}, []string{"step"})

	// ProcessingDuration observes total per-ticket processing time.
	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticket_processing_duration_seconds",
		Help:    "Total ticket processing duration",
		Buckets: []float64{1.0, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
	})

	// RequestDuration observes HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "endpoint", "status_code"})

	// QueuePublished counts envelopes published to the broker.
	QueuePublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_messages_published_total",
		Help: "Total number of envelopes published to the queue",
	})

	// ActiveWorkers tracks the number of running consumer slots.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_workers",
		Help: "Number of active worker instances",
	})

	// DBOperations counts database operations by operation and table.
	DBOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_operations_total",
		Help: "Total database operations",
	}, []string{"operation", "table"})
)
