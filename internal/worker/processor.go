// Package worker consumes ticket envelopes and drives the workflow,
// enforcing the lease, heartbeat, checkpoint, and retry discipline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/metrics"
	"github.com/rowanhq/ticketflow/internal/queue"
	"github.com/rowanhq/ticketflow/internal/workflow"
)

// Disposition tells the consumer what to do with the delivery.
type Disposition int

const (
	// Ack drops the envelope; the ticket reached a settled state.
	Ack Disposition = iota
	// Requeue redelivers the same envelope later (lease held elsewhere,
	// lost CAS, or transient infrastructure failure).
	Requeue
	// Retry publishes a fresh envelope with attempt+1 and acks this one,
	// so the attempt number stays recorded on the wire.
	Retry
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Config carries the processing policy knobs.
type Config struct {
	WorkerID          string
	MaxRetries        int
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
}

// Processor executes one ticket attempt end to end.
type Processor struct {
	store domain.Store
	graph workflow.Graph
	cfg   Config

	// now is swappable for tests.
	now func() time.Time
}

// NewProcessor creates a Processor driving the given workflow graph.
func NewProcessor(store domain.Store, graph workflow.Graph, cfg Config) *Processor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 5 * time.Minute
	}
	return &Processor{store: store, graph: graph, cfg: cfg, now: time.Now}
}

var tracer = otel.Tracer("ticketflow/worker")

// Process handles one envelope. The error, when non-nil, is the
// infrastructure failure that forced the disposition.
func (p *Processor) Process(ctx context.Context, env queue.Envelope) (Disposition, error) {
	ctx, span := tracer.Start(ctx, "worker.process_ticket",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("ticket.id", env.TicketID.String()),
			attribute.Int("ticket.attempt", env.Attempt),
			attribute.String("worker.id", p.cfg.WorkerID),
		))
	defer span.End()

	disp, err := p.process(ctx, env)
	span.SetAttributes(attribute.String("worker.disposition", disp.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return disp, err
}

func (p *Processor) process(ctx context.Context, env queue.Envelope) (Disposition, error) {
	started := p.now()
	log.Info(log.CatWorker, "processing ticket",
		"ticket_id", env.TicketID, "attempt", env.Attempt, "worker_id", p.cfg.WorkerID)

	ticket, err := p.store.GetTicket(ctx, env.TicketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			// Envelope for a row that never landed; nothing to retry.
			log.Error(log.CatWorker, "ticket not found for envelope", "ticket_id", env.TicketID)
			return Ack, nil
		}
		return Requeue, err
	}

	// Idempotency gate: duplicates of settled tickets are dropped. This
	// is what absorbs the publish-then-crash duplicate window.
	if ticket.Status.Terminal() || ticket.Status == domain.StatusAwaitingApproval {
		log.Info(log.CatWorker, "ticket already settled",
			"ticket_id", ticket.ID, "status", ticket.Status)
		return Ack, nil
	}

	// A live heartbeat means another worker holds the lease.
	if ticket.Status == domain.StatusProcessing && ticket.LastHeartbeat != nil {
		if age := p.now().Sub(*ticket.LastHeartbeat); age < p.cfg.StaleThreshold {
			log.Info(log.CatWorker, "ticket leased by another worker",
				"ticket_id", ticket.ID, "worker_id", ticket.WorkerID, "heartbeat_age", age)
			return Requeue, nil
		}
		log.Warn(log.CatWorker, "reclaiming stale lease",
			"ticket_id", ticket.ID, "previous_worker", ticket.WorkerID)
	}

	leased, err := p.acquireLease(ctx, ticket)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Info(log.CatWorker, "lost lease race", "ticket_id", ticket.ID)
			return Requeue, nil
		}
		return Requeue, err
	}
	if err := p.store.AppendEvent(ctx, domain.NewStatusChangeEvent(
		leased.ID, ticket.Status, domain.StatusProcessing)); err != nil {
		return Requeue, err
	}

	state, err := p.loadState(ctx, leased)
	if err != nil {
		return Requeue, err
	}

	if runErr := p.drive(ctx, leased, state); runErr != nil {
		return p.failAttempt(ctx, leased, env, runErr)
	}

	disp, err := p.finalize(ctx, leased, state)
	if err == nil {
		metrics.ProcessingDuration.Observe(p.now().Sub(started).Seconds())
	}
	return disp, err
}

// acquireLease CASes the ticket into processing under this worker.
func (p *Processor) acquireLease(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error) {
	now := p.now()
	status := domain.StatusProcessing
	patch := domain.TicketPatch{
		Status:        &status,
		WorkerID:      &p.cfg.WorkerID,
		LastHeartbeat: &now,
	}
	if t.StartedAt == nil {
		patch.StartedAt = &now
	}
	return p.store.UpdateTicket(ctx, t.ID, patch, t.Version)
}

// loadState restores the checkpoint or builds a fresh initial state.
func (p *Processor) loadState(ctx context.Context, t *domain.Ticket) (*workflow.State, error) {
	cp, err := p.store.GetCheckpoint(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return p.graph.Initial(t), nil
	}

	log.Info(log.CatWorker, "resuming from checkpoint",
		"ticket_id", t.ID, "step", cp.CurrentStep)
	return workflow.DecodeState(cp.State)
}

// drive runs the workflow to completion, checkpointing after each step.
// A background ticker keeps the lease heartbeat fresh while a step is
// slow (LLM calls routinely outlast the heartbeat interval).
func (p *Processor) drive(ctx context.Context, t *domain.Ticket, state *workflow.State) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go p.heartbeatLoop(hbCtx, t.ID)

	for !state.Done {
		if err := ctx.Err(); err != nil {
			return err
		}

		stepStart := p.now()
		step, err := p.graph.Step(ctx, state)
		if err != nil {
			return fmt.Errorf("step %s: %w", step, err)
		}
		metrics.WorkflowStepDuration.WithLabelValues(step).Observe(p.now().Sub(stepStart).Seconds())

		snapshot, err := state.Encode()
		if err != nil {
			return err
		}
		if err := p.store.UpsertCheckpoint(ctx, t.ID, snapshot, state.Node); err != nil {
			return err
		}
		if err := p.store.AppendEvent(ctx, domain.NewStepCompleteEvent(t.ID, step, nil)); err != nil {
			return err
		}
		if err := p.store.UpdateHeartbeat(ctx, t.ID, p.cfg.WorkerID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) heartbeatLoop(ctx context.Context, ticketID uuid.UUID) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.store.UpdateHeartbeat(ctx, ticketID, p.cfg.WorkerID); err != nil {
				log.Warn(log.CatWorker, "heartbeat failed",
					"ticket_id", ticketID, "error", err)
			}
		}
	}
}

// finalize settles a successfully finished run: either awaiting_approval
// with the checkpoint retained, or completed with the checkpoint dropped.
func (p *Processor) finalize(ctx context.Context, leased *domain.Ticket, state *workflow.State) (Disposition, error) {
	// Reload for the current version; heartbeats do not bump it but a
	// reclaimed lease elsewhere would, and the CAS must see that.
	current, err := p.store.GetTicket(ctx, leased.ID)
	if err != nil {
		return Requeue, err
	}

	result := state.Result()

	if state.AwaitingApproval() {
		approval, err := p.store.CreateApproval(ctx, &domain.ApprovalRequest{
			TicketID:     leased.ID,
			ActionType:   state.PendingApproval.Tool,
			ActionParams: state.PendingApproval.Args,
		})
		if err != nil {
			return Requeue, err
		}
		log.Info(log.CatWorker, "approval requested",
			"ticket_id", leased.ID, "approval_id", approval.ID, "action_type", approval.ActionType)

		status := domain.StatusAwaitingApproval
		if _, err := p.store.UpdateTicket(ctx, leased.ID, domain.TicketPatch{
			Status: &status,
			Result: result,
		}, current.Version); err != nil {
			return Requeue, err
		}
		if err := p.store.AppendEvent(ctx, domain.NewStatusChangeEvent(
			leased.ID, domain.StatusProcessing, domain.StatusAwaitingApproval)); err != nil {
			return Requeue, err
		}

		// Checkpoint stays: the approval service resumes from it.
		metrics.TicketsProcessed.WithLabelValues(string(domain.StatusAwaitingApproval)).Inc()
		return Ack, nil
	}

	now := p.now()
	status := domain.StatusCompleted
	if _, err := p.store.UpdateTicket(ctx, leased.ID, domain.TicketPatch{
		Status:      &status,
		Result:      result,
		CompletedAt: &now,
	}, current.Version); err != nil {
		return Requeue, err
	}
	if err := p.store.AppendEvent(ctx, domain.NewStatusChangeEvent(
		leased.ID, domain.StatusProcessing, domain.StatusCompleted)); err != nil {
		return Requeue, err
	}
	if err := p.store.DeleteCheckpoint(ctx, leased.ID); err != nil {
		return Requeue, err
	}

	log.Info(log.CatWorker, "ticket completed", "ticket_id", leased.ID)
	metrics.TicketsProcessed.WithLabelValues(string(domain.StatusCompleted)).Inc()
	return Ack, nil
}

// failAttempt applies the retry policy after a workflow failure.
func (p *Processor) failAttempt(ctx context.Context, leased *domain.Ticket, env queue.Envelope, runErr error) (Disposition, error) {
	log.ErrorErr(log.CatWorker, "workflow failed", runErr,
		"ticket_id", leased.ID, "attempt", env.Attempt)
	if err := p.store.AppendEvent(ctx, domain.NewErrorEvent(leased.ID, runErr.Error())); err != nil {
		return Requeue, err
	}

	current, err := p.store.GetTicket(ctx, leased.ID)
	if err != nil {
		return Requeue, err
	}

	if env.Attempt >= p.cfg.MaxRetries {
		now := p.now()
		status := domain.StatusFailedPermanent
		if _, err := p.store.UpdateTicket(ctx, leased.ID, domain.TicketPatch{
			Status:      &status,
			Result:      map[string]any{"error": runErr.Error()},
			CompletedAt: &now,
		}, current.Version); err != nil {
			return Requeue, err
		}
		if err := p.store.AppendEvent(ctx, domain.NewStatusChangeEvent(
			leased.ID, domain.StatusProcessing, domain.StatusFailedPermanent)); err != nil {
			return Requeue, err
		}

		log.Error(log.CatWorker, "ticket failed permanently",
			"ticket_id", leased.ID, "attempts", env.Attempt+1)
		metrics.TicketsProcessed.WithLabelValues(string(domain.StatusFailedPermanent)).Inc()
		return Ack, nil
	}

	// Back to pending with the attempt recorded; a fresh envelope for
	// attempt+1 carries the work forward.
	attempts := current.AttemptCount + 1
	status := domain.StatusPending
	if _, err := p.store.UpdateTicket(ctx, leased.ID, domain.TicketPatch{
		Status:       &status,
		AttemptCount: &attempts,
	}, current.Version); err != nil {
		return Requeue, err
	}
	if err := p.store.AppendEvent(ctx, domain.NewRetryEvent(leased.ID, env.Attempt, runErr.Error())); err != nil {
		return Requeue, err
	}
	return Retry, nil
}
