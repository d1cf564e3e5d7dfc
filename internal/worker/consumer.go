package worker

import (
	"context"
	"time"

	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/metrics"
	"github.com/rowanhq/ticketflow/internal/queue"
)

// requeueDelay throttles redelivery of envelopes for tickets leased by
// another worker, so a prefetch-1 consumer does not spin on them.
const requeueDelay = time.Second

// Consumer runs the consume loop, translating processor dispositions
// into broker acks, nacks, and republishes.
type Consumer struct {
	broker     queue.Broker
	processor  *Processor
	maxRetries int
}

// NewConsumer creates a Consumer over the given broker.
func NewConsumer(broker queue.Broker, processor *Processor, maxRetries int) *Consumer {
	return &Consumer{broker: broker, processor: processor, maxRetries: maxRetries}
}

// Run consumes until the context is cancelled. An in-flight ticket
// finishes before the loop exits; its envelope is settled normally.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.broker.Consume(ctx)
	if err != nil {
		return err
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	log.Info(log.CatWorker, "consumer started", "worker_id", c.processor.cfg.WorkerID)

	for d := range deliveries {
		c.handle(ctx, d)
	}

	log.Info(log.CatWorker, "consumer stopped", "worker_id", c.processor.cfg.WorkerID)
	return nil
}

func (c *Consumer) handle(ctx context.Context, d queue.Delivery) {
	if d.Malformed != nil {
		// Undecodable bodies can never succeed; dead-letter them.
		log.Error(log.CatWorker, "malformed envelope dead-lettered",
			"error", d.Malformed.Error())
		if err := d.Nack(false); err != nil {
			log.Warn(log.CatWorker, "failed to nack malformed envelope", "error", err)
		}
		return
	}

	disp, err := c.processor.Process(ctx, d.Envelope)
	if err != nil {
		log.ErrorErr(log.CatWorker, "processing error", err,
			"ticket_id", d.Envelope.TicketID, "attempt", d.Envelope.Attempt)
	}

	switch disp {
	case Ack:
		if err := d.Ack(); err != nil {
			log.Warn(log.CatWorker, "failed to ack", "ticket_id", d.Envelope.TicketID, "error", err)
		}

	case Retry:
		// Publish the next attempt first; only then drop the current
		// envelope. A crash between the two yields a duplicate, which
		// the idempotency gate absorbs.
		next := queue.NewEnvelope(d.Envelope.TicketID, d.Envelope.Attempt+1)
		if err := c.broker.Publish(ctx, next); err != nil {
			log.ErrorErr(log.CatWorker, "failed to publish retry, requeueing", err,
				"ticket_id", d.Envelope.TicketID)
			_ = d.Nack(true)
			return
		}
		if err := d.Ack(); err != nil {
			log.Warn(log.CatWorker, "failed to ack after retry publish",
				"ticket_id", d.Envelope.TicketID, "error", err)
		}

	case Requeue:
		// Infrastructure failures with no attempts left go to the
		// dead-letter queue instead of cycling forever.
		requeue := err == nil || d.Envelope.Attempt < c.maxRetries
		if nackErr := d.Nack(requeue); nackErr != nil {
			log.Warn(log.CatWorker, "failed to nack",
				"ticket_id", d.Envelope.TicketID, "error", nackErr)
		}
		if requeue {
			select {
			case <-ctx.Done():
			case <-time.After(requeueDelay):
			}
		}
	}
}
