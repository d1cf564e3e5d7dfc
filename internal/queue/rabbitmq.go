package queue

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/metrics"
)

// RabbitMQ implements Broker over a single AMQP connection.
//
// Topology declared on connect:
//
//	{dlx}         direct exchange
//	{queue}_dead  queue bound to {dlx} with routing key {queue}
//	{queue}       durable queue with x-dead-letter-exchange = {dlx}
//
// A Nack without requeue therefore lands the message in {queue}_dead
// for manual inspection.
type RabbitMQ struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	dlx      string
	prefetch int
}

// Ensure RabbitMQ implements Broker.
var _ Broker = (*RabbitMQ)(nil)

// RabbitMQConfig carries the connection and topology settings.
type RabbitMQConfig struct {
	URL      string
	Queue    string
	DLX      string
	Prefetch int
}

// NewRabbitMQ connects and declares the queue topology.
func NewRabbitMQ(cfg RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, brokerErr("failed to connect to rabbitmq", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, brokerErr("failed to open channel", err)
	}

	b := &RabbitMQ{
		conn:     conn,
		ch:       ch,
		queue:    cfg.Queue,
		dlx:      cfg.DLX,
		prefetch: cfg.Prefetch,
	}
	if b.prefetch < 1 {
		b.prefetch = 1
	}

	if err := b.declareTopology(); err != nil {
		_ = b.Close()
		return nil, err
	}

	log.Info(log.CatQueue, "connected to rabbitmq",
		"queue", b.queue, "dlx", b.dlx, "prefetch", b.prefetch)
	return b, nil
}

func (b *RabbitMQ) declareTopology() error {
	if err := b.ch.ExchangeDeclare(
		b.dlx,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return brokerErr("failed to declare dead-letter exchange", err)
	}

	deadQueue := b.queue + "_dead"
	if _, err := b.ch.QueueDeclare(
		deadQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return brokerErr("failed to declare dead-letter queue", err)
	}
	if err := b.ch.QueueBind(deadQueue, b.queue, b.dlx, false, nil); err != nil {
		return brokerErr("failed to bind dead-letter queue", err)
	}

	if _, err := b.ch.QueueDeclare(
		b.queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    b.dlx,
			"x-dead-letter-routing-key": b.queue,
		},
	); err != nil {
		return brokerErr("failed to declare queue", err)
	}

	if err := b.ch.Qos(b.prefetch, 0, false); err != nil {
		return brokerErr("failed to set prefetch", err)
	}
	return nil
}

// Publish enqueues an envelope as a persistent JSON message.
func (b *RabbitMQ) Publish(ctx context.Context, env Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}

	err = b.ch.PublishWithContext(ctx,
		"",      // default exchange
		b.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return brokerErr("failed to publish", err)
	}

	metrics.QueuePublished.Inc()
	log.Debug(log.CatQueue, "published envelope",
		"ticket_id", env.TicketID, "attempt", env.Attempt)
	return nil
}

// Consume streams deliveries from the queue. The channel closes when
// the context is cancelled or the AMQP channel drops.
func (b *RabbitMQ) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := b.ch.Consume(
		b.queue,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, brokerErr("failed to start consuming", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				out <- wrapDelivery(msg)
			}
		}
	}()
	return out, nil
}

func wrapDelivery(msg amqp.Delivery) Delivery {
	d := Delivery{
		ack:  func() error { return msg.Ack(false) },
		nack: func(requeue bool) error { return msg.Nack(false, requeue) },
	}
	env, err := DecodeEnvelope(msg.Body)
	if err != nil {
		d.Malformed = err
		return d
	}
	d.Envelope = env
	return d
}

// Health reports whether the connection is still open.
func (b *RabbitMQ) Health(ctx context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return brokerErr("health check", errors.New("connection closed"))
	}
	return nil
}

// Close tears down the channel and connection.
func (b *RabbitMQ) Close() error {
	var errs []error
	if b.ch != nil {
		if err := b.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
