package queue

import (
	"context"
	"sync"
)

// Memory is an in-process Broker used by tests and local development
// without a RabbitMQ instance. Nacked-with-requeue messages go back to
// the head of the queue; nacked-without-requeue messages accumulate in
// Dead.
type Memory struct {
	mu      sync.Mutex
	pending []Envelope
	dead    []Envelope
	acked   []Envelope
	wake    chan struct{}
	closed  bool
}

// Ensure Memory implements Broker.
var _ Broker = (*Memory)(nil)

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{wake: make(chan struct{}, 1)}
}

// Publish appends the envelope to the queue.
func (m *Memory) Publish(ctx context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return brokerErr("publish", context.Canceled)
	}
	m.pending = append(m.pending, env)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Consume delivers queued envelopes one at a time until ctx is cancelled.
func (m *Memory) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			env, ok := m.pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-m.wake:
					continue
				}
			}

			d := Delivery{
				Envelope: env,
				ack: func() error {
					m.mu.Lock()
					defer m.mu.Unlock()
					m.acked = append(m.acked, env)
					return nil
				},
				nack: func(requeue bool) error {
					m.mu.Lock()
					defer m.mu.Unlock()
					if requeue {
						m.pending = append([]Envelope{env}, m.pending...)
						select {
						case m.wake <- struct{}{}:
						default:
						}
					} else {
						m.dead = append(m.dead, env)
					}
					return nil
				},
			}

			select {
			case <-ctx.Done():
				// Undelivered message returns to the queue, like a
				// broker redelivering after a consumer drop.
				_ = d.Nack(true)
				return
			case out <- d:
			}
		}
	}()
	return out, nil
}

func (m *Memory) pop() (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return Envelope{}, false
	}
	env := m.pending[0]
	m.pending = m.pending[1:]
	return env, true
}

// Pending returns a snapshot of undelivered envelopes.
func (m *Memory) Pending() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.pending...)
}

// Dead returns a snapshot of dead-lettered envelopes.
func (m *Memory) Dead() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.dead...)
}

// Acked returns a snapshot of acknowledged envelopes.
func (m *Memory) Acked() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.acked...)
}

// Health always reports healthy while the broker is open.
func (m *Memory) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return brokerErr("health check", context.Canceled)
	}
	return nil
}

// Close marks the broker closed; further publishes fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
