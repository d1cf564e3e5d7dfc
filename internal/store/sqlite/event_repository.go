package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
)

// EventRepository implements domain.EventStore using SQLite.
// Events are insert-only; no update or delete statement exists here.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository instance.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Ensure EventRepository implements domain.EventStore.
var _ domain.EventStore = (*EventRepository)(nil)

// AppendEvent inserts an audit record unconditionally.
func (r *EventRepository) AppendEvent(ctx context.Context, e *domain.TicketEvent) error {
	countOp("insert", "ticket_events")

	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	payload, err := jsonText(e.Payload)
	if err != nil {
		return err
	}
	var stepName any
	if e.StepName != "" {
		stepName = e.StepName
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO ticket_events (id, ticket_id, event_type, step_name, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), e.TicketID.String(), string(e.EventType), stepName, payload,
		timeText(time.Now()),
	)
	if err != nil {
		return storageErr("failed to append event", err)
	}
	return nil
}

// ListEvents returns a ticket's events in append order.
func (r *EventRepository) ListEvents(ctx context.Context, ticketID uuid.UUID) ([]*domain.TicketEvent, error) {
	countOp("select", "ticket_events")

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_id, event_type, step_name, payload, created_at
		 FROM ticket_events WHERE ticket_id = ?
		 ORDER BY created_at ASC, rowid ASC`, ticketID.String())
	if err != nil {
		return nil, storageErr("failed to list events", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.TicketEvent
	for rows.Next() {
		var (
			e                 domain.TicketEvent
			id, tid, created  string
			stepName, payload sql.NullString
		)
		if err := rows.Scan(&id, &tid, (*string)(&e.EventType), &stepName, &payload, &created); err != nil {
			return nil, storageErr("failed to scan event row", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse event id: %w", err)
		}
		if e.TicketID, err = uuid.Parse(tid); err != nil {
			return nil, fmt.Errorf("failed to parse event ticket id: %w", err)
		}
		e.StepName = stepName.String
		if e.Payload, err = parseJSON(payload); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating event rows", err)
	}
	return events, nil
}
