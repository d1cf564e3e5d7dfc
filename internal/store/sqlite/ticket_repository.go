package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
)

// ticketColumns is the list of columns to select for ticket queries.
const ticketColumns = `id, customer_id, subject, body, channel, metadata, status, result,
	worker_id, attempt_count, version, created_at, started_at, completed_at, last_heartbeat`

// TicketRepository implements domain.TicketStore using SQLite.
type TicketRepository struct {
	db *sql.DB
}

// NewTicketRepository creates a new TicketRepository instance.
func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Ensure TicketRepository implements domain.TicketStore.
var _ domain.TicketStore = (*TicketRepository)(nil)

// scanTicket scans a row into a domain.Ticket.
func scanTicket(scanner interface{ Scan(...any) error }) (*domain.Ticket, error) {
	var (
		t                                  domain.Ticket
		id                                 string
		metadata, result, workerID         sql.NullString
		createdAt                          string
		startedAt, completedAt, heartbeat  sql.NullString
	)
	err := scanner.Scan(
		&id, &t.CustomerID, &t.Subject, &t.Body, (*string)(&t.Channel), &metadata,
		(*string)(&t.Status), &result, &workerID, &t.AttemptCount, &t.Version,
		&createdAt, &startedAt, &completedAt, &heartbeat,
	)
	if err != nil {
		return nil, err
	}

	t.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ticket id: %w", err)
	}
	if t.Metadata, err = parseJSON(metadata); err != nil {
		return nil, err
	}
	if t.Result, err = parseJSON(result); err != nil {
		return nil, err
	}
	t.WorkerID = workerID.String
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if t.LastHeartbeat, err = parseNullTime(heartbeat); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTicket inserts a new ticket at version 1 and status pending.
// Returns domain.ErrAlreadyExists if the identity is already present.
func (r *TicketRepository) CreateTicket(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error) {
	countOp("insert", "tickets")

	metadata, err := jsonText(t.Metadata)
	if err != nil {
		return nil, err
	}
	channel := t.Channel
	if channel == "" {
		channel = domain.ChannelHTTP
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (id, customer_id, subject, body, channel, metadata, status,
			attempt_count, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 1, ?)
		 ON CONFLICT(id) DO NOTHING`,
		t.ID.String(), t.CustomerID, t.Subject, t.Body, string(channel), metadata,
		string(domain.StatusPending), timeText(time.Now()),
	)
	if err != nil {
		return nil, storageErr("failed to insert ticket", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("failed to get rows affected", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("ticket %s: %w", t.ID, domain.ErrAlreadyExists)
	}

	return r.GetTicket(ctx, t.ID)
}

// GetTicket retrieves a ticket by id.
func (r *TicketRepository) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	countOp("select", "tickets")

	row := r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id.String())
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrTicketNotFound)
	}
	if err != nil {
		return nil, storageErr("failed to get ticket", err)
	}
	return t, nil
}

// ListTickets returns a page of tickets newest-first plus the total count.
func (r *TicketRepository) ListTickets(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, int, error) {
	countOp("select", "tickets")

	where := ""
	args := []any{}
	if filter.Status != "" {
		where = ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("failed to count tickets", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets`+where+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		args...)
	if err != nil {
		return nil, 0, storageErr("failed to list tickets", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []*domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, storageErr("failed to scan ticket row", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("error iterating ticket rows", err)
	}
	return tickets, total, nil
}

// UpdateTicket applies a patch under CAS on version, bumping version by one.
func (r *TicketRepository) UpdateTicket(ctx context.Context, id uuid.UUID, patch domain.TicketPatch, expectedVersion int64) (*domain.Ticket, error) {
	countOp("update", "tickets")

	sets := []string{"version = version + 1"}
	args := []any{}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Result != nil {
		result, err := jsonText(patch.Result)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "result = ?")
		args = append(args, result)
	}
	if patch.WorkerID != nil {
		sets = append(sets, "worker_id = ?")
		args = append(args, *patch.WorkerID)
	}
	if patch.AttemptCount != nil {
		sets = append(sets, "attempt_count = ?")
		args = append(args, *patch.AttemptCount)
	}
	if patch.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, timeText(*patch.StartedAt))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, timeText(*patch.CompletedAt))
	}
	if patch.LastHeartbeat != nil {
		sets = append(sets, "last_heartbeat = ?")
		args = append(args, timeText(*patch.LastHeartbeat))
	}

	args = append(args, id.String(), expectedVersion)
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET `+strings.Join(sets, ", ")+` WHERE id = ? AND version = ?`,
		args...)
	if err != nil {
		return nil, storageErr("failed to update ticket", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("failed to get rows affected", err)
	}
	if affected == 0 {
		// Distinguish a lost CAS from a missing row.
		if _, err := r.GetTicket(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("ticket %s expected version %d: %w", id, expectedVersion, domain.ErrVersionConflict)
	}

	return r.GetTicket(ctx, id)
}

// UpdateHeartbeat touches only last_heartbeat and worker_id, without a
// version bump, so a concurrent CAS commit by the leaseholder never sees
// a phantom conflict.
func (r *TicketRepository) UpdateHeartbeat(ctx context.Context, id uuid.UUID, workerID string) error {
	countOp("update", "tickets")

	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET last_heartbeat = ?, worker_id = ? WHERE id = ?`,
		timeText(time.Now()), workerID, id.String())
	if err != nil {
		return storageErr("failed to update heartbeat", err)
	}
	return nil
}

// FindTicketByMessageID resolves an email thread reply to the originating
// ticket via the message_id recorded in its metadata.
func (r *TicketRepository) FindTicketByMessageID(ctx context.Context, messageID string) (*domain.Ticket, error) {
	countOp("select", "tickets")

	row := r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE json_extract(metadata, '$.message_id') = ? LIMIT 1`, messageID)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message id %q: %w", messageID, domain.ErrTicketNotFound)
	}
	if err != nil {
		return nil, storageErr("failed to find ticket by message id", err)
	}
	return t, nil
}

// CountByStatus returns ticket counts keyed by status.
func (r *TicketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	countOp("select", "tickets")

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, storageErr("failed to count tickets by status", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("failed to scan status count", err)
		}
		counts[domain.TicketStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating status counts", err)
	}
	return counts, nil
}
