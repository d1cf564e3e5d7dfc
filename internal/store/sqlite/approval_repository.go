package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
)

const approvalColumns = `id, ticket_id, action_type, action_params, status,
	requested_at, decided_at, decided_by, decision_reason`

// ApprovalRepository implements domain.ApprovalStore using SQLite.
// Decisions are guarded by a CAS on status = pending, which also makes
// post-approval tool execution at-most-once per request.
type ApprovalRepository struct {
	db *sql.DB
}

// NewApprovalRepository creates a new ApprovalRepository instance.
func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Ensure ApprovalRepository implements domain.ApprovalStore.
var _ domain.ApprovalStore = (*ApprovalRepository)(nil)

func scanApproval(scanner interface{ Scan(...any) error }) (*domain.ApprovalRequest, error) {
	var (
		a                    domain.ApprovalRequest
		id, tid, requested   string
		params               string
		decidedAt            sql.NullString
		decidedBy, reason    sql.NullString
	)
	err := scanner.Scan(&id, &tid, &a.ActionType, &params, (*string)(&a.Status),
		&requested, &decidedAt, &decidedBy, &reason)
	if err != nil {
		return nil, err
	}

	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse approval id: %w", err)
	}
	if a.TicketID, err = uuid.Parse(tid); err != nil {
		return nil, fmt.Errorf("failed to parse approval ticket id: %w", err)
	}
	if a.ActionParams, err = parseJSON(sql.NullString{String: params, Valid: true}); err != nil {
		return nil, err
	}
	if a.RequestedAt, err = parseTime(requested); err != nil {
		return nil, err
	}
	if a.DecidedAt, err = parseNullTime(decidedAt); err != nil {
		return nil, err
	}
	a.DecidedBy = decidedBy.String
	a.DecisionReason = reason.String
	return &a, nil
}

// CreateApproval inserts a pending approval request. If the ticket
// already has one (a worker crashed between creating it and parking the
// ticket, and the resume got here again), the existing row is returned.
func (r *ApprovalRepository) CreateApproval(ctx context.Context, a *domain.ApprovalRequest) (*domain.ApprovalRequest, error) {
	countOp("insert", "approval_requests")

	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	params, err := jsonText(a.ActionParams)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = "{}"
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO approval_requests (id, ticket_id, action_type, action_params, status, requested_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticket_id) WHERE status = 'pending' DO NOTHING`,
		id.String(), a.TicketID.String(), a.ActionType, params,
		string(domain.ApprovalPending), timeText(time.Now()),
	)
	if err != nil {
		return nil, storageErr("failed to insert approval request", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("failed to get rows affected", err)
	}
	if affected == 0 {
		return r.pendingForTicket(ctx, a.TicketID)
	}
	return r.GetApproval(ctx, id)
}

func (r *ApprovalRepository) pendingForTicket(ctx context.Context, ticketID uuid.UUID) (*domain.ApprovalRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE ticket_id = ? AND status = ?`,
		ticketID.String(), string(domain.ApprovalPending))
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, domain.ErrApprovalNotFound)
	}
	if err != nil {
		return nil, storageErr("failed to get pending approval", err)
	}
	return a, nil
}

// GetApproval retrieves an approval request by id.
func (r *ApprovalRepository) GetApproval(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	countOp("select", "approval_requests")

	row := r.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = ?`, id.String())
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval %s: %w", id, domain.ErrApprovalNotFound)
	}
	if err != nil {
		return nil, storageErr("failed to get approval", err)
	}
	return a, nil
}

// ListPendingApprovals returns all pending requests oldest-first.
func (r *ApprovalRepository) ListPendingApprovals(ctx context.Context) ([]*domain.ApprovalRequest, error) {
	countOp("select", "approval_requests")

	return r.list(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE status = ? ORDER BY requested_at ASC`,
		string(domain.ApprovalPending))
}

// ListApprovalsByTicket returns all requests for a ticket newest-first.
func (r *ApprovalRepository) ListApprovalsByTicket(ctx context.Context, ticketID uuid.UUID) ([]*domain.ApprovalRequest, error) {
	countOp("select", "approval_requests")

	return r.list(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		 WHERE ticket_id = ? ORDER BY requested_at DESC`,
		ticketID.String())
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ApprovalRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to list approvals", err)
	}
	defer func() { _ = rows.Close() }()

	var approvals []*domain.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, storageErr("failed to scan approval row", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("error iterating approval rows", err)
	}
	return approvals, nil
}

// DecideApproval records a decision iff the request is still pending.
func (r *ApprovalRepository) DecideApproval(ctx context.Context, id uuid.UUID, d domain.ApprovalDecision) (*domain.ApprovalRequest, error) {
	countOp("update", "approval_requests")

	status := domain.ApprovalRejected
	if d.Approved {
		status = domain.ApprovalApproved
	}
	var reason any
	if d.Reason != "" {
		reason = d.Reason
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE approval_requests
		 SET status = ?, decided_at = ?, decided_by = ?, decision_reason = ?
		 WHERE id = ? AND status = ?`,
		string(status), timeText(time.Now()), d.DecidedBy, reason,
		id.String(), string(domain.ApprovalPending),
	)
	if err != nil {
		return nil, storageErr("failed to decide approval", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("failed to get rows affected", err)
	}
	if affected == 0 {
		if _, err := r.GetApproval(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("approval %s: %w", id, domain.ErrAlreadyDecided)
	}
	return r.GetApproval(ctx, id)
}
