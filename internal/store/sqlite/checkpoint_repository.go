package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
)

// CheckpointRepository implements domain.CheckpointStore using SQLite.
type CheckpointRepository struct {
	db *sql.DB
}

// NewCheckpointRepository creates a new CheckpointRepository instance.
func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Ensure CheckpointRepository implements domain.CheckpointStore.
var _ domain.CheckpointStore = (*CheckpointRepository)(nil)

// UpsertCheckpoint writes the workflow snapshot for a ticket, replacing
// any previous one.
func (r *CheckpointRepository) UpsertCheckpoint(ctx context.Context, ticketID uuid.UUID, state []byte, currentStep string) error {
	countOp("upsert", "workflow_checkpoints")

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workflow_checkpoints (ticket_id, state, current_step, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(ticket_id) DO UPDATE SET
			state = excluded.state,
			current_step = excluded.current_step,
			updated_at = excluded.updated_at`,
		ticketID.String(), string(state), currentStep, timeText(time.Now()),
	)
	if err != nil {
		return storageErr("failed to upsert checkpoint", err)
	}
	return nil
}

// GetCheckpoint returns the checkpoint for a ticket, or nil if none exists.
func (r *CheckpointRepository) GetCheckpoint(ctx context.Context, ticketID uuid.UUID) (*domain.WorkflowCheckpoint, error) {
	countOp("select", "workflow_checkpoints")

	var (
		state, step, updated string
	)
	row := r.db.QueryRowContext(ctx,
		`SELECT state, current_step, updated_at FROM workflow_checkpoints WHERE ticket_id = ?`,
		ticketID.String())
	err := row.Scan(&state, &step, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("failed to get checkpoint", err)
	}

	updatedAt, err := parseTime(updated)
	if err != nil {
		return nil, err
	}
	return &domain.WorkflowCheckpoint{
		TicketID:    ticketID,
		State:       []byte(state),
		CurrentStep: step,
		UpdatedAt:   updatedAt,
	}, nil
}

// DeleteCheckpoint removes the checkpoint for a ticket. Deleting a
// missing checkpoint is not an error.
func (r *CheckpointRepository) DeleteCheckpoint(ctx context.Context, ticketID uuid.UUID) error {
	countOp("delete", "workflow_checkpoints")

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_checkpoints WHERE ticket_id = ?`, ticketID.String())
	if err != nil {
		return storageErr("failed to delete checkpoint", err)
	}
	return nil
}
