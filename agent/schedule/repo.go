package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Asygurare/salespilot/agent/contract"
)

// Repository persists scheduled sends. The dispatcher creates and cancels;
// ClaimDue and Finalize exist for the external sweeper and honor the same
// state machine.
type Repository struct {
	db bun.IDB
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, send *ScheduledSend) error {
	if err := send.Validate(send.CreatedAt); err != nil {
		return err
	}
	if send.ID == "" {
		send.ID = uuid.NewString()
	}
	send.Status = StatusPending
	send.UpdatedAt = send.CreatedAt

	if _, err := r.db.NewInsert().Model(send).Exec(ctx); err != nil {
		return fmt.Errorf("insert scheduled send: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, userID, id string) (*ScheduledSend, error) {
	send := new(ScheduledSend)
	err := r.db.NewSelect().
		Model(send).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scheduled send %s", contract.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load scheduled send: %w", err)
	}
	return send, nil
}

// Cancel transitions pending|processing to cancelled. The status guard lives
// in the UPDATE itself so two concurrent cancels cannot both win.
func (r *Repository) Cancel(ctx context.Context, userID, id string, now time.Time) (*ScheduledSend, error) {
	send, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !send.Status.Cancellable() {
		return nil, fmt.Errorf("%w: scheduled send %s is %s and can no longer be cancelled",
			contract.ErrInvalidState, id, send.Status)
	}

	res, err := r.db.NewUpdate().
		Model((*ScheduledSend)(nil)).
		Set("status = ?", StatusCancelled).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Where("status IN (?)", bun.In([]Status{StatusPending, StatusProcessing})).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("cancel scheduled send: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: scheduled send %s reached a terminal state concurrently",
			contract.ErrInvalidState, id)
	}

	send.Status = StatusCancelled
	send.UpdatedAt = now
	return send, nil
}

// ClaimDue moves up to limit due pending rows to processing and returns them.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledSend, error) {
	var claimed []ScheduledSend
	_, err := r.db.NewUpdate().
		Model(&claimed).
		Set("status = ?", StatusProcessing).
		Set("updated_at = ?", now).
		Where("status = ?", StatusPending).
		Where("scheduled_for <= ?", now).
		Where("id IN (?)", r.db.NewSelect().
			Model((*ScheduledSend)(nil)).
			Column("id").
			Where("status = ?", StatusPending).
			Where("scheduled_for <= ?", now).
			OrderExpr("scheduled_for ASC").
			Limit(limit)).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim due sends: %w", err)
	}
	return claimed, nil
}

// Finalize records per-recipient counts and derives the terminal status. A
// cancel that slipped in while the sweeper was delivering wins: the row is
// left cancelled and the counts are still recorded.
func (r *Repository) Finalize(ctx context.Context, send *ScheduledSend, attempted, sent, failed int, lastErr string, now time.Time) error {
	status, err := send.Outcome(attempted, sent, failed)
	if err != nil {
		return err
	}

	res, err := r.db.NewUpdate().
		Model((*ScheduledSend)(nil)).
		Set("status = ?", status).
		Set("attempted_count = ?", attempted).
		Set("sent_count = ?", sent).
		Set("failed_count = ?", failed).
		Set("last_error = ?", lastErr).
		Set("processed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", send.ID).
		Where("status = ?", StatusProcessing).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finalize scheduled send: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: scheduled send %s left processing before finalize", contract.ErrInvalidState, send.ID)
	}

	send.Status = status
	send.AttemptedCount = attempted
	send.SentCount = sent
	send.FailedCount = failed
	send.LastError = lastErr
	send.ProcessedAt = &now
	send.UpdatedAt = now
	return nil
}
