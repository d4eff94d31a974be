package schedule

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/Asygurare/salespilot/agent/contract"
)

// MinLeadTime is the floor between creation and fire time. Anything closer
// should go through the synchronous send action instead.
const MinLeadTime = 30 * time.Second

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether the dispatcher may still transition the send to
// cancelled. Only the sweeper advances any other transition.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

// ScheduledSend is a durable deferred delivery request. ScheduledFor is
// resolved to an absolute instant exactly once at creation and never
// re-derived.
type ScheduledSend struct {
	bun.BaseModel `bun:"table:scheduled_emails"`

	ID             string     `bun:"id,pk" json:"id"`
	UserID         string     `bun:"user_id" json:"user_id"`
	Recipients     []string   `bun:"recipients,array" json:"recipients"`
	Subject        string     `bun:"subject" json:"subject"`
	HTML           string     `bun:"html" json:"html,omitempty"`
	Text           string     `bun:"text" json:"text,omitempty"`
	ScheduledFor   time.Time  `bun:"scheduled_for" json:"scheduled_for"`
	Timezone       string     `bun:"timezone" json:"timezone"`
	Status         Status     `bun:"status" json:"status"`
	AttemptedCount int        `bun:"attempted_count" json:"attempted_count"`
	SentCount      int        `bun:"sent_count" json:"sent_count"`
	FailedCount    int        `bun:"failed_count" json:"failed_count"`
	LastError      string     `bun:"last_error" json:"last_error,omitempty"`
	ProcessedAt    *time.Time `bun:"processed_at" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bun:"updated_at" json:"updated_at"`
}

// Validate checks the creation contract against now (the caller's clock
// snapshot, not the wall clock).
func (s *ScheduledSend) Validate(now time.Time) error {
	if len(s.Recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", contract.ErrInvalidInput)
	}
	if s.Subject == "" {
		return fmt.Errorf("%w: subject is required", contract.ErrInvalidInput)
	}
	if s.HTML == "" && s.Text == "" {
		return fmt.Errorf("%w: html or text body is required", contract.ErrInvalidInput)
	}
	if s.ScheduledFor.Before(now.Add(MinLeadTime)) {
		return fmt.Errorf("%w: scheduled_for must be at least %s in the future; use mail.send for immediate delivery",
			contract.ErrInvalidInput, MinLeadTime)
	}
	return nil
}

// Outcome derives the terminal status from per-recipient counts after a
// sweeper pass. Counts that break the sent+failed <= attempted <= recipients
// invariant are rejected.
func (s *ScheduledSend) Outcome(attempted, sent, failed int) (Status, error) {
	if sent+failed > attempted || attempted > len(s.Recipients) || sent < 0 || failed < 0 {
		return "", fmt.Errorf("%w: inconsistent delivery counts attempted=%d sent=%d failed=%d recipients=%d",
			contract.ErrInvalidState, attempted, sent, failed, len(s.Recipients))
	}
	switch {
	case failed == 0 && sent > 0:
		return StatusSent, nil
	case sent == 0:
		return StatusFailed, nil
	default:
		return StatusPartial, nil
	}
}
