package domain

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
)

// CanTransitionTo reports whether a record in status s may be set to next.
// Re-applying the current status is allowed so that redelivered messages are
// harmless.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s == next {
		return true
	}
	return s == RequestStatusPending && (next == RequestStatusCompleted || next == RequestStatusFailed)
}

// SearchRequest is the persisted record of one submitted search.
type SearchRequest struct {
	ID         uuid.UUID
	Tags       []string
	FilePath   string
	Status     RequestStatus
	CreatedAt  time.Time
	FinishedAt *time.Time
}
