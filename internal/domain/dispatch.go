package domain

import (
	"time"

	"github.com/google/uuid"
)

// DispatchStatus is the outbox state of an ERP dispatch.
type DispatchStatus string

const (
	DispatchStatusPending    DispatchStatus = "pending"
	DispatchStatusEnqueued   DispatchStatus = "enqueued"
	DispatchStatusProcessing DispatchStatus = "processing"
	DispatchStatusSucceeded  DispatchStatus = "succeeded"
	DispatchStatusFailed     DispatchStatus = "failed"
	DispatchStatusSkipped    DispatchStatus = "skipped"
)

// IsOpen reports whether the job may still be delivered.
func (s DispatchStatus) IsOpen() bool {
	return s == DispatchStatusPending || s == DispatchStatusEnqueued || s == DispatchStatusProcessing
}

// DispatchJob records that an approved order must be sent to the ERP.
type DispatchJob struct {
	ID         uuid.UUID
	OrderID    int64
	Status     DispatchStatus
	Attempts   int
	RunAt      time.Time
	LastError  *string
	ExternalID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
