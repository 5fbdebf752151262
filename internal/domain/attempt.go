package domain

import "time"

// AttemptState tags an attempt row as counted or not.
type AttemptState string

const (
	AttemptStateLive        AttemptState = "live"
	AttemptStateInvalidated AttemptState = "invalidated"
)

// Attempt records an order being worked inside a queue.
type Attempt struct {
	ID                    int64
	OrderID               int64
	QueueID               int64
	OperatorID            *int64
	IsFirstAttemptInQueue bool
	State                 AttemptState
	CreatedAt             time.Time
	InvalidatedAt         *time.Time
}

// IsLive reports whether the attempt counts toward the queue's cap.
func (a Attempt) IsLive() bool {
	return a.State == AttemptStateLive
}
