package domain

import "time"

// Queue is a work bucket orders are routed into.
type Queue struct {
	ID                   int64
	Name                 string
	Priority             int16
	MaxAttempts          int
	RetryIntervalMinutes int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RetryInterval returns the delay before a called-back order should be retried.
func (q Queue) RetryInterval() time.Duration {
	if q.RetryIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(q.RetryIntervalMinutes) * time.Minute
}

// Exhausted reports whether liveAttempts reached the queue's attempt cap.
func (q Queue) Exhausted(liveAttempts int) bool {
	return q.MaxAttempts > 0 && liveAttempts >= q.MaxAttempts
}
