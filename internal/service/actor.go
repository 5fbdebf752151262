package service

import (
	"time"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/events"
)

// Actor is the operator on whose behalf a service call runs.
type Actor struct {
	OperatorID int64
	Role       domain.Role
}

func (a Actor) eventActor() events.Actor {
	if a.OperatorID == 0 {
		return events.Actor{Role: a.Role}
	}
	id := a.OperatorID
	return events.Actor{OperatorID: &id, Role: a.Role}
}

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func (c Clock) orDefault() Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}
