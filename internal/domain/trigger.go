package domain

import (
	"sort"
	"time"
)

// TriggerKind selects the condition a trigger matches on.
type TriggerKind string

const (
	TriggerOnLeadStatus                TriggerKind = "on_lead_status"
	TriggerOnLeadStatusWithAttribution TriggerKind = "on_lead_status_with_attribution"
	TriggerOnQueueExhausted            TriggerKind = "on_queue_exhausted"
)

// IsStatusKind reports whether the trigger fires on a status change.
func (k TriggerKind) IsStatusKind() bool {
	return k == TriggerOnLeadStatus || k == TriggerOnLeadStatusWithAttribution
}

// TriggerAction is what a fired trigger does.
type TriggerAction string

const (
	TriggerActionMoveToQueue TriggerAction = "move_to_queue"
	TriggerActionSetStatus   TriggerAction = "set_status"
)

// Trigger is one row of the routing rule table.
type Trigger struct {
	ID              int64
	Kind            TriggerKind
	Priority        int
	MatchStatus     *OrderStatus
	MatchWebID      string
	MatchSite       string
	MatchCampaignID string
	SourceQueueID   *int64
	Action          TriggerAction
	TargetQueueID   *int64
	TargetStatus    *OrderStatus
	CreatedAt       time.Time
}

// SortTriggers orders triggers by ascending priority then id, so later entries take precedence.
func SortTriggers(triggers []Trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		if triggers[i].Priority != triggers[j].Priority {
			return triggers[i].Priority < triggers[j].Priority
		}
		return triggers[i].ID < triggers[j].ID
	})
}

// RoutingActionKind enumerates the mutations the routing engine can request.
type RoutingActionKind string

const (
	RoutingMoveToQueue RoutingActionKind = "move_to_queue"
	RoutingSetStatus   RoutingActionKind = "set_status"
	RoutingUnlinkQueue RoutingActionKind = "unlink_queue"
	RoutingClearLease  RoutingActionKind = "clear_lease"
)

// RoutingAction is a single mutation computed by the routing engine.
type RoutingAction struct {
	Kind      RoutingActionKind
	QueueID   int64
	Status    OrderStatus
	TriggerID int64
}
