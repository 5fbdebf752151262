// Package routing decides how an order moves between queues and statuses.
//
// The functions here are pure: they read an order snapshot and the trigger table and return the
// actions to apply. Applying them, including the attempt ledger bookkeeping, is the caller's job.
package routing

import (
	"strings"

	"github.com/spec-kit/lead-router/internal/domain"
)

// Change describes what a commit did to the order's status.
type Change struct {
	Created        bool
	PreviousStatus domain.OrderStatus
}

// StatusChanged reports whether status triggers must run for order.
func (c Change) StatusChanged(order domain.Order) bool {
	return c.Created || c.PreviousStatus != order.Status
}

// Evaluate computes the actions caused by a create or a status change.
//
// The result holds at most one of each kind, in apply order: UnlinkQueue, ClearLease, MoveToQueue.
// Triggers are walked in precedence order (ascending priority, then id); when several fire, the last
// one decides the target queue.
func Evaluate(order domain.Order, change Change, triggers []domain.Trigger) []domain.RoutingAction {
	if !change.StatusChanged(order) {
		return nil
	}

	var actions []domain.RoutingAction
	if order.Status.LeavesQueue() && order.CurrentQueueID != nil {
		actions = append(actions, domain.RoutingAction{Kind: domain.RoutingUnlinkQueue})
	}

	ordered := append([]domain.Trigger(nil), triggers...)
	domain.SortTriggers(ordered)

	var (
		move       *domain.RoutingAction
		clearLease bool
		clearedBy  int64
	)
	for _, trigger := range ordered {
		if !trigger.Kind.IsStatusKind() || trigger.MatchStatus == nil || *trigger.MatchStatus != order.Status {
			continue
		}
		if trigger.Action != domain.TriggerActionMoveToQueue || trigger.TargetQueueID == nil {
			continue
		}

		switch trigger.Kind {
		case domain.TriggerOnLeadStatusWithAttribution:
			if !MatchesAttribution(order, trigger) {
				continue
			}
			clearLease = true
			clearedBy = trigger.ID
		case domain.TriggerOnLeadStatus:
			if order.Status != domain.OrderStatusRecall {
				clearLease = true
				clearedBy = trigger.ID
			}
		}
		move = &domain.RoutingAction{
			Kind:      domain.RoutingMoveToQueue,
			QueueID:   *trigger.TargetQueueID,
			TriggerID: trigger.ID,
		}
	}

	if clearLease {
		actions = append(actions, domain.RoutingAction{Kind: domain.RoutingClearLease, TriggerID: clearedBy})
	}
	if move != nil {
		actions = append(actions, *move)
	}
	return actions
}

// MatchesAttribution reports whether any non-empty attribution field of the order equals the
// trigger's non-empty counterpart after trimming.
func MatchesAttribution(order domain.Order, trigger domain.Trigger) bool {
	return attributionEqual(order.LeadWebID, trigger.MatchWebID) ||
		attributionEqual(order.LeadSite, trigger.MatchSite) ||
		attributionEqual(order.CampaignID, trigger.MatchCampaignID)
}

func attributionEqual(orderValue, triggerValue string) bool {
	o := strings.TrimSpace(orderValue)
	t := strings.TrimSpace(triggerValue)
	return o != "" && t != "" && o == t
}

// EvaluateExhaustion computes the actions for an order whose current queue may have run out of attempts.
//
// It returns nothing unless the order sits in queue and liveAttempts reached queue.MaxAttempts.
// Queue-exhausted triggers for that queue are walked in precedence order against a simulated copy of
// the order, so a trigger whose target already holds is skipped.
func EvaluateExhaustion(order domain.Order, queue domain.Queue, liveAttempts int, triggers []domain.Trigger) []domain.RoutingAction {
	if !order.InQueue(queue.ID) || !queue.Exhausted(liveAttempts) {
		return nil
	}

	ordered := append([]domain.Trigger(nil), triggers...)
	domain.SortTriggers(ordered)

	currentQueue := queue.ID
	inQueue := true
	status := order.Status

	var actions []domain.RoutingAction
	for _, trigger := range ordered {
		if trigger.Kind != domain.TriggerOnQueueExhausted || trigger.SourceQueueID == nil || *trigger.SourceQueueID != queue.ID {
			continue
		}
		switch trigger.Action {
		case domain.TriggerActionMoveToQueue:
			if trigger.TargetQueueID == nil {
				continue
			}
			if inQueue && *trigger.TargetQueueID == currentQueue {
				continue
			}
			currentQueue = *trigger.TargetQueueID
			inQueue = true
			actions = append(actions, domain.RoutingAction{
				Kind:      domain.RoutingMoveToQueue,
				QueueID:   currentQueue,
				TriggerID: trigger.ID,
			})
		case domain.TriggerActionSetStatus:
			if trigger.TargetStatus == nil || *trigger.TargetStatus == status {
				continue
			}
			status = *trigger.TargetStatus
			actions = append(actions, domain.RoutingAction{
				Kind:      domain.RoutingSetStatus,
				Status:    status,
				TriggerID: trigger.ID,
			})
			if inQueue {
				inQueue = false
				actions = append(actions, domain.RoutingAction{Kind: domain.RoutingUnlinkQueue, TriggerID: trigger.ID})
			}
		}
	}
	return actions
}
