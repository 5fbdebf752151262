package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/events"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/routing"
	apperrors "github.com/spec-kit/lead-router/pkg/util/errorutil"
	"github.com/spec-kit/lead-router/pkg/util/phone"
)

// Deliverer runs the dispatch step for an outbox job.
type Deliverer interface {
	Deliver(ctx context.Context, jobID uuid.UUID) (*DispatchOutcome, error)
}

// CommitInput is one lead submission, from the supervisor form or the call form.
type CommitInput struct {
	// OrderID is nil for a new order.
	OrderID       *int64
	FromCallForm  bool
	Status        domain.OrderStatus   `validate:"required,min=1,max=12"`
	RejectReason  *domain.RejectReason `validate:"omitempty,min=1,max=16"`
	LeadWebID     string               `validate:"max=64"`
	LeadSite      string               `validate:"max=255"`
	CampaignID    string               `validate:"max=64"`
	LeadPartnerID string               `validate:"max=64"`
	ForeignID     *int64               `validate:"omitempty,gt=0"`
	LeadProductID *int64               `validate:"omitempty,gt=0"`
	TotalPrice    float64              `validate:"gte=0"`
	LeadPrice     float64              `validate:"gte=0"`
	LeadRevenue   float64              `validate:"gte=0"`
	Customer      CustomerInput
	Detail        DetailInput
	Items         []LineItemInput `validate:"dive"`
}

// CustomerInput carries buyer contact data.
type CustomerInput struct {
	Name        string `validate:"required,max=255"`
	Phone       string `validate:"required,max=32"`
	Email       string `validate:"omitempty,email,max=255"`
	ExtraPhones string `validate:"max=255"`
}

// DetailInput carries delivery data.
type DetailInput struct {
	AddressByClient string `validate:"max=1000"`
	AddressInfo     domain.AddressInfo
	Comment         string `validate:"max=2000"`
}

// LineItemInput is one submitted product row.
type LineItemInput struct {
	ProductID   int64              `validate:"required,gt=0"`
	ProductType domain.ProductType `validate:"required,min=1,max=4"`
	Quantity    int                `validate:"required,min=1"`
	PriceForOne float64            `validate:"gte=0"`
	TotalPrice  float64            `validate:"gte=0"`
}

// CommitResult is what a successful commit produced.
type CommitResult struct {
	Order    *domain.Order
	Created  bool
	Attempt  *domain.Attempt
	Actions  []domain.RoutingAction
	JobID    *uuid.UUID
	Warnings []string
}

// CommitService runs the order commit pipeline.
type CommitService struct {
	store         repository.TxStore
	queues        *QueueAssignmentService
	deliverer     Deliverer
	inline        bool
	dispatchDelay time.Duration
	validate      *validator.Validate
	phoneRegion   string
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           Clock
}

// CommitDependencies bundles collaborators for the commit pipeline.
type CommitDependencies struct {
	Store     repository.TxStore
	Queues    *QueueAssignmentService
	Deliverer Deliverer
	// InlineDispatch delivers a freshly written outbox job right after commit.
	InlineDispatch bool
	// DispatchDelay postpones the relay's first look at an inline job so the two do not race.
	DispatchDelay time.Duration
	Validator     *validator.Validate
	PhoneRegion   string
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Clock         Clock
}

// NewCommitService constructs the pipeline.
func NewCommitService(deps CommitDependencies) *CommitService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock.orDefault()
	queues := deps.Queues
	if queues == nil {
		queues = NewQueueAssignmentService(clock, logger)
	}
	validate := deps.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &CommitService{
		store:         deps.Store,
		queues:        queues,
		deliverer:     deps.Deliverer,
		inline:        deps.InlineDispatch,
		dispatchDelay: deps.DispatchDelay,
		validate:      validate,
		phoneRegion:   deps.PhoneRegion,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        logger,
		now:           clock,
	}
}

// commitState tracks one pipeline run inside its transaction.
type commitState struct {
	order          *domain.Order
	created        bool
	previousStatus domain.OrderStatus
	previousQueue  *int64
	attempt        *domain.Attempt
	actions        []domain.RoutingAction
	job            *domain.DispatchJob
}

// Commit validates and persists one lead submission, then routes it.
// Everything up to the outbox write happens in one transaction; the ERP call runs after commit.
func (s *CommitService) Commit(ctx context.Context, input CommitInput, actor Actor) (*CommitResult, error) {
	if err := s.validateInput(ctx, &input); err != nil {
		return nil, err
	}

	var state commitState
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		state = commitState{}
		if err := s.loadOrder(ctx, tx, input, actor, &state); err != nil {
			return err
		}
		if err := s.persistOrder(ctx, tx, input, actor, &state); err != nil {
			return err
		}
		if err := s.persistSubRecords(ctx, tx, input, state.order.ID); err != nil {
			return err
		}
		if err := s.replaceLineItems(ctx, tx, input.Items, state.order.ID); err != nil {
			return err
		}
		if err := s.route(ctx, tx, input, &state); err != nil {
			return err
		}
		return s.writeOutbox(ctx, tx, &state)
	})
	if err != nil {
		s.metrics.RecordCommit("rejected")
		return nil, err
	}

	result := &CommitResult{
		Order:   state.order,
		Created: state.created,
		Attempt: state.attempt,
		Actions: state.actions,
	}
	s.metrics.RecordCommit(state.order.Status.String())
	s.logger.Info("order committed",
		zap.Int64("order_id", state.order.ID),
		zap.Bool("created", state.created),
		zap.Bool("call_form", input.FromCallForm),
		zap.String("status", state.order.Status.String()),
		zap.Int("routing_actions", len(state.actions)))
	s.publishCommitEvents(ctx, actor, &state)

	if state.job != nil {
		jobID := state.job.ID
		result.JobID = &jobID
		if s.inline && s.deliverer != nil {
			s.deliverInline(ctx, jobID, result)
		}
	}
	return result, nil
}

func (s *CommitService) validateInput(ctx context.Context, input *CommitInput) error {
	if err := s.validate.StructCtx(ctx, input); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			details := make(map[string]any, len(validationErrs))
			for _, fieldErr := range validationErrs {
				details[fieldPath(fieldErr.Namespace())] = fieldErr.Tag()
			}
			return apperrors.NewValidationError("invalid order payload", details)
		}
		return apperrors.NewValidationError(err.Error(), nil)
	}

	if !input.Status.IsValid() {
		return apperrors.NewValidationError("invalid order payload", map[string]any{"status": "oneof"})
	}
	if input.RejectReason != nil && input.Status != domain.OrderStatusReject {
		return apperrors.NewValidationError("invalid order payload", map[string]any{"reject_reason": "only allowed with Reject"})
	}
	if input.FromCallForm && input.OrderID == nil {
		return apperrors.NewValidationError("call form submissions must reference an order", map[string]any{"order_id": "required"})
	}

	input.Customer.Name = strings.TrimSpace(input.Customer.Name)
	input.Customer.Phone = phone.NormalizeE164(input.Customer.Phone, s.phoneRegion)
	input.Customer.Email = strings.TrimSpace(input.Customer.Email)
	return nil
}

// fieldPath turns "CommitInput.Customer.Name" into "customer.name".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		namespace = namespace[idx+1:]
	}
	return strings.ToLower(namespace)
}

func (s *CommitService) loadOrder(ctx context.Context, tx repository.Store, input CommitInput, actor Actor, state *commitState) error {
	if input.OrderID == nil {
		state.order = &domain.Order{}
		state.created = true
		return nil
	}

	order, err := tx.Orders().GetForUpdate(ctx, *input.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("order", map[string]any{"order_id": *input.OrderID})
		}
		return fmt.Errorf("lock order: %w", err)
	}
	state.order = order
	state.previousStatus = order.Status
	if order.CurrentQueueID != nil {
		prev := *order.CurrentQueueID
		state.previousQueue = &prev
	}

	if !input.FromCallForm {
		return nil
	}
	if !order.LeaseHeldBy(actor.OperatorID) {
		return apperrors.NewConflict("order is not leased to this operator", map[string]any{"order_id": order.ID})
	}
	if order.BlockedUntil == nil && order.CurrentQueueID != nil {
		queue, err := tx.Queues().GetByID(ctx, *order.CurrentQueueID)
		if err != nil {
			return fmt.Errorf("load queue: %w", err)
		}
		until := s.now().Add(queue.RetryInterval())
		order.BlockedUntil = &until
	}
	return nil
}

func (s *CommitService) persistOrder(ctx context.Context, tx repository.Store, input CommitInput, actor Actor, state *commitState) error {
	order := state.order
	statusChanges := state.created || input.Status != state.previousStatus
	if statusChanges && !auth.CanSetStatus(actor.Role, input.Status) {
		return apperrors.NewBusinessRule("status not permitted for role", map[string]any{
			"status": input.Status.String(),
			"role":   string(actor.Role),
		})
	}
	if !state.created && state.previousStatus.SetByDispatch(input.Status) {
		return apperrors.NewBusinessRule("pending is set by ERP dispatch", map[string]any{
			"from": state.previousStatus.String(),
			"to":   input.Status.String(),
		})
	}
	if !state.created && actor.Role != domain.RoleAdmin && !state.previousStatus.CanTransitionTo(input.Status) {
		return apperrors.NewBusinessRule("status transition not allowed", map[string]any{
			"from": state.previousStatus.String(),
			"to":   input.Status.String(),
		})
	}

	order.Status = input.Status
	order.RejectReason = input.RejectReason
	order.LeadWebID = strings.TrimSpace(input.LeadWebID)
	order.LeadSite = strings.TrimSpace(input.LeadSite)
	order.CampaignID = strings.TrimSpace(input.CampaignID)
	order.LeadPartnerID = strings.TrimSpace(input.LeadPartnerID)
	order.ForeignID = input.ForeignID
	order.LeadProductID = input.LeadProductID
	order.TotalPrice = input.TotalPrice
	order.LeadPrice = input.LeadPrice
	order.LeadRevenue = input.LeadRevenue
	if input.FromCallForm {
		order.CurrentOperatorID = nil
	}

	if state.created {
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
	} else if err := tx.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if input.FromCallForm && order.CurrentQueueID != nil {
		operatorID := actor.OperatorID
		attempt, err := s.queues.LinkToQueue(ctx, tx, order, *order.CurrentQueueID, &operatorID)
		if err != nil {
			return err
		}
		state.attempt = attempt
	}
	return nil
}

func (s *CommitService) persistSubRecords(ctx context.Context, tx repository.Store, input CommitInput, orderID int64) error {
	customer := &domain.Customer{
		OrderID:     orderID,
		Name:        input.Customer.Name,
		Phone:       input.Customer.Phone,
		Email:       input.Customer.Email,
		ExtraPhones: strings.TrimSpace(input.Customer.ExtraPhones),
	}
	if err := tx.Customers().Upsert(ctx, customer); err != nil {
		return fmt.Errorf("save customer: %w", err)
	}

	detail := &domain.OrderDetail{
		OrderID:         orderID,
		AddressByClient: strings.TrimSpace(input.Detail.AddressByClient),
		AddressInfo:     input.Detail.AddressInfo,
		Comment:         strings.TrimSpace(input.Detail.Comment),
	}
	if err := tx.Details().Upsert(ctx, detail); err != nil {
		return fmt.Errorf("save order detail: %w", err)
	}
	return nil
}

func (s *CommitService) replaceLineItems(ctx context.Context, tx repository.Store, inputs []LineItemInput, orderID int64) error {
	if err := tx.LineItems().DeleteByOrder(ctx, orderID); err != nil {
		return fmt.Errorf("clear line items: %w", err)
	}

	items := make([]domain.LineItem, 0, len(inputs))
	for _, in := range inputs {
		item := domain.LineItem{
			OrderID:     orderID,
			ProductID:   in.ProductID,
			ProductType: in.ProductType,
			Quantity:    in.Quantity,
			PriceForOne: in.PriceForOne,
			TotalPrice:  in.TotalPrice,
		}
		if err := tx.LineItems().Insert(ctx, &item); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
		items = append(items, item)
	}

	count, err := tx.LineItems().CountByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("count line items: %w", err)
	}
	if count != len(inputs) {
		return apperrors.NewBusinessRule("line item count mismatch", map[string]any{
			"submitted": len(inputs),
			"stored":    count,
		})
	}
	if !domain.HasPaidItems(items) {
		return apperrors.NewBusinessRule("order needs at least one paid line item", map[string]any{"items": "no paid items"})
	}
	return nil
}

// route applies status triggers, then queue-exhaustion triggers on the settled queue.
func (s *CommitService) route(ctx context.Context, tx repository.Store, input CommitInput, state *commitState) error {
	order := state.order
	change := routing.Change{Created: state.created, PreviousStatus: state.previousStatus}

	if change.StatusChanged(*order) {
		triggers, err := tx.Triggers().ListForStatus(ctx, order.Status)
		if err != nil {
			return fmt.Errorf("load status triggers: %w", err)
		}
		if err := s.apply(ctx, tx, state, routing.Evaluate(*order, change, triggers)); err != nil {
			return err
		}
	}

	// Exhaustion is checked only for new leads and call-form commits.
	if order.CurrentQueueID == nil || !(state.created || input.FromCallForm) {
		return nil
	}
	queue, err := tx.Queues().GetByID(ctx, *order.CurrentQueueID)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	live, err := s.queues.LiveAttemptCount(ctx, tx, order.ID, queue.ID)
	if err != nil {
		return err
	}
	if !queue.Exhausted(live) {
		return nil
	}
	triggers, err := tx.Triggers().ListForExhaustedQueue(ctx, queue.ID)
	if err != nil {
		return fmt.Errorf("load exhaustion triggers: %w", err)
	}
	return s.apply(ctx, tx, state, routing.EvaluateExhaustion(*order, *queue, live, triggers))
}

func (s *CommitService) apply(ctx context.Context, tx repository.Store, state *commitState, actions []domain.RoutingAction) error {
	order := state.order
	for _, action := range actions {
		switch action.Kind {
		case domain.RoutingUnlinkQueue:
			if err := s.queues.UnlinkFromQueue(ctx, tx, order); err != nil {
				return err
			}
		case domain.RoutingClearLease:
			order.BlockedUntil = nil
			if err := tx.Orders().UpdateLease(ctx, order.ID, order.CurrentOperatorID, nil); err != nil {
				return fmt.Errorf("clear lease: %w", err)
			}
		case domain.RoutingMoveToQueue:
			if err := s.queues.MoveToQueue(ctx, tx, order, action.QueueID); err != nil {
				return err
			}
		case domain.RoutingSetStatus:
			order.Status = action.Status
			if err := tx.Orders().UpdateStatus(ctx, order.ID, action.Status); err != nil {
				return fmt.Errorf("set status: %w", err)
			}
		default:
			return fmt.Errorf("unknown routing action %q", action.Kind)
		}
		s.metrics.RecordRouting(string(action.Kind))
		state.actions = append(state.actions, action)
	}
	return nil
}

func (s *CommitService) writeOutbox(ctx context.Context, tx repository.Store, state *commitState) error {
	if state.order.Status != domain.OrderStatusApproved {
		return nil
	}
	runAt := s.now()
	if s.inline && s.deliverer != nil {
		runAt = runAt.Add(s.dispatchDelay)
	}
	job, _, err := tx.Dispatches().Enqueue(ctx, state.order.ID, runAt)
	if err != nil {
		return fmt.Errorf("write dispatch outbox: %w", err)
	}
	state.job = job
	return nil
}

func (s *CommitService) deliverInline(ctx context.Context, jobID uuid.UUID, result *CommitResult) {
	outcome, err := s.deliverer.Deliver(ctx, jobID)
	if err != nil {
		s.logger.Warn("inline dispatch failed", zap.String("job_id", jobID.String()), zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("dispatch failed: %v", err))
		return
	}
	if outcome.Order != nil {
		result.Order = outcome.Order
	}
	if outcome.Err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("dispatch failed: %v", outcome.Err))
	}
}

func (s *CommitService) publishCommitEvents(ctx context.Context, actor Actor, state *commitState) {
	if s.dispatcher == nil {
		return
	}
	order := state.order
	eventActor := actor.eventActor()

	if state.created {
		_ = s.dispatcher.Publish(ctx, events.NewEvent(events.EventOrderCreated, order.ID, eventActor,
			events.OrderCreatedPayload{Status: order.Status, LeadWebID: order.LeadWebID, QueueID: order.CurrentQueueID}))
	} else if order.Status != state.previousStatus {
		_ = s.dispatcher.Publish(ctx, events.NewEvent(events.EventOrderStatusChanged, order.ID, eventActor,
			events.OrderStatusChangedPayload{OldStatus: state.previousStatus, NewStatus: order.Status}))
	}

	if !sameQueue(state.previousQueue, order.CurrentQueueID) {
		_ = s.dispatcher.Publish(ctx, events.NewEvent(events.EventOrderQueueChanged, order.ID, eventActor,
			events.OrderQueueChangedPayload{OldQueueID: state.previousQueue, NewQueueID: order.CurrentQueueID}))
	}
}

func sameQueue(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
