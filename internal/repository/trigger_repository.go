package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/lead-router/internal/domain"
)

// TriggerRepository reads the routing rule table in precedence order.
type TriggerRepository interface {
	ListForStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Trigger, error)
	ListForExhaustedQueue(ctx context.Context, queueID int64) ([]domain.Trigger, error)
}

const triggerColumns = `id, kind, priority, match_status, match_web_id, match_site, match_campaign_id,
               source_queue_id, action, target_queue_id, target_status, created_at`

type triggerRepository struct {
	db DBTX
}

// NewTriggerRepository instantiates the repository.
func NewTriggerRepository(db DBTX) TriggerRepository {
	return &triggerRepository{db: db}
}

func (r *triggerRepository) ListForStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers
        WHERE kind IN ('on_lead_status', 'on_lead_status_with_attribution') AND match_status=$1
        ORDER BY priority ASC, id ASC`
	return r.list(ctx, query, status)
}

func (r *triggerRepository) ListForExhaustedQueue(ctx context.Context, queueID int64) ([]domain.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers
        WHERE kind = 'on_queue_exhausted' AND source_queue_id=$1
        ORDER BY priority ASC, id ASC`
	return r.list(ctx, query, queueID)
}

func (r *triggerRepository) list(ctx context.Context, query string, arg any) ([]domain.Trigger, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTriggers(rows)
}

func scanTriggers(rows pgx.Rows) ([]domain.Trigger, error) {
	var result []domain.Trigger
	for rows.Next() {
		var trigger domain.Trigger
		if err := rows.Scan(
			&trigger.ID,
			&trigger.Kind,
			&trigger.Priority,
			&trigger.MatchStatus,
			&trigger.MatchWebID,
			&trigger.MatchSite,
			&trigger.MatchCampaignID,
			&trigger.SourceQueueID,
			&trigger.Action,
			&trigger.TargetQueueID,
			&trigger.TargetStatus,
			&trigger.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, trigger)
	}
	return result, rows.Err()
}
