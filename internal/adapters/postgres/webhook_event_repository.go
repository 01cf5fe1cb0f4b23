package postgres

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// WebhookEventRepository implements ports.WebhookEventRepository using pgx
type WebhookEventRepository struct {
	db ports.DBPort
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db ports.DBPort) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) querier(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// MarkProcessed records the event id. ON CONFLICT DO NOTHING makes the
// insert the dedup point: zero rows affected means an earlier delivery of
// the same event already claimed it.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, db ports.DBTX, eventID, eventType string) (bool, error) {
	tag, err := r.querier(db).Exec(ctx,
		`INSERT INTO webhook_events (event_id, event_type, processed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeDatabaseError, "mark webhook event processed", err)
	}
	return tag.RowsAffected() > 0, nil
}
