package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// SubscriptionRepository implements ports.SubscriptionRepository using pgx.
// The unique index on (customer_id, name) is what actually arbitrates
// concurrent creation attempts; Create surfaces a losing attempt as
// SUB_DUPLICATE and supersedes rows whose subscription has already ended.
type SubscriptionRepository struct {
	db ports.DBPort
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) querier(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

const subscriptionColumns = `id, customer_id, name, gateway_subscription_id, plan, quantity, trial_ends_at, ends_at, created_at, updated_at`

// GetByCustomerAndName retrieves the subscription for a (customer, name) pair
func (r *SubscriptionRepository) GetByCustomerAndName(ctx context.Context, db ports.DBTX, customerID, name string) (*domain.Subscription, error) {
	row := r.querier(db).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE customer_id = $1 AND name = $2`,
		customerID, name)
	return r.scanSubscription(row)
}

// GetByGatewayID retrieves the subscription mirroring a gateway subscription id
func (r *SubscriptionRepository) GetByGatewayID(ctx context.Context, db ports.DBTX, gatewaySubscriptionID string) (*domain.Subscription, error) {
	row := r.querier(db).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE gateway_subscription_id = $1`,
		gatewaySubscriptionID)
	return r.scanSubscription(row)
}

// ListByCustomer lists the customer's subscriptions, newest first
func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, db ports.DBTX, customerID string) ([]*domain.Subscription, error) {
	rows, err := r.querier(db).Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list subscriptions", err)
	}
	defer rows.Close()

	var subscriptions []*domain.Subscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list subscriptions", err)
	}

	return subscriptions, nil
}

// Create inserts a new subscription record, enforcing (customer, name)
// uniqueness. A prior subscription under the same name that has already ended
// is superseded in place; a live one (active, trialing, or on grace period)
// makes the conflicting insert report SUB_DUPLICATE. Racing creates resolve
// on the unique index: the loser re-evaluates against the winner's live row
// and gets SUB_DUPLICATE.
func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, subscription *domain.Subscription) error {
	tag, err := r.querier(tx).Exec(ctx,
		`INSERT INTO subscriptions (id, customer_id, name, gateway_subscription_id, plan, quantity, trial_ends_at, ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (customer_id, name) DO UPDATE
		 SET id = EXCLUDED.id,
		     gateway_subscription_id = EXCLUDED.gateway_subscription_id,
		     plan = EXCLUDED.plan,
		     quantity = EXCLUDED.quantity,
		     trial_ends_at = EXCLUDED.trial_ends_at,
		     ends_at = EXCLUDED.ends_at,
		     created_at = EXCLUDED.created_at,
		     updated_at = EXCLUDED.updated_at
		 WHERE subscriptions.ends_at IS NOT NULL AND subscriptions.ends_at <= now()`,
		subscription.ID,
		subscription.CustomerID,
		subscription.Name,
		subscription.GatewaySubscriptionID,
		subscription.Plan,
		subscription.Quantity,
		nullTimestamptz(subscription.TrialEndsAt),
		nullTimestamptz(subscription.EndsAt),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSubscription.
				WithDetail("customer_id", subscription.CustomerID).
				WithDetail("name", subscription.Name)
		}
		return domain.WrapError(domain.ErrorCodeDatabaseError, "create subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateSubscription.
			WithDetail("customer_id", subscription.CustomerID).
			WithDetail("name", subscription.Name)
	}
	return nil
}

// Update persists subscription fields
func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, subscription *domain.Subscription) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE subscriptions
		 SET plan = $2, quantity = $3, trial_ends_at = $4, ends_at = $5, updated_at = $6
		 WHERE id = $1`,
		subscription.ID,
		subscription.Plan,
		subscription.Quantity,
		nullTimestamptz(subscription.TrialEndsAt),
		nullTimestamptz(subscription.EndsAt),
		subscription.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound.WithDetail("subscription_id", subscription.ID)
	}
	return nil
}

func (r *SubscriptionRepository) scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		s           domain.Subscription
		trialEndsAt pgtype.Timestamptz
		endsAt      pgtype.Timestamptz
	)

	err := row.Scan(&s.ID, &s.CustomerID, &s.Name, &s.GatewaySubscriptionID, &s.Plan, &s.Quantity, &trialEndsAt, &endsAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan subscription", err)
	}

	s.TrialEndsAt = timestamptzPtr(trialEndsAt)
	s.EndsAt = timestamptzPtr(endsAt)

	return &s, nil
}
