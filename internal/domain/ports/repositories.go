package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain"
)

// CustomerRepository defines the interface for customer persistence
type CustomerRepository interface {
	// GetByID retrieves a customer by its id. Returns CUSTOMER_NOT_FOUND
	// when no row exists.
	GetByID(ctx context.Context, db DBTX, id string) (*domain.Customer, error)

	// GetByGatewayID retrieves a customer by its gateway customer id
	GetByGatewayID(ctx context.Context, db DBTX, gatewayCustomerID string) (*domain.Customer, error)

	// Create inserts a new customer record
	Create(ctx context.Context, tx DBTX, customer *domain.Customer) error

	// Update persists the customer's billing fields
	Update(ctx context.Context, tx DBTX, customer *domain.Customer) error
}

// SubscriptionRepository defines the interface for subscription persistence.
// The store's unique index on (customer_id, name) is the sole arbiter for
// concurrent creates; Create maps that violation to SUB_DUPLICATE.
type SubscriptionRepository interface {
	// GetByCustomerAndName retrieves the subscription for a (customer, name)
	// pair. Returns SUB_NOT_FOUND when no row exists.
	GetByCustomerAndName(ctx context.Context, db DBTX, customerID, name string) (*domain.Subscription, error)

	// GetByGatewayID retrieves the subscription mirroring a gateway
	// subscription id
	GetByGatewayID(ctx context.Context, db DBTX, gatewaySubscriptionID string) (*domain.Subscription, error)

	// ListByCustomer lists the customer's subscriptions, newest first
	ListByCustomer(ctx context.Context, db DBTX, customerID string) ([]*domain.Subscription, error)

	// Create inserts a new subscription record, enforcing (customer, name)
	// uniqueness
	Create(ctx context.Context, tx DBTX, subscription *domain.Subscription) error

	// Update persists subscription fields
	Update(ctx context.Context, tx DBTX, subscription *domain.Subscription) error
}

// WebhookEventRepository records processed gateway event ids so duplicate
// webhook deliveries are acknowledged without reprocessing
type WebhookEventRepository interface {
	// MarkProcessed records the event id. Returns false when the id was
	// already recorded by an earlier delivery.
	MarkProcessed(ctx context.Context, db DBTX, eventID, eventType string) (bool, error)
}
