package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/observability"
	"github.com/kevin07696/billing-service/pkg/timeutil"
	"github.com/shopspring/decimal"
)

// SubscriptionBuilder accumulates the parameters of a new subscription and
// creates it remotely and locally on Create. Obtain one from
// Service.NewSubscription; the zero value is not usable.
type SubscriptionBuilder struct {
	svc        *Service
	customerID string
	name       string
	plan       string
	coupon     string
	metadata   map[string]string
	trialEnd   *time.Time
	taxPercent *decimal.Decimal
	quantity   int
	prorate    bool
	skipTrial  bool
}

// NewSubscription starts a subscription builder for the customer. name
// distinguishes parallel subscriptions ("default", "metered"); plan is the
// gateway plan identifier.
func (s *Service) NewSubscription(customerID, name, plan string) *SubscriptionBuilder {
	return &SubscriptionBuilder{
		svc:        s,
		customerID: customerID,
		name:       name,
		plan:       plan,
		quantity:   1,
		prorate:    s.prorate,
	}
}

// TrialDays sets the trial to end the given number of days from now
func (b *SubscriptionBuilder) TrialDays(days int) *SubscriptionBuilder {
	t := timeutil.Now().AddDate(0, 0, days)
	b.trialEnd = &t
	return b
}

// TrialUntil sets an explicit trial end timestamp
func (b *SubscriptionBuilder) TrialUntil(t time.Time) *SubscriptionBuilder {
	u := timeutil.ToUTC(t)
	b.trialEnd = &u
	return b
}

// SkipTrial forces the subscription to start without a trial, overriding any
// entity-level trial the customer may still be on
func (b *SubscriptionBuilder) SkipTrial() *SubscriptionBuilder {
	b.skipTrial = true
	b.trialEnd = nil
	return b
}

// Quantity sets the seat count
func (b *SubscriptionBuilder) Quantity(quantity int) *SubscriptionBuilder {
	b.quantity = quantity
	return b
}

// Coupon applies a coupon to the subscription
func (b *SubscriptionBuilder) Coupon(coupon string) *SubscriptionBuilder {
	b.coupon = coupon
	return b
}

// TaxPercent sets the tax rate applied on top of the plan price
func (b *SubscriptionBuilder) TaxPercent(percent decimal.Decimal) *SubscriptionBuilder {
	b.taxPercent = &percent
	return b
}

// Prorate enables proration for this subscription
func (b *SubscriptionBuilder) Prorate() *SubscriptionBuilder {
	b.prorate = true
	return b
}

// NoProrate disables proration for this subscription
func (b *SubscriptionBuilder) NoProrate() *SubscriptionBuilder {
	b.prorate = false
	return b
}

// Metadata attaches key/value pairs to the gateway subscription
func (b *SubscriptionBuilder) Metadata(metadata map[string]string) *SubscriptionBuilder {
	b.metadata = metadata
	return b
}

// Create creates the subscription on the gateway and mirrors it locally.
// token optionally carries a payment source; it is required when the customer
// does not exist on the gateway yet and no trial defers payment.
//
// An existing non-ended subscription under the same name fails fast with
// SUB_DUPLICATE. The pre-check is advisory; the store's unique index decides
// races, and a concurrent insert surfaces as the same error.
func (b *SubscriptionBuilder) Create(ctx context.Context, token string) (*domain.Subscription, error) {
	if b.customerID == "" || b.name == "" || b.plan == "" {
		return nil, domain.NewBillingError(domain.ErrorCodeInvalidArgument,
			"customer id, subscription name, and plan are required")
	}
	if b.quantity < 1 {
		return nil, domain.NewBillingError(domain.ErrorCodeInvalidArgument,
			"quantity must be at least 1").WithDetail("quantity", b.quantity)
	}

	svc := b.svc

	customer, err := svc.customerRepo.GetByID(ctx, nil, b.customerID)
	if err != nil {
		return nil, err
	}

	existing, err := svc.subRepo.GetByCustomerAndName(ctx, nil, b.customerID, b.name)
	if err != nil && !domain.IsNotFoundError(err) {
		return nil, err
	}
	if existing != nil && !existing.Ended() {
		return nil, domain.ErrDuplicateSubscription.
			WithDetail("customer_id", b.customerID).
			WithDetail("name", b.name)
	}

	if err := b.ensureGatewayCustomer(ctx, customer, token); err != nil {
		return nil, err
	}

	trialEnd := b.resolveTrialEnd(customer)

	gwSub, err := svc.gateway.CreateSubscription(ctx, &ports.CreateSubscriptionRequest{
		CustomerID: *customer.GatewayCustomerID,
		Plan:       b.plan,
		Quantity:   b.quantity,
		TrialEnd:   trialEnd,
		Coupon:     b.coupon,
		TaxPercent: b.taxPercent,
		Prorate:    b.prorate,
		Metadata:   b.metadata,
	})
	if err != nil {
		return nil, err
	}

	now := timeutil.Now()
	sub := &domain.Subscription{
		ID:                    uuid.New().String(),
		CustomerID:            b.customerID,
		Name:                  b.name,
		GatewaySubscriptionID: gwSub.ID,
		Plan:                  b.plan,
		Quantity:              b.quantity,
		TrialEndsAt:           trialEnd,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := svc.subRepo.Create(ctx, nil, sub); err != nil {
		// The gateway subscription exists without a local mirror. Keep its id
		// in the log so it can be reconciled or cancelled.
		svc.logger.Error("gateway subscription created but not persisted",
			ports.String("customer_id", b.customerID),
			ports.String("name", b.name),
			ports.String("gateway_subscription_id", gwSub.ID),
			ports.Err(err))
		return nil, err
	}

	observability.RecordSubscriptionCreated()
	svc.logger.Info("subscription created",
		ports.String("customer_id", b.customerID),
		ports.String("name", b.name),
		ports.String("plan", b.plan),
		ports.String("gateway_subscription_id", gwSub.ID))

	return sub, nil
}

// ensureGatewayCustomer makes sure the customer exists on the gateway,
// creating it (and attaching token, if any) when missing. When the customer
// already exists and a token was given, the card on file is replaced.
func (b *SubscriptionBuilder) ensureGatewayCustomer(ctx context.Context, customer *domain.Customer, token string) error {
	svc := b.svc

	if !customer.HasGatewayCustomer() {
		_, err := svc.CreateAsGatewayCustomer(ctx, customer.ID, token, CreateCustomerOptions{})
		if err != nil {
			return err
		}
		// Re-read so the builder sees the persisted gateway id
		refreshed, err := svc.customerRepo.GetByID(ctx, nil, customer.ID)
		if err != nil {
			return err
		}
		*customer = *refreshed
		return nil
	}

	if token != "" {
		return svc.UpdateCard(ctx, customer.ID, token)
	}
	return nil
}

// resolveTrialEnd picks the trial end for the new subscription: an explicit
// builder setting wins, then a still-running entity-level trial carries over,
// otherwise no trial. SkipTrial suppresses all of it.
func (b *SubscriptionBuilder) resolveTrialEnd(customer *domain.Customer) *time.Time {
	if b.skipTrial {
		return nil
	}
	if b.trialEnd != nil {
		return b.trialEnd
	}
	if customer.OnGenericTrial() {
		t := timeutil.ToUTC(*customer.TrialEndsAt)
		return &t
	}
	return nil
}
