package subscription

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/observability"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// Service handles lifecycle transitions of existing subscriptions: cancel,
// resume, plan swap, quantity changes. Remote changes go first; local state
// is only written after the gateway accepted the change, so a gateway failure
// leaves no partial local write.
type Service struct {
	subRepo ports.SubscriptionRepository
	gateway ports.PaymentGateway
	logger  ports.Logger
	prorate bool
}

// NewService creates a new subscription lifecycle service. prorate is the
// default proration behavior for plan and quantity changes.
func NewService(
	subRepo ports.SubscriptionRepository,
	gateway ports.PaymentGateway,
	logger ports.Logger,
	prorate bool,
) *Service {
	return &Service{
		subRepo: subRepo,
		gateway: gateway,
		logger:  logger,
		prorate: prorate,
	}
}

// Cancel cancels the customer's subscription under name. By default the
// subscription keeps serving until the end of the already-paid period; with
// immediately it ends now. A subscription cancelled during its trial ends at
// the trial end. Cancelling an already-cancelled subscription is
// SUB_INVALID_STATE.
func (s *Service) Cancel(ctx context.Context, customerID, name string, immediately bool) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		return nil, err
	}
	if sub.Cancelled() {
		return nil, domain.ErrInvalidState.
			WithDetail("customer_id", customerID).
			WithDetail("name", name).
			WithDetail("reason", "subscription is already cancelled")
	}

	gwSub, err := s.gateway.CancelSubscription(ctx, sub.GatewaySubscriptionID, immediately)
	if err != nil {
		return nil, err
	}

	endsAt := gwSub.CurrentPeriodEnd
	switch {
	case immediately:
		endsAt = timeutil.Now()
	case sub.OnTrial():
		endsAt = *sub.TrialEndsAt
	}
	sub.MarkCancelled(endsAt)

	if err := s.subRepo.Update(ctx, nil, sub); err != nil {
		s.logger.Error("gateway subscription cancelled but local state not updated",
			ports.String("customer_id", customerID),
			ports.String("name", name),
			ports.String("gateway_subscription_id", sub.GatewaySubscriptionID),
			ports.Err(err))
		return nil, err
	}

	observability.RecordSubscriptionCancelled()
	s.logger.Info("subscription cancelled",
		ports.String("customer_id", customerID),
		ports.String("name", name),
		ports.Bool("immediately", immediately),
		ports.String("ends_at", sub.EndsAt.String()))

	return sub, nil
}

// Resume reactivates a subscription cancelled at period end. Only valid
// while the grace period is still running; once the subscription has ended a
// new one must be created instead. A trial that was still running when the
// subscription was cancelled is restored on the gateway.
func (s *Service) Resume(ctx context.Context, customerID, name string) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		return nil, err
	}
	if !sub.OnGracePeriod() {
		return nil, domain.ErrInvalidState.
			WithDetail("customer_id", customerID).
			WithDetail("name", name).
			WithDetail("reason", "subscription can only be resumed during its grace period")
	}

	trial := sub.TrialEndsAt
	if !sub.OnTrial() {
		trial = nil
	}

	if _, err := s.gateway.ResumeSubscription(ctx, sub.GatewaySubscriptionID, trial); err != nil {
		return nil, err
	}

	sub.MarkResumed()
	if err := s.subRepo.Update(ctx, nil, sub); err != nil {
		s.logger.Error("gateway subscription resumed but local state not updated",
			ports.String("customer_id", customerID),
			ports.String("name", name),
			ports.String("gateway_subscription_id", sub.GatewaySubscriptionID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("subscription resumed",
		ports.String("customer_id", customerID),
		ports.String("name", name))

	return sub, nil
}

// Swap moves the subscription to a different plan. Proration follows the
// service default unless overridden per call via SwapWithOptions.
func (s *Service) Swap(ctx context.Context, customerID, name, plan string) (*domain.Subscription, error) {
	return s.SwapWithOptions(ctx, customerID, name, plan, s.prorate)
}

// SwapWithOptions moves the subscription to a different plan with explicit
// proration control. Swapping an ended subscription is SUB_INVALID_STATE.
func (s *Service) SwapWithOptions(ctx context.Context, customerID, name, plan string, prorate bool) (*domain.Subscription, error) {
	if plan == "" {
		return nil, domain.NewBillingError(domain.ErrorCodeInvalidArgument, "plan is required")
	}

	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		return nil, err
	}
	if sub.Ended() {
		return nil, domain.ErrInvalidState.
			WithDetail("customer_id", customerID).
			WithDetail("name", name).
			WithDetail("reason", "subscription has ended")
	}

	_, err = s.gateway.UpdateSubscription(ctx, sub.GatewaySubscriptionID, &ports.UpdateSubscriptionRequest{
		Plan:    &plan,
		Prorate: prorate,
	})
	if err != nil {
		return nil, err
	}

	oldPlan := sub.Plan
	sub.Plan = plan
	sub.UpdatedAt = timeutil.Now()

	if err := s.subRepo.Update(ctx, nil, sub); err != nil {
		s.logger.Error("gateway plan swapped but local state not updated",
			ports.String("customer_id", customerID),
			ports.String("name", name),
			ports.String("plan", plan),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("subscription plan swapped",
		ports.String("customer_id", customerID),
		ports.String("name", name),
		ports.String("old_plan", oldPlan),
		ports.String("new_plan", plan))

	return sub, nil
}

// IncrementQuantity adds count seats to the subscription
func (s *Service) IncrementQuantity(ctx context.Context, customerID, name string, count int) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		return nil, err
	}
	return s.updateQuantity(ctx, sub, sub.Quantity+count)
}

// DecrementQuantity removes count seats from the subscription, never going
// below one seat
func (s *Service) DecrementQuantity(ctx context.Context, customerID, name string, count int) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		return nil, err
	}
	quantity := sub.Quantity - count
	if quantity < 1 {
		quantity = 1
	}
	return s.updateQuantity(ctx, sub, quantity)
}

// UpdateQuantity sets the subscription's seat count
func (s *Service) UpdateQuantity(ctx context.Context, customerID, name string, quantity int) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		return nil, err
	}
	return s.updateQuantity(ctx, sub, quantity)
}

func (s *Service) updateQuantity(ctx context.Context, sub *domain.Subscription, quantity int) (*domain.Subscription, error) {
	if quantity < 1 {
		return nil, domain.NewBillingError(domain.ErrorCodeInvalidArgument,
			"quantity must be at least 1").WithDetail("quantity", quantity)
	}
	if sub.Ended() {
		return nil, domain.ErrInvalidState.
			WithDetail("customer_id", sub.CustomerID).
			WithDetail("name", sub.Name).
			WithDetail("reason", "subscription has ended")
	}

	_, err := s.gateway.UpdateSubscription(ctx, sub.GatewaySubscriptionID, &ports.UpdateSubscriptionRequest{
		Quantity: &quantity,
		Prorate:  s.prorate,
	})
	if err != nil {
		return nil, err
	}

	sub.Quantity = quantity
	sub.UpdatedAt = timeutil.Now()

	if err := s.subRepo.Update(ctx, nil, sub); err != nil {
		s.logger.Error("gateway quantity updated but local state not updated",
			ports.String("customer_id", sub.CustomerID),
			ports.String("name", sub.Name),
			ports.Int("quantity", quantity),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("subscription quantity updated",
		ports.String("customer_id", sub.CustomerID),
		ports.String("name", sub.Name),
		ports.Int("quantity", quantity))

	return sub, nil
}
