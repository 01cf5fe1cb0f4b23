package webhook

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/observability"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// Event is a gateway webhook delivery. Data.Object carries the raw payload of
// the object the event is about; each handler decodes only the fields it
// needs.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData wraps the event payload
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// subscriptionPayload is the subset of a gateway subscription object the
// sync handlers read
type subscriptionPayload struct {
	ID                string `json:"id"`
	Plan              plan   `json:"plan"`
	Quantity          int    `json:"quantity"`
	TrialEnd          *int64 `json:"trial_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

type plan struct {
	ID string `json:"id"`
}

// invoicePayload is the subset of a gateway invoice object read on payment
// events
type invoicePayload struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer"`
	Total      int64  `json:"total"`
	Currency   string `json:"currency"`
}

// Service applies remote gateway events to local billing state. Events are
// deduplicated by id before any handler runs, so redelivered webhooks are
// acknowledged without reprocessing.
type Service struct {
	db        ports.DBPort
	eventRepo ports.WebhookEventRepository
	subRepo   ports.SubscriptionRepository
	logger    ports.Logger
}

// NewService creates a new webhook service
func NewService(
	db ports.DBPort,
	eventRepo ports.WebhookEventRepository,
	subRepo ports.SubscriptionRepository,
	logger ports.Logger,
) *Service {
	return &Service{
		db:        db,
		eventRepo: eventRepo,
		subRepo:   subRepo,
		logger:    logger,
	}
}

// ApplyEvent processes a gateway event exactly once. The event id is recorded
// first; a duplicate delivery returns nil without side effects. Events whose
// type has no handler are recorded and ignored, so the gateway does not
// redeliver them.
func (s *Service) ApplyEvent(ctx context.Context, event *Event) error {
	if event.ID == "" || event.Type == "" {
		return domain.NewBillingError(domain.ErrorCodeInvalidArgument, "event id and type are required")
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		first, err := s.eventRepo.MarkProcessed(ctx, tx, event.ID, event.Type)
		if err != nil {
			return err
		}
		if !first {
			s.logger.Debug("duplicate webhook delivery ignored",
				ports.String("event_id", event.ID),
				ports.String("event_type", event.Type))
			observability.RecordWebhookEvent(event.Type, "duplicate")
			return nil
		}

		if err := s.dispatch(ctx, tx, event); err != nil {
			observability.RecordWebhookEvent(event.Type, "error")
			return err
		}
		observability.RecordWebhookEvent(event.Type, "processed")
		return nil
	})
}

func (s *Service) dispatch(ctx context.Context, tx ports.DBTX, event *Event) error {
	switch event.Type {
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, tx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, tx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaymentSucceeded(ctx, event)
	default:
		s.logger.Debug("unhandled webhook event type",
			ports.String("event_id", event.ID),
			ports.String("event_type", event.Type))
		return nil
	}
}

// handleSubscriptionDeleted marks the mirrored subscription cancelled when
// the gateway ends it (payment failures, remote cancellation). An unknown
// subscription id is ignored; the event may concern a subscription this
// system never created.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, tx ports.DBTX, event *Event) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data.Object, &payload); err != nil {
		return domain.WrapError(domain.ErrorCodeInvalidArgument, "malformed subscription payload", err)
	}

	sub, err := s.subRepo.GetByGatewayID(ctx, tx, payload.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.logger.Warn("subscription deleted event for unknown subscription",
				ports.String("event_id", event.ID),
				ports.String("gateway_subscription_id", payload.ID))
			return nil
		}
		return err
	}
	if sub.Cancelled() {
		return nil
	}

	endsAt := timeutil.FromUnix(payload.CurrentPeriodEnd)
	if payload.CurrentPeriodEnd == 0 {
		endsAt = timeutil.Now()
	}
	sub.MarkCancelled(endsAt)

	if err := s.subRepo.Update(ctx, tx, sub); err != nil {
		return err
	}

	s.logger.Info("subscription cancelled by gateway event",
		ports.String("event_id", event.ID),
		ports.String("customer_id", sub.CustomerID),
		ports.String("name", sub.Name))

	return nil
}

// handleSubscriptionUpdated syncs plan, quantity, trial end, and pending
// cancellation from the gateway's view of the subscription
func (s *Service) handleSubscriptionUpdated(ctx context.Context, tx ports.DBTX, event *Event) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data.Object, &payload); err != nil {
		return domain.WrapError(domain.ErrorCodeInvalidArgument, "malformed subscription payload", err)
	}

	sub, err := s.subRepo.GetByGatewayID(ctx, tx, payload.ID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			s.logger.Warn("subscription updated event for unknown subscription",
				ports.String("event_id", event.ID),
				ports.String("gateway_subscription_id", payload.ID))
			return nil
		}
		return err
	}

	if payload.Plan.ID != "" {
		sub.Plan = payload.Plan.ID
	}
	if payload.Quantity > 0 {
		sub.Quantity = payload.Quantity
	}
	if payload.TrialEnd != nil {
		t := timeutil.FromUnix(*payload.TrialEnd)
		sub.TrialEndsAt = &t
	} else {
		sub.TrialEndsAt = nil
	}
	if payload.CancelAtPeriodEnd {
		endsAt := timeutil.FromUnix(payload.CurrentPeriodEnd)
		sub.EndsAt = &endsAt
	} else {
		sub.EndsAt = nil
	}
	sub.UpdatedAt = timeutil.Now()

	if err := s.subRepo.Update(ctx, tx, sub); err != nil {
		return err
	}

	s.logger.Info("subscription synced from gateway event",
		ports.String("event_id", event.ID),
		ports.String("customer_id", sub.CustomerID),
		ports.String("name", sub.Name),
		ports.String("plan", sub.Plan))

	return nil
}

// handleInvoicePaymentSucceeded records the payment for observability. No
// local state depends on individual payments; the subscription events carry
// the state that matters.
func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, event *Event) error {
	var payload invoicePayload
	if err := json.Unmarshal(event.Data.Object, &payload); err != nil {
		return domain.WrapError(domain.ErrorCodeInvalidArgument, "malformed invoice payload", err)
	}

	s.logger.Info("invoice payment succeeded",
		ports.String("event_id", event.ID),
		ports.String("invoice_id", payload.ID),
		ports.String("gateway_customer_id", payload.CustomerID),
		ports.String("currency", payload.Currency))

	return nil
}
