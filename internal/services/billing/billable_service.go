package billing

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// Service is the customer-level billing façade. It composes the payment
// gateway, the repositories, and the subscription state logic behind the
// operations an application calls: charge, invoice, subscribe, entitlement
// checks, card management.
type Service struct {
	db           ports.DBPort
	customerRepo ports.CustomerRepository
	subRepo      ports.SubscriptionRepository
	gateway      ports.PaymentGateway
	logger       ports.Logger
	currency     string
	prorate      bool
}

// NewService creates a new billing service. currency is the default charge
// currency; prorate is the default proration behavior for plan changes.
func NewService(
	db ports.DBPort,
	customerRepo ports.CustomerRepository,
	subRepo ports.SubscriptionRepository,
	gateway ports.PaymentGateway,
	logger ports.Logger,
	currency string,
	prorate bool,
) *Service {
	return &Service{
		db:           db,
		customerRepo: customerRepo,
		subRepo:      subRepo,
		gateway:      gateway,
		logger:       logger,
		currency:     currency,
		prorate:      prorate,
	}
}

// ChargeOptions carries optional parameters for a one-off charge
type ChargeOptions struct {
	Source      string // explicit payment token, used instead of the card on file
	Description string
	Currency    string // overrides the customer/default currency
}

// Charge performs a one-off charge against the customer. Either an explicit
// source must be given or the customer must already exist on the gateway;
// otherwise ARG_NO_PAYMENT_SOURCE is returned before any remote call.
func (s *Service) Charge(ctx context.Context, customerID string, amount decimal.Decimal, opts ChargeOptions) (*ports.Charge, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}

	req := &ports.ChargeRequest{
		Amount:      amount,
		Currency:    s.resolveCurrency(customer, opts.Currency),
		Description: opts.Description,
	}

	switch {
	case opts.Source != "":
		req.Source = opts.Source
	case customer.HasGatewayCustomer():
		req.CustomerID = *customer.GatewayCustomerID
	default:
		return nil, domain.ErrNoPaymentSource.WithDetail("customer_id", customerID)
	}

	charge, err := s.gateway.CreateCharge(ctx, req)
	if err != nil {
		s.logger.Error("charge failed",
			ports.String("customer_id", customerID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("charge created",
		ports.String("customer_id", customerID),
		ports.String("charge_id", charge.ID),
		ports.String("amount", amount.String()))

	return charge, nil
}

// RefundOptions carries optional parameters for a refund
type RefundOptions struct {
	Amount *decimal.Decimal // nil refunds the full remaining amount
	Reason string
}

// Refund refunds a previous charge. No local state changes.
func (s *Service) Refund(ctx context.Context, chargeID string, opts RefundOptions) (*ports.Refund, error) {
	refund, err := s.gateway.CreateRefund(ctx, &ports.RefundRequest{
		ChargeID: chargeID,
		Amount:   opts.Amount,
		Reason:   opts.Reason,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund created",
		ports.String("charge_id", chargeID),
		ports.String("refund_id", refund.ID))

	return refund, nil
}

// InvoiceFor adds a one-off line item for the customer and immediately
// invoices it. The customer must already exist on the gateway.
func (s *Service) InvoiceFor(ctx context.Context, customerID, description string, amount decimal.Decimal) (*domain.Invoice, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}
	if !customer.HasGatewayCustomer() {
		return nil, domain.ErrNoGatewayCustomer.WithDetail("customer_id", customerID)
	}

	err = s.gateway.CreateInvoiceItem(ctx, &ports.CreateInvoiceItemRequest{
		CustomerID:  *customer.GatewayCustomerID,
		Amount:      amount,
		Currency:    s.resolveCurrency(customer, ""),
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	invoice, err := s.gateway.CreateInvoice(ctx, *customer.GatewayCustomerID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("out-of-cycle invoice created",
		ports.String("customer_id", customerID),
		ports.String("invoice_id", invoice.ID),
		ports.String("description", description))

	return toInvoice(invoice), nil
}

// Invoice triggers an out-of-cycle invoice for all pending line items.
// Returns false without error when the gateway reports there is nothing to
// invoice; every other gateway rejection propagates.
func (s *Service) Invoice(ctx context.Context, customerID string) (bool, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return false, err
	}
	if !customer.HasGatewayCustomer() {
		return false, domain.ErrNoGatewayCustomer.WithDetail("customer_id", customerID)
	}

	_, err = s.gateway.CreateInvoice(ctx, *customer.GatewayCustomerID)
	if err != nil {
		if domain.IsBillingError(err, domain.ErrorCodeNothingToInvoice) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// FindInvoice retrieves an invoice, returning an absent result on any
// gateway error. Callers that need the failure detail use FindInvoiceOrFail.
func (s *Service) FindInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	invoice, err := s.gateway.GetInvoice(ctx, invoiceID)
	if err != nil {
		s.logger.Debug("invoice lookup miss",
			ports.String("invoice_id", invoiceID),
			ports.Err(err))
		return nil, nil
	}
	return toInvoice(invoice), nil
}

// FindInvoiceOrFail retrieves an invoice, converting absence into
// INVOICE_NOT_FOUND
func (s *Service) FindInvoiceOrFail(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	invoice, err := s.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound.WithDetail("invoice_id", invoiceID)
	}
	return invoice, nil
}

// Invoices lists the customer's invoices, newest first
func (s *Service) Invoices(ctx context.Context, customerID string, limit int) ([]*domain.Invoice, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}
	if !customer.HasGatewayCustomer() {
		return nil, nil
	}

	gwInvoices, err := s.gateway.ListInvoices(ctx, *customer.GatewayCustomerID, limit)
	if err != nil {
		return nil, err
	}

	invoices := make([]*domain.Invoice, len(gwInvoices))
	for i, inv := range gwInvoices {
		invoices[i] = toInvoice(inv)
	}
	return invoices, nil
}

// UpcomingInvoice previews the customer's next invoice
func (s *Service) UpcomingInvoice(ctx context.Context, customerID string) (*domain.Invoice, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}
	if !customer.HasGatewayCustomer() {
		return nil, domain.ErrNoGatewayCustomer.WithDetail("customer_id", customerID)
	}

	invoice, err := s.gateway.GetUpcomingInvoice(ctx, *customer.GatewayCustomerID)
	if err != nil {
		return nil, err
	}
	return toInvoice(invoice), nil
}

// Subscribed returns true if the customer has a valid subscription under
// name, optionally also matching plan
func (s *Service) Subscribed(ctx context.Context, customerID, name, plan string) (bool, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	if !sub.Valid() {
		return false, nil
	}
	if plan != "" && sub.Plan != plan {
		return false, nil
	}
	return true, nil
}

// SubscribedToPlan returns true if the subscription under name is valid and
// on one of the given plans
func (s *Service) SubscribedToPlan(ctx context.Context, customerID string, plans []string, name string) (bool, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	if !sub.Valid() {
		return false, nil
	}
	for _, plan := range plans {
		if sub.Plan == plan {
			return true, nil
		}
	}
	return false, nil
}

// OnPlan returns true if any of the customer's subscriptions is valid and on
// the given plan, regardless of subscription name
func (s *Service) OnPlan(ctx context.Context, customerID, plan string) (bool, error) {
	subs, err := s.subRepo.ListByCustomer(ctx, nil, customerID)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.Plan == plan && sub.Valid() {
			return true, nil
		}
	}
	return false, nil
}

// OnTrial returns true if the subscription under name is within its trial
// period, optionally also matching plan
func (s *Service) OnTrial(ctx context.Context, customerID, name, plan string) (bool, error) {
	sub, err := s.subRepo.GetByCustomerAndName(ctx, nil, customerID, name)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	if !sub.OnTrial() {
		return false, nil
	}
	if plan != "" && sub.Plan != plan {
		return false, nil
	}
	return true, nil
}

// OnGenericTrial returns true while the customer is on an entity-level trial
// not tied to any subscription
func (s *Service) OnGenericTrial(ctx context.Context, customerID string) (bool, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return false, err
	}
	return customer.OnGenericTrial(), nil
}

// CreateCustomerOptions carries optional attributes for gateway customer
// creation
type CreateCustomerOptions struct {
	Coupon string
}

// CreateAsGatewayCustomer creates the customer on the gateway and durably
// persists the gateway customer id before any card is attached. A crash
// between the two steps leaves a customer without a card, which is
// recoverable; the reverse is not.
func (s *Service) CreateAsGatewayCustomer(ctx context.Context, customerID, token string, opts CreateCustomerOptions) (*ports.GatewayCustomer, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}
	if customer.HasGatewayCustomer() {
		return nil, domain.ErrCustomerAlreadyLinked.
			WithDetail("customer_id", customerID).
			WithDetail("gateway_customer_id", *customer.GatewayCustomerID)
	}

	gwCustomer, err := s.gateway.CreateCustomer(ctx, &ports.CreateCustomerRequest{
		Email:    customer.Email,
		Coupon:   opts.Coupon,
		Currency: customer.Currency,
		Metadata: map[string]string{"customer_id": customerID},
	})
	if err != nil {
		return nil, err
	}

	customer.LinkGatewayCustomer(gwCustomer.ID)
	if err := s.customerRepo.Update(ctx, nil, customer); err != nil {
		// The gateway customer exists but the id was not saved; surface the
		// id for reconciliation instead of losing it.
		s.logger.Error("gateway customer created but id not persisted",
			ports.String("customer_id", customerID),
			ports.String("gateway_customer_id", gwCustomer.ID),
			ports.Err(err))
		return nil, err
	}

	s.logger.Info("gateway customer created",
		ports.String("customer_id", customerID),
		ports.String("gateway_customer_id", gwCustomer.ID))

	if token != "" {
		if err := s.UpdateCard(ctx, customerID, token); err != nil {
			return nil, err
		}
	}

	return gwCustomer, nil
}

// UpdateCard sets the card behind token as the customer's default payment
// method. An existing source with the same card fingerprint is reused (its
// expiration refreshed if it changed) instead of attaching a duplicate.
// The local card brand/last-four cache is re-synced from the gateway's
// resulting default source.
func (s *Service) UpdateCard(ctx context.Context, customerID, token string) error {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return err
	}
	if !customer.HasGatewayCustomer() {
		return domain.ErrNoGatewayCustomer.WithDetail("customer_id", customerID)
	}
	gatewayCustomerID := *customer.GatewayCustomerID

	cardToken, err := s.gateway.GetToken(ctx, token)
	if err != nil {
		return err
	}

	sources, err := s.gateway.ListSources(ctx, gatewayCustomerID)
	if err != nil {
		return err
	}

	var source *ports.Card
	for i := range sources {
		if sources[i].Fingerprint != cardToken.Card.Fingerprint {
			continue
		}
		existing := sources[i]
		if existing.ExpMonth != cardToken.Card.ExpMonth || existing.ExpYear != cardToken.Card.ExpYear {
			updated, err := s.gateway.UpdateSourceExpiration(ctx, gatewayCustomerID, existing.ID,
				cardToken.Card.ExpMonth, cardToken.Card.ExpYear)
			if err != nil {
				return err
			}
			source = updated
		} else {
			source = &existing
		}
		break
	}

	if source == nil {
		created, err := s.gateway.CreateSource(ctx, gatewayCustomerID, token)
		if err != nil {
			return err
		}
		source = created
	}

	defaultSource := source.ID
	gwCustomer, err := s.gateway.UpdateCustomer(ctx, gatewayCustomerID, &ports.UpdateCustomerRequest{
		DefaultSource: &defaultSource,
	})
	if err != nil {
		return err
	}

	s.syncCard(customer, gwCustomer)
	if err := s.customerRepo.Update(ctx, nil, customer); err != nil {
		return err
	}

	s.logger.Info("default card updated",
		ports.String("customer_id", customerID),
		ports.String("source_id", source.ID))

	return nil
}

// ApplyCoupon sets a coupon on the gateway customer. No local billing fields
// change.
func (s *Service) ApplyCoupon(ctx context.Context, customerID, coupon string) error {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return err
	}
	if !customer.HasGatewayCustomer() {
		return domain.ErrNoGatewayCustomer.WithDetail("customer_id", customerID)
	}

	_, err = s.gateway.UpdateCustomer(ctx, *customer.GatewayCustomerID, &ports.UpdateCustomerRequest{
		Coupon: &coupon,
	})
	if err != nil {
		return err
	}

	s.logger.Info("coupon applied",
		ports.String("customer_id", customerID),
		ports.String("coupon", coupon))

	return nil
}

// HasCardOnFile returns true if a default payment source has been synced
// locally for the customer
func (s *Service) HasCardOnFile(ctx context.Context, customerID string) (bool, error) {
	customer, err := s.customerRepo.GetByID(ctx, nil, customerID)
	if err != nil {
		return false, err
	}
	return customer.HasCardOnFile(), nil
}

// syncCard refreshes the local card cache from the gateway customer's
// default source, clearing it when no default source remains
func (s *Service) syncCard(customer *domain.Customer, gwCustomer *ports.GatewayCustomer) {
	for _, src := range gwCustomer.Sources {
		if src.ID == gwCustomer.DefaultSourceID {
			customer.SyncCardFromSource(src.Brand, src.LastFour)
			return
		}
	}
	customer.SyncCardFromSource("", "")
}

func (s *Service) resolveCurrency(customer *domain.Customer, override string) string {
	if override != "" {
		return override
	}
	if customer.Currency != "" {
		return customer.Currency
	}
	return s.currency
}

// toInvoice converts a gateway invoice into the read-only domain projection
func toInvoice(inv *ports.GatewayInvoice) *domain.Invoice {
	lines := make([]domain.InvoiceLine, len(inv.Lines))
	for i, l := range inv.Lines {
		lines[i] = domain.InvoiceLine{
			Amount:      l.Amount,
			Description: l.Description,
		}
	}
	return &domain.Invoice{
		ID:        inv.ID,
		Total:     inv.Total,
		Subtotal:  inv.Subtotal,
		Currency:  inv.Currency,
		Date:      inv.Date,
		Paid:      inv.Paid,
		Attempted: inv.Attempted,
		Lines:     lines,
	}
}
