package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRequest represents a one-off charge against a source or a customer
type ChargeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	CustomerID  string // gateway customer id; used when Source is empty
	Source      string // explicit token or source id, takes precedence
	Description string
	Metadata    map[string]string
}

// Charge represents the result of a charge operation
type Charge struct {
	CreatedAt time.Time
	Amount    decimal.Decimal
	ID        string
	Currency  string
	Status    string
}

// RefundRequest represents a refund of a previous charge
type RefundRequest struct {
	Amount   *decimal.Decimal // nil refunds the full remaining amount
	ChargeID string
	Reason   string
}

// Refund represents the result of a refund operation
type Refund struct {
	Amount   decimal.Decimal
	ID       string
	ChargeID string
	Status   string
}

// Card is a payment source on file with the gateway
type Card struct {
	ID          string
	Brand       string
	LastFour    string
	Fingerprint string
	ExpMonth    int
	ExpYear     int
}

// CardToken is a tokenized card as resolved from a client-side token
type CardToken struct {
	Card Card
	ID   string
}

// CreateCustomerRequest carries attributes for a new gateway customer
type CreateCustomerRequest struct {
	Email    string
	Source   string // optional payment token attached at creation
	Coupon   string
	Currency string
	Metadata map[string]string
}

// UpdateCustomerRequest carries partial updates for a gateway customer.
// Nil fields are left untouched.
type UpdateCustomerRequest struct {
	DefaultSource *string
	Coupon        *string
	Email         *string
}

// GatewayCustomer mirrors the gateway's customer object
type GatewayCustomer struct {
	ID              string
	Email           string
	Currency        string
	DefaultSourceID string
	Sources         []Card
}

// CreateSubscriptionRequest carries parameters for a new gateway subscription
type CreateSubscriptionRequest struct {
	TrialEnd   *time.Time // nil means no trial
	TaxPercent *decimal.Decimal
	CustomerID string
	Plan       string
	Coupon     string
	Quantity   int
	Prorate    bool
	Metadata   map[string]string
}

// UpdateSubscriptionRequest carries partial updates for a gateway
// subscription. Nil fields are left untouched.
type UpdateSubscriptionRequest struct {
	Plan              *string
	Quantity          *int
	TrialEnd          *time.Time
	CancelAtPeriodEnd *bool
	Coupon            *string
	Prorate           bool
}

// GatewaySubscription mirrors the gateway's subscription object. The gateway
// is authoritative for billing cycle state.
type GatewaySubscription struct {
	CurrentPeriodEnd  time.Time
	TrialEnd          *time.Time
	ID                string
	Plan              string
	Status            string
	Quantity          int
	CancelAtPeriodEnd bool
}

// CreateInvoiceItemRequest adds a pending line item to the customer's
// upcoming invoice
type CreateInvoiceItemRequest struct {
	Amount      decimal.Decimal
	CustomerID  string
	Currency    string
	Description string
}

// GatewayInvoice mirrors the gateway's invoice object
type GatewayInvoice struct {
	Date      time.Time
	Total     decimal.Decimal
	Subtotal  decimal.Decimal
	Lines     []GatewayInvoiceLine
	ID        string
	Currency  string
	Paid      bool
	Attempted bool
}

// GatewayInvoiceLine is a single line item on a gateway invoice
type GatewayInvoiceLine struct {
	Amount      decimal.Decimal
	Description string
}

// PaymentGateway defines the remote payment processor operations this core
// consumes. Implementations must return domain.BillingError values with
// gateway error codes; a timed-out call maps to GATEWAY_TIMEOUT (unknown
// outcome) and is never retried here.
type PaymentGateway interface {
	// CreateCharge performs a one-off charge
	CreateCharge(ctx context.Context, req *ChargeRequest) (*Charge, error)

	// CreateRefund refunds a previous charge, fully or partially
	CreateRefund(ctx context.Context, req *RefundRequest) (*Refund, error)

	// CreateCustomer creates a gateway customer, optionally attaching a source
	CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*GatewayCustomer, error)

	// GetCustomer retrieves a gateway customer with its sources
	GetCustomer(ctx context.Context, customerID string) (*GatewayCustomer, error)

	// UpdateCustomer applies partial updates to a gateway customer
	UpdateCustomer(ctx context.Context, customerID string, req *UpdateCustomerRequest) (*GatewayCustomer, error)

	// ListSources lists the customer's payment sources
	ListSources(ctx context.Context, customerID string) ([]Card, error)

	// CreateSource attaches a tokenized card to the customer
	CreateSource(ctx context.Context, customerID, token string) (*Card, error)

	// UpdateSourceExpiration updates the expiration of an existing source
	UpdateSourceExpiration(ctx context.Context, customerID, sourceID string, expMonth, expYear int) (*Card, error)

	// CreateSubscription creates a recurring subscription for the customer
	CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*GatewaySubscription, error)

	// UpdateSubscription applies partial updates (plan, quantity, trial)
	UpdateSubscription(ctx context.Context, subscriptionID string, req *UpdateSubscriptionRequest) (*GatewaySubscription, error)

	// CancelSubscription cancels at period end, or immediately when requested
	CancelSubscription(ctx context.Context, subscriptionID string, immediately bool) (*GatewaySubscription, error)

	// ResumeSubscription reactivates a subscription cancelled at period end.
	// trialEnd restores a still-running trial, nil leaves the cycle as is.
	ResumeSubscription(ctx context.Context, subscriptionID string, trialEnd *time.Time) (*GatewaySubscription, error)

	// GetSubscription retrieves the gateway subscription
	GetSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)

	// CreateInvoiceItem records a pending invoice line for the customer
	CreateInvoiceItem(ctx context.Context, req *CreateInvoiceItemRequest) error

	// CreateInvoice triggers an out-of-cycle invoice for all pending items.
	// Returns a NOTHING_TO_INVOICE billing error when no items are pending.
	CreateInvoice(ctx context.Context, customerID string) (*GatewayInvoice, error)

	// GetUpcomingInvoice previews the customer's next invoice
	GetUpcomingInvoice(ctx context.Context, customerID string) (*GatewayInvoice, error)

	// GetInvoice retrieves a single invoice
	GetInvoice(ctx context.Context, invoiceID string) (*GatewayInvoice, error)

	// ListInvoices lists the customer's invoices, newest first
	ListInvoices(ctx context.Context, customerID string, limit int) ([]*GatewayInvoice, error)

	// GetToken resolves a client-side token to its card details, including
	// the fingerprint used for source deduplication
	GetToken(ctx context.Context, token string) (*CardToken, error)
}
