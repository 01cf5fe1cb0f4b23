package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	adapterports "github.com/kevin07696/billing-service/internal/adapters/ports"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/observability"
	"github.com/kevin07696/billing-service/pkg/timeutil"
	"github.com/shopspring/decimal"
)

// nothingToInvoiceCode is the gateway error code returned when an invoice is
// requested and no pending line items exist
const nothingToInvoiceCode = "invoice_no_customer_line_items"

// Adapter implements ports.PaymentGateway over the gateway's form-encoded
// REST API
type Adapter struct {
	httpClient adapterports.HTTPClient
	logger     ports.Logger
	baseURL    string
	secretKey  string
}

// NewAdapter creates a new gateway adapter with dependency injection.
// secretKey comes from configuration (resolved through the secret manager
// in production wiring), never from process globals.
func NewAdapter(baseURL, secretKey string, httpClient adapterports.HTTPClient, logger ports.Logger) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateCharge implements ports.PaymentGateway.CreateCharge
func (a *Adapter) CreateCharge(ctx context.Context, req *ports.ChargeRequest) (*ports.Charge, error) {
	params := url.Values{}
	params.Set("amount", strconv.FormatInt(toCents(req.Amount), 10))
	params.Set("currency", req.Currency)
	if req.Source != "" {
		params.Set("source", req.Source)
	}
	if req.CustomerID != "" {
		params.Set("customer", req.CustomerID)
	}
	if req.Description != "" {
		params.Set("description", req.Description)
	}
	addMetadata(params, req.Metadata)

	var resp apiCharge
	if err := a.makeRequest(ctx, http.MethodPost, "/charges", params, &resp); err != nil {
		return nil, err
	}

	return &ports.Charge{
		ID:        resp.ID,
		Amount:    fromCents(resp.Amount),
		Currency:  resp.Currency,
		Status:    resp.Status,
		CreatedAt: timeutil.FromUnix(resp.Created),
	}, nil
}

// CreateRefund implements ports.PaymentGateway.CreateRefund
func (a *Adapter) CreateRefund(ctx context.Context, req *ports.RefundRequest) (*ports.Refund, error) {
	params := url.Values{}
	params.Set("charge", req.ChargeID)
	if req.Amount != nil {
		params.Set("amount", strconv.FormatInt(toCents(*req.Amount), 10))
	}
	if req.Reason != "" {
		params.Set("reason", req.Reason)
	}

	var resp apiRefund
	if err := a.makeRequest(ctx, http.MethodPost, "/refunds", params, &resp); err != nil {
		return nil, err
	}

	return &ports.Refund{
		ID:       resp.ID,
		ChargeID: resp.Charge,
		Amount:   fromCents(resp.Amount),
		Status:   resp.Status,
	}, nil
}

// CreateCustomer implements ports.PaymentGateway.CreateCustomer
func (a *Adapter) CreateCustomer(ctx context.Context, req *ports.CreateCustomerRequest) (*ports.GatewayCustomer, error) {
	params := url.Values{}
	if req.Email != "" {
		params.Set("email", req.Email)
	}
	if req.Source != "" {
		params.Set("source", req.Source)
	}
	if req.Coupon != "" {
		params.Set("coupon", req.Coupon)
	}
	if req.Currency != "" {
		params.Set("currency", req.Currency)
	}
	addMetadata(params, req.Metadata)

	var resp apiCustomer
	if err := a.makeRequest(ctx, http.MethodPost, "/customers", params, &resp); err != nil {
		return nil, err
	}

	return toGatewayCustomer(&resp), nil
}

// GetCustomer implements ports.PaymentGateway.GetCustomer
func (a *Adapter) GetCustomer(ctx context.Context, customerID string) (*ports.GatewayCustomer, error) {
	var resp apiCustomer
	if err := a.makeRequest(ctx, http.MethodGet, "/customers/"+customerID, nil, &resp); err != nil {
		return nil, err
	}
	return toGatewayCustomer(&resp), nil
}

// UpdateCustomer implements ports.PaymentGateway.UpdateCustomer
func (a *Adapter) UpdateCustomer(ctx context.Context, customerID string, req *ports.UpdateCustomerRequest) (*ports.GatewayCustomer, error) {
	params := url.Values{}
	if req.DefaultSource != nil {
		params.Set("default_source", *req.DefaultSource)
	}
	if req.Coupon != nil {
		params.Set("coupon", *req.Coupon)
	}
	if req.Email != nil {
		params.Set("email", *req.Email)
	}

	var resp apiCustomer
	if err := a.makeRequest(ctx, http.MethodPost, "/customers/"+customerID, params, &resp); err != nil {
		return nil, err
	}
	return toGatewayCustomer(&resp), nil
}

// ListSources implements ports.PaymentGateway.ListSources
func (a *Adapter) ListSources(ctx context.Context, customerID string) ([]ports.Card, error) {
	var resp apiCardList
	if err := a.makeRequest(ctx, http.MethodGet, "/customers/"+customerID+"/sources?object=card", nil, &resp); err != nil {
		return nil, err
	}

	cards := make([]ports.Card, len(resp.Data))
	for i, c := range resp.Data {
		cards[i] = toCard(c)
	}
	return cards, nil
}

// CreateSource implements ports.PaymentGateway.CreateSource
func (a *Adapter) CreateSource(ctx context.Context, customerID, token string) (*ports.Card, error) {
	params := url.Values{}
	params.Set("source", token)

	var resp apiCard
	if err := a.makeRequest(ctx, http.MethodPost, "/customers/"+customerID+"/sources", params, &resp); err != nil {
		return nil, err
	}
	card := toCard(resp)
	return &card, nil
}

// UpdateSourceExpiration implements ports.PaymentGateway.UpdateSourceExpiration
func (a *Adapter) UpdateSourceExpiration(ctx context.Context, customerID, sourceID string, expMonth, expYear int) (*ports.Card, error) {
	params := url.Values{}
	params.Set("exp_month", strconv.Itoa(expMonth))
	params.Set("exp_year", strconv.Itoa(expYear))

	var resp apiCard
	if err := a.makeRequest(ctx, http.MethodPost, "/customers/"+customerID+"/sources/"+sourceID, params, &resp); err != nil {
		return nil, err
	}
	card := toCard(resp)
	return &card, nil
}

// CreateSubscription implements ports.PaymentGateway.CreateSubscription
func (a *Adapter) CreateSubscription(ctx context.Context, req *ports.CreateSubscriptionRequest) (*ports.GatewaySubscription, error) {
	params := url.Values{}
	params.Set("customer", req.CustomerID)
	params.Set("plan", req.Plan)
	params.Set("quantity", strconv.Itoa(req.Quantity))
	params.Set("prorate", strconv.FormatBool(req.Prorate))
	if req.TrialEnd != nil {
		params.Set("trial_end", strconv.FormatInt(req.TrialEnd.Unix(), 10))
	}
	if req.Coupon != "" {
		params.Set("coupon", req.Coupon)
	}
	if req.TaxPercent != nil {
		params.Set("tax_percent", req.TaxPercent.String())
	}
	addMetadata(params, req.Metadata)

	var resp apiSubscription
	if err := a.makeRequest(ctx, http.MethodPost, "/subscriptions", params, &resp); err != nil {
		return nil, err
	}
	return toGatewaySubscription(&resp), nil
}

// UpdateSubscription implements ports.PaymentGateway.UpdateSubscription
func (a *Adapter) UpdateSubscription(ctx context.Context, subscriptionID string, req *ports.UpdateSubscriptionRequest) (*ports.GatewaySubscription, error) {
	params := url.Values{}
	params.Set("prorate", strconv.FormatBool(req.Prorate))
	if req.Plan != nil {
		params.Set("plan", *req.Plan)
	}
	if req.Quantity != nil {
		params.Set("quantity", strconv.Itoa(*req.Quantity))
	}
	if req.TrialEnd != nil {
		params.Set("trial_end", strconv.FormatInt(req.TrialEnd.Unix(), 10))
	}
	if req.CancelAtPeriodEnd != nil {
		params.Set("cancel_at_period_end", strconv.FormatBool(*req.CancelAtPeriodEnd))
	}
	if req.Coupon != nil {
		params.Set("coupon", *req.Coupon)
	}

	var resp apiSubscription
	if err := a.makeRequest(ctx, http.MethodPost, "/subscriptions/"+subscriptionID, params, &resp); err != nil {
		return nil, err
	}
	return toGatewaySubscription(&resp), nil
}

// CancelSubscription implements ports.PaymentGateway.CancelSubscription
func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionID string, immediately bool) (*ports.GatewaySubscription, error) {
	if immediately {
		var resp apiSubscription
		if err := a.makeRequest(ctx, http.MethodDelete, "/subscriptions/"+subscriptionID, nil, &resp); err != nil {
			return nil, err
		}
		return toGatewaySubscription(&resp), nil
	}

	atPeriodEnd := true
	return a.UpdateSubscription(ctx, subscriptionID, &ports.UpdateSubscriptionRequest{
		CancelAtPeriodEnd: &atPeriodEnd,
		Prorate:           false,
	})
}

// ResumeSubscription implements ports.PaymentGateway.ResumeSubscription
func (a *Adapter) ResumeSubscription(ctx context.Context, subscriptionID string, trialEnd *time.Time) (*ports.GatewaySubscription, error) {
	atPeriodEnd := false
	return a.UpdateSubscription(ctx, subscriptionID, &ports.UpdateSubscriptionRequest{
		CancelAtPeriodEnd: &atPeriodEnd,
		TrialEnd:          trialEnd,
		Prorate:           false,
	})
}

// GetSubscription implements ports.PaymentGateway.GetSubscription
func (a *Adapter) GetSubscription(ctx context.Context, subscriptionID string) (*ports.GatewaySubscription, error) {
	var resp apiSubscription
	if err := a.makeRequest(ctx, http.MethodGet, "/subscriptions/"+subscriptionID, nil, &resp); err != nil {
		return nil, err
	}
	return toGatewaySubscription(&resp), nil
}

// CreateInvoiceItem implements ports.PaymentGateway.CreateInvoiceItem
func (a *Adapter) CreateInvoiceItem(ctx context.Context, req *ports.CreateInvoiceItemRequest) error {
	params := url.Values{}
	params.Set("customer", req.CustomerID)
	params.Set("amount", strconv.FormatInt(toCents(req.Amount), 10))
	params.Set("currency", req.Currency)
	params.Set("description", req.Description)

	var resp apiInvoiceLine
	return a.makeRequest(ctx, http.MethodPost, "/invoiceitems", params, &resp)
}

// CreateInvoice implements ports.PaymentGateway.CreateInvoice
func (a *Adapter) CreateInvoice(ctx context.Context, customerID string) (*ports.GatewayInvoice, error) {
	params := url.Values{}
	params.Set("customer", customerID)

	var resp apiInvoice
	if err := a.makeRequest(ctx, http.MethodPost, "/invoices", params, &resp); err != nil {
		return nil, err
	}
	return toGatewayInvoice(&resp), nil
}

// GetUpcomingInvoice implements ports.PaymentGateway.GetUpcomingInvoice
func (a *Adapter) GetUpcomingInvoice(ctx context.Context, customerID string) (*ports.GatewayInvoice, error) {
	var resp apiInvoice
	if err := a.makeRequest(ctx, http.MethodGet, "/invoices/upcoming?customer="+url.QueryEscape(customerID), nil, &resp); err != nil {
		return nil, err
	}
	return toGatewayInvoice(&resp), nil
}

// GetInvoice implements ports.PaymentGateway.GetInvoice
func (a *Adapter) GetInvoice(ctx context.Context, invoiceID string) (*ports.GatewayInvoice, error) {
	var resp apiInvoice
	if err := a.makeRequest(ctx, http.MethodGet, "/invoices/"+invoiceID, nil, &resp); err != nil {
		if httpStatus(err) == http.StatusNotFound {
			return nil, domain.ErrInvoiceNotFound.WithDetail("invoice_id", invoiceID)
		}
		return nil, err
	}
	return toGatewayInvoice(&resp), nil
}

// ListInvoices implements ports.PaymentGateway.ListInvoices
func (a *Adapter) ListInvoices(ctx context.Context, customerID string, limit int) ([]*ports.GatewayInvoice, error) {
	endpoint := fmt.Sprintf("/invoices?customer=%s&limit=%d", url.QueryEscape(customerID), limit)

	var resp apiInvoiceList
	if err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	invoices := make([]*ports.GatewayInvoice, len(resp.Data))
	for i := range resp.Data {
		invoices[i] = toGatewayInvoice(&resp.Data[i])
	}
	return invoices, nil
}

// GetToken implements ports.PaymentGateway.GetToken
func (a *Adapter) GetToken(ctx context.Context, token string) (*ports.CardToken, error) {
	var resp apiToken
	if err := a.makeRequest(ctx, http.MethodGet, "/tokens/"+token, nil, &resp); err != nil {
		return nil, err
	}
	return &ports.CardToken{
		ID:   resp.ID,
		Card: toCard(resp.Card),
	}, nil
}

// makeRequest performs a form-encoded API request and decodes the response.
// Gateway rejections come back as typed billing errors; a timeout maps to
// GATEWAY_TIMEOUT because the outcome is unknown, and is never retried here.
func (a *Adapter) makeRequest(ctx context.Context, method, endpoint string, params url.Values, response interface{}) error {
	start := time.Now()

	var body io.Reader
	if params != nil {
		body = strings.NewReader(params.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, body)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "build gateway request", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)
	if params != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if a.logger != nil {
		a.logger.Debug("making gateway request",
			ports.String("method", method),
			ports.String("endpoint", endpoint),
		)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		observability.RecordGatewayRequest(endpoint, "network_error", time.Since(start).Seconds())
		if isTimeout(ctx, err) {
			return domain.WrapError(domain.ErrorCodeGatewayTimeout, "gateway request timed out", err).
				WithDetail("endpoint", endpoint)
		}
		return domain.WrapError(domain.ErrorCodeGatewayError, "gateway request failed", err).
			WithDetail("endpoint", endpoint)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeGatewayError, "read gateway response", err)
	}

	observability.RecordGatewayRequest(endpoint, strconv.Itoa(httpResp.StatusCode), time.Since(start).Seconds())

	if httpResp.StatusCode >= 400 {
		return a.errorFromResponse(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, response); err != nil {
		return domain.WrapError(domain.ErrorCodeGatewayError, "unmarshal gateway response", err)
	}

	return nil
}

// errorFromResponse maps a non-2xx gateway response to a typed billing error
func (a *Adapter) errorFromResponse(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case apiErr.Error.Code == nothingToInvoiceCode:
		return domain.NewBillingError(domain.ErrorCodeNothingToInvoice, apiErr.Error.Message).
			WithDetail("http_status", status)
	case apiErr.Error.Type == "card_error" || status == http.StatusPaymentRequired:
		return domain.NewBillingError(domain.ErrorCodeGatewayDeclined, apiErr.Error.Message).
			WithDetail("http_status", status).
			WithDetail("gateway_code", apiErr.Error.Code)
	default:
		msg := apiErr.Error.Message
		if msg == "" {
			msg = "gateway rejected request"
		}
		return domain.NewBillingError(domain.ErrorCodeGatewayError, msg).
			WithDetail("http_status", status).
			WithDetail("gateway_code", apiErr.Error.Code)
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// httpStatus extracts the http_status detail from a gateway billing error,
// or zero when absent
func httpStatus(err error) int {
	var billingErr *domain.BillingError
	if !errors.As(err, &billingErr) {
		return 0
	}
	if status, ok := billingErr.Details["http_status"].(int); ok {
		return status
	}
	return 0
}

func addMetadata(params url.Values, metadata map[string]string) {
	for k, v := range metadata {
		params.Set("metadata["+k+"]", v)
	}
}

// toCents converts a decimal amount in major units to gateway minor units
func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromCents converts gateway minor units back to a decimal amount
func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func toCard(c apiCard) ports.Card {
	return ports.Card{
		ID:          c.ID,
		Brand:       c.Brand,
		LastFour:    c.Last4,
		Fingerprint: c.Fingerprint,
		ExpMonth:    c.ExpMonth,
		ExpYear:     c.ExpYear,
	}
}

func toGatewayCustomer(c *apiCustomer) *ports.GatewayCustomer {
	sources := make([]ports.Card, len(c.Sources.Data))
	for i, s := range c.Sources.Data {
		sources[i] = toCard(s)
	}
	return &ports.GatewayCustomer{
		ID:              c.ID,
		Email:           c.Email,
		Currency:        c.Currency,
		DefaultSourceID: c.DefaultSource,
		Sources:         sources,
	}
}

func toGatewaySubscription(s *apiSubscription) *ports.GatewaySubscription {
	sub := &ports.GatewaySubscription{
		ID:                s.ID,
		Status:            s.Status,
		Quantity:          s.Quantity,
		CurrentPeriodEnd:  timeutil.FromUnix(s.CurrentPeriodEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Plan != nil {
		sub.Plan = s.Plan.ID
	}
	if s.TrialEnd > 0 {
		trialEnd := timeutil.FromUnix(s.TrialEnd)
		sub.TrialEnd = &trialEnd
	}
	return sub
}

func toGatewayInvoice(inv *apiInvoice) *ports.GatewayInvoice {
	lines := make([]ports.GatewayInvoiceLine, len(inv.Lines.Data))
	for i, l := range inv.Lines.Data {
		lines[i] = ports.GatewayInvoiceLine{
			Amount:      fromCents(l.Amount),
			Description: l.Description,
		}
	}
	return &ports.GatewayInvoice{
		ID:        inv.ID,
		Total:     fromCents(inv.Total),
		Subtotal:  fromCents(inv.Subtotal),
		Currency:  inv.Currency,
		Date:      timeutil.FromUnix(inv.Date),
		Paid:      inv.Paid,
		Attempted: inv.Attempted,
		Lines:     lines,
	}
}
