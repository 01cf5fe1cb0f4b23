package domain

import (
	"time"

	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// Customer is the billable entity owning billing state. The application
// creates the record; this core only mutates the billing fields.
type Customer struct {
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	TrialEndsAt       *time.Time `json:"trial_ends_at"`
	GatewayCustomerID *string    `json:"gateway_customer_id"`
	CardBrand         *string    `json:"card_brand"`
	CardLastFour      *string    `json:"card_last_four"`
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Currency          string     `json:"currency"`
}

// HasGatewayCustomer returns true if the customer has been created on the
// payment gateway
func (c *Customer) HasGatewayCustomer() bool {
	return c.GatewayCustomerID != nil && *c.GatewayCustomerID != ""
}

// OnGenericTrial returns true while the customer is on an entity-level trial
// that is not tied to any subscription
func (c *Customer) OnGenericTrial() bool {
	return c.TrialEndsAt != nil && c.TrialEndsAt.After(timeutil.Now())
}

// HasCardOnFile returns true if a default payment source has been synced
// from the gateway
func (c *Customer) HasCardOnFile() bool {
	return c.CardLastFour != nil && *c.CardLastFour != ""
}

// LinkGatewayCustomer records the gateway customer id. The id is assigned at
// most once; callers reject re-linking.
func (c *Customer) LinkGatewayCustomer(gatewayCustomerID string) {
	c.GatewayCustomerID = &gatewayCustomerID
	c.UpdatedAt = timeutil.Now()
}

// SyncCardFromSource updates the cached card fields from the gateway's
// default source. Passing empty values clears them.
func (c *Customer) SyncCardFromSource(brand, lastFour string) {
	if brand == "" && lastFour == "" {
		c.CardBrand = nil
		c.CardLastFour = nil
	} else {
		c.CardBrand = &brand
		c.CardLastFour = &lastFour
	}
	c.UpdatedAt = timeutil.Now()
}
