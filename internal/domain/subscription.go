package domain

import (
	"time"

	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// Subscription represents one named recurring billing relationship owned by a
// customer. The gateway is authoritative for billing cycle state; this record
// caches the inputs entitlement decisions need (trial end, cancellation end).
//
// Status is never stored: it is derived from TrialEndsAt and EndsAt so the
// record cannot drift into a contradictory stored state.
type Subscription struct {
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	TrialEndsAt           *time.Time `json:"trial_ends_at"`
	EndsAt                *time.Time `json:"ends_at"`
	ID                    string     `json:"id"`
	CustomerID            string     `json:"customer_id"`
	Name                  string     `json:"name"`
	GatewaySubscriptionID string     `json:"gateway_subscription_id"`
	Plan                  string     `json:"plan"`
	Quantity              int        `json:"quantity"`
}

// OnTrial returns true if the subscription is within its trial period
func (s *Subscription) OnTrial() bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.After(timeutil.Now())
}

// Cancelled returns true if a cancellation has been requested. The intent to
// cancel is recorded by setting EndsAt; whether service has actually stopped
// is Ended.
func (s *Subscription) Cancelled() bool {
	return s.EndsAt != nil
}

// OnGracePeriod returns true if the subscription is cancelled but the paid
// period has not elapsed yet
func (s *Subscription) OnGracePeriod() bool {
	return s.EndsAt != nil && s.EndsAt.After(timeutil.Now())
}

// Ended returns true if the subscription is cancelled and past its grace period
func (s *Subscription) Ended() bool {
	return s.Cancelled() && !s.OnGracePeriod()
}

// Active returns true if the subscription has not been cancelled, or is
// cancelled but still within its grace period
func (s *Subscription) Active() bool {
	return !s.Cancelled() || s.OnGracePeriod()
}

// Valid returns true if the subscription currently entitles the customer to
// service: either active or on trial
func (s *Subscription) Valid() bool {
	return s.Active() || s.OnTrial()
}

// MarkCancelled records the cancellation intent. Service continues until
// endsAt; the record itself is never deleted.
func (s *Subscription) MarkCancelled(endsAt time.Time) {
	t := timeutil.ToUTC(endsAt)
	s.EndsAt = &t
	s.UpdatedAt = timeutil.Now()
}

// MarkResumed clears the cancellation. Only meaningful while OnGracePeriod;
// callers enforce that transition.
func (s *Subscription) MarkResumed() {
	s.EndsAt = nil
	s.UpdatedAt = timeutil.Now()
}
