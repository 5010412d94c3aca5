package gateway

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// BillingGateway defines the interface for subscription billing operations.
// Webhook events still arrive as stripe.Event; everything outbound goes
// through neutral request/response types so services never build Stripe
// params themselves.
type BillingGateway interface {
	// EnsureCustomer returns a billing customer ID for the business, creating
	// one when existingCustomerID is empty.
	EnsureCustomer(ctx context.Context, businessID, existingCustomerID string) (string, error)

	// CreateCheckoutSession opens a hosted checkout for a recurring monthly
	// subscription.
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionResponse, error)

	// GetSubscription retrieves the current state of a subscription.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// CancelSubscription cancels a subscription immediately.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// SetCancelAtPeriodEnd schedules or unschedules cancellation at the end of
	// the current billing period.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error)

	// ConstructWebhookEvent verifies a webhook payload signature and parses
	// the event.
	ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error)

	// Name returns the gateway name.
	Name() string
}

// CheckoutSessionRequest describes a hosted checkout to create.
type CheckoutSessionRequest struct {
	CustomerID  string
	ProductName string
	AmountMinor int64
	Currency    string
	SuccessURL  string
	CancelURL   string

	// Metadata is attached to both the session and the subscription it
	// creates, so every later webhook carries the checkout context.
	Metadata map[string]string
}

// CheckoutSessionResponse is the created hosted checkout.
type CheckoutSessionResponse struct {
	SessionID string
	URL       string
}

// Subscription is the gateway-neutral view of a billing subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	Metadata          map[string]string
}
