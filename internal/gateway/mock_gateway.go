package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
)

// MockGateway implements BillingGateway in memory for tests and local
// development. ConstructWebhookEvent skips signature verification and just
// parses the payload.
type MockGateway struct {
	mu            sync.RWMutex
	customers     map[string]string // businessID -> customerID
	subscriptions map[string]*Subscription
	sessions      map[string]*CheckoutSessionRequest // sessionID -> request

	// FailNext makes the next outbound call return an error, then resets.
	FailNext bool
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		customers:     make(map[string]string),
		subscriptions: make(map[string]*Subscription),
		sessions:      make(map[string]*CheckoutSessionRequest),
	}
}

func (g *MockGateway) failIfArmed() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailNext {
		g.FailNext = false
		return fmt.Errorf("mock gateway failure")
	}
	return nil
}

func (g *MockGateway) EnsureCustomer(ctx context.Context, businessID, existingCustomerID string) (string, error) {
	if err := g.failIfArmed(); err != nil {
		return "", err
	}
	if existingCustomerID != "" {
		return existingCustomerID, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.customers[businessID]; ok {
		return id, nil
	}
	id := fmt.Sprintf("cus_mock_%s", uuid.New().String()[:8])
	g.customers[businessID] = id
	return id, nil
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout session request is required")
	}
	if err := g.failIfArmed(); err != nil {
		return nil, err
	}
	sessionID := fmt.Sprintf("cs_mock_%s", uuid.New().String()[:8])
	g.mu.Lock()
	g.sessions[sessionID] = req
	g.mu.Unlock()
	return &CheckoutSessionResponse{
		SessionID: sessionID,
		URL:       fmt.Sprintf("https://checkout.mock/pay/%s", sessionID),
	}, nil
}

func (g *MockGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if err := g.failIfArmed(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	cp := *sub
	return &cp, nil
}

func (g *MockGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if err := g.failIfArmed(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	sub.Status = "canceled"
	return nil
}

func (g *MockGateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	if err := g.failIfArmed(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	sub.CancelAtPeriodEnd = cancel
	cp := *sub
	return &cp, nil
}

// ConstructWebhookEvent parses the payload without signature verification.
func (g *MockGateway) ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	return event, nil
}

// Name returns the gateway name.
func (g *MockGateway) Name() string {
	return "mock"
}

// CompleteCheckout simulates the customer paying a session: it registers an
// active subscription carrying the session's metadata and returns its ID.
func (g *MockGateway) CompleteCheckout(sessionID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("session not found: %s", sessionID)
	}
	subID := fmt.Sprintf("sub_mock_%s", uuid.New().String()[:8])
	g.subscriptions[subID] = &Subscription{
		ID:               subID,
		CustomerID:       req.CustomerID,
		Status:           "active",
		CurrentPeriodEnd: time.Now().AddDate(0, 1, 0).UTC(),
		Metadata:         req.Metadata,
	}
	return subID, nil
}

// PutSubscription seeds a subscription directly (for tests).
func (g *MockGateway) PutSubscription(sub *Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *sub
	g.subscriptions[sub.ID] = &cp
}

// SessionRequest returns the request a session was created with (for tests).
func (g *MockGateway) SessionRequest(sessionID string) (*CheckoutSessionRequest, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	req, ok := g.sessions[sessionID]
	return req, ok
}
