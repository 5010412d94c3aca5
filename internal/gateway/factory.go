package gateway

import (
	"fmt"
	"strings"
)

// GatewayType represents the type of billing gateway.
type GatewayType string

const (
	GatewayTypeMock   GatewayType = "mock"
	GatewayTypeStripe GatewayType = "stripe"
)

// NewBillingGateway creates a billing gateway based on the configured type.
// An empty type defaults to the mock gateway so local development never needs
// Stripe credentials.
func NewBillingGateway(gatewayType string, config *StripeGatewayConfig) (BillingGateway, error) {
	switch GatewayType(strings.ToLower(gatewayType)) {
	case GatewayTypeMock, "":
		return NewMockGateway(), nil

	case GatewayTypeStripe:
		if config == nil || config.SecretKey == "" {
			return nil, fmt.Errorf("stripe secret key is required")
		}
		return NewStripeGateway(config)

	default:
		return nil, fmt.Errorf("unsupported gateway type: %s", gatewayType)
	}
}
