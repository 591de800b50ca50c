package enums

import "fmt"

// SubscriptionProvider identifies the external payment processor a subscription
// mirror belongs to. The engine never interprets provider-specific fields beyond
// pass-through.
type SubscriptionProvider string

const (
	SubscriptionProviderStripe SubscriptionProvider = "stripe"
)

var validSubscriptionProviders = []SubscriptionProvider{
	SubscriptionProviderStripe,
}

// String implements fmt.Stringer.
func (s SubscriptionProvider) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SubscriptionProvider.
func (s SubscriptionProvider) IsValid() bool {
	for _, candidate := range validSubscriptionProviders {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionProvider converts raw input into a SubscriptionProvider.
func ParseSubscriptionProvider(value string) (SubscriptionProvider, error) {
	for _, candidate := range validSubscriptionProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription provider %q", value)
}
