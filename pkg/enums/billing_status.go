package enums

import "fmt"

// BillingStatus is the coarse subscription lifecycle stage for an organization.
type BillingStatus string

const (
	BillingStatusTrialing     BillingStatus = "trialing"
	BillingStatusActive       BillingStatus = "active"
	BillingStatusTrialExpired BillingStatus = "trial_expired"
	BillingStatusCanceled     BillingStatus = "canceled"
)

var validBillingStatuses = []BillingStatus{
	BillingStatusTrialing,
	BillingStatusActive,
	BillingStatusTrialExpired,
	BillingStatusCanceled,
}

// String implements fmt.Stringer.
func (b BillingStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingStatus.
func (b BillingStatus) IsValid() bool {
	for _, candidate := range validBillingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBillingStatus converts raw input into a BillingStatus.
func ParseBillingStatus(value string) (BillingStatus, error) {
	for _, candidate := range validBillingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing status %q", value)
}
