package enums

import "fmt"

// PageKey names a gated product area.
type PageKey string

const (
	PageDashboard   PageKey = "dashboard"
	PageContacts    PageKey = "contacts"
	PageReports     PageKey = "reports"
	PageAutomations PageKey = "automations"
	PageIntegration PageKey = "integrations"
)

var validPageKeys = []PageKey{
	PageDashboard,
	PageContacts,
	PageReports,
	PageAutomations,
	PageIntegration,
}

// String implements fmt.Stringer.
func (p PageKey) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PageKey.
func (p PageKey) IsValid() bool {
	for _, candidate := range validPageKeys {
		if candidate == p {
			return true
		}
	}
	return false
}

// PageKeys returns every gated page key.
func PageKeys() []PageKey {
	out := make([]PageKey, len(validPageKeys))
	copy(out, validPageKeys)
	return out
}

// ParsePageKey converts raw input into a PageKey.
func ParsePageKey(value string) (PageKey, error) {
	for _, candidate := range validPageKeys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid page key %q", value)
}
