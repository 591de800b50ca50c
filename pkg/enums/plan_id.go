package enums

import "fmt"

// PlanID identifies a plan in the static catalog.
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanStarter PlanID = "starter"
	PlanPro     PlanID = "pro"
)

var validPlanIDs = []PlanID{
	PlanFree,
	PlanStarter,
	PlanPro,
}

// String implements fmt.Stringer.
func (p PlanID) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanID.
func (p PlanID) IsValid() bool {
	for _, candidate := range validPlanIDs {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanID converts raw input into a PlanID.
func ParsePlanID(value string) (PlanID, error) {
	for _, candidate := range validPlanIDs {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan id %q", value)
}
