package plans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// Plan describes one catalog entry: price, trial offer, and the product areas
// the plan unlocks. Catalog entries are immutable at runtime.
type Plan struct {
	ID        enums.PlanID
	Name      string
	Price     decimal.Decimal
	Interval  enums.BillingInterval
	TrialDays int
	Features  map[enums.PageKey]bool

	// PriceID is the external processor's price identifier for this plan.
	// Empty for plans that require no external subscription.
	PriceID string
}

// OffersTrial reports whether this plan grants a time-boxed trial.
func (p Plan) OffersTrial() bool {
	return p.TrialDays > 0
}

// Config supplies the env-specific processor price ids for paid plans.
type Config struct {
	StarterPriceID string
	ProPriceID     string
}

// Catalog is the frozen plan lookup table, built once per process.
type Catalog struct {
	byID    map[enums.PlanID]Plan
	ordered []enums.PlanID
}

// NewCatalog builds the catalog. Plan definitions are compiled in; only the
// processor price ids vary per environment.
func NewCatalog(cfg Config) *Catalog {
	defs := []Plan{
		{
			ID:       enums.PlanFree,
			Name:     "Free",
			Price:    decimal.Zero,
			Interval: enums.BillingIntervalNone,
			Features: map[enums.PageKey]bool{
				enums.PageDashboard:   true,
				enums.PageContacts:    true,
				enums.PageReports:     false,
				enums.PageAutomations: false,
				enums.PageIntegration: false,
			},
		},
		{
			ID:       enums.PlanStarter,
			Name:     "Starter",
			Price:    decimal.NewFromInt(29),
			Interval: enums.BillingIntervalMonthly,
			PriceID:  cfg.StarterPriceID,
			Features: map[enums.PageKey]bool{
				enums.PageDashboard:   true,
				enums.PageContacts:    true,
				enums.PageReports:     true,
				enums.PageAutomations: false,
				enums.PageIntegration: false,
			},
		},
		{
			ID:        enums.PlanPro,
			Name:      "Pro",
			Price:     decimal.NewFromInt(79),
			Interval:  enums.BillingIntervalMonthly,
			TrialDays: 14,
			PriceID:   cfg.ProPriceID,
			Features: map[enums.PageKey]bool{
				enums.PageDashboard:   true,
				enums.PageContacts:    true,
				enums.PageReports:     true,
				enums.PageAutomations: true,
				enums.PageIntegration: true,
			},
		},
	}

	byID := make(map[enums.PlanID]Plan, len(defs))
	ordered := make([]enums.PlanID, 0, len(defs))
	for _, plan := range defs {
		byID[plan.ID] = plan
		ordered = append(ordered, plan.ID)
	}
	return &Catalog{byID: byID, ordered: ordered}
}

// Default returns the plan every organization starts on and falls back to.
func (c *Catalog) Default() enums.PlanID {
	return enums.PlanFree
}

// IsValid reports whether the id names a catalog plan. Malformed external
// input must be validated through here before any lookup is trusted.
func (c *Catalog) IsValid(id enums.PlanID) bool {
	_, ok := c.byID[id]
	return ok
}

// ByID returns the plan for the id, or (zero, false) for unknown ids.
func (c *Catalog) ByID(id enums.PlanID) (Plan, bool) {
	plan, ok := c.byID[id]
	return plan, ok
}

// ByPriceID correlates an external processor price id back to a plan.
func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, id := range c.ordered {
		plan := c.byID[id]
		if plan.PriceID != "" && plan.PriceID == priceID {
			return plan, true
		}
	}
	return Plan{}, false
}

// FeatureMap returns a copy of the plan's feature flags. Unknown ids resolve
// to the default plan's features so callers always get a complete map.
func (c *Catalog) FeatureMap(id enums.PlanID) map[enums.PageKey]bool {
	plan, ok := c.byID[id]
	if !ok {
		plan = c.byID[c.Default()]
	}
	out := make(map[enums.PageKey]bool, len(plan.Features))
	for k, v := range plan.Features {
		out[k] = v
	}
	return out
}

// TrialLength returns the trial duration the plan offers, zero when none.
func (c *Catalog) TrialLength(id enums.PlanID) time.Duration {
	plan, ok := c.byID[id]
	if !ok {
		return 0
	}
	return time.Duration(plan.TrialDays) * 24 * time.Hour
}

// List returns the catalog in display order.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.ordered))
	for _, id := range c.ordered {
		out = append(out, c.byID[id])
	}
	return out
}
