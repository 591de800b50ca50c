package stripewebhook

import (
	"time"

	"github.com/stripe/stripe-go/v84"
)

// SubscriptionEvent is the normalized view of a Stripe subscription payload.
// Reconciliation works only off this struct so the decision logic stays
// independent of the SDK's object shape.
type SubscriptionEvent struct {
	SubscriptionID    string
	CustomerID        string
	Status            stripe.SubscriptionStatus
	PriceID           string
	CurrentPeriodEnd  *time.Time
	CancelAt          *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	EndedAt           *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
	Metadata          map[string]string
}

// NewSubscriptionEvent normalizes the SDK object. Period dates live on the
// subscription items in current API versions.
func NewSubscriptionEvent(sub *stripe.Subscription) SubscriptionEvent {
	if sub == nil {
		return SubscriptionEvent{}
	}

	event := SubscriptionEvent{
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		CancelAt:          toTimePtr(sub.CancelAt),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        toTimePtr(sub.CanceledAt),
		EndedAt:           toTimePtr(sub.EndedAt),
		TrialStart:        toTimePtr(sub.TrialStart),
		TrialEnd:          toTimePtr(sub.TrialEnd),
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		event.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		event.CurrentPeriodEnd = toTimePtr(item.CurrentPeriodEnd)
		if item.Price != nil {
			event.PriceID = item.Price.ID
		}
	}
	return event
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
