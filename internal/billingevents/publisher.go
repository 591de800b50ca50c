package billingevents

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/pkg/enums"
	"github.com/teamlumen/lumen-backend/pkg/logger"
)

// Source labels which writer produced a billing state change.
type Source string

const (
	SourcePlanChange Source = "plan_change"
	SourceWebhook    Source = "webhook"
	SourceDowngrade  Source = "downgrade"
)

// Event is the published record of a billing state change. Consumers
// (analytics, notifications) treat it as informational; the database row is
// the source of truth.
type Event struct {
	OrganizationID uuid.UUID           `json:"organization_id"`
	PlanID         enums.PlanID        `json:"plan_id"`
	BillingStatus  enums.BillingStatus `json:"billing_status"`
	Source         Source              `json:"source"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Publisher emits billing change events to Pub/Sub. Publication is best
// effort: a failed publish is logged and never fails the billing write that
// triggered it.
type Publisher struct {
	topic topicPublisher
	logg  *logger.Logger
}

// NewPublisher wraps the billing topic. A nil topic yields a no-op publisher
// so local setups without Pub/Sub still run.
func NewPublisher(topic *pubsub.Publisher, logg *logger.Logger) *Publisher {
	if topic == nil {
		return &Publisher{logg: logg}
	}
	return &Publisher{topic: topic, logg: logg}
}

// BillingChanged publishes the event, waiting for the broker ack so delivery
// failures surface in logs while the request is still in flight.
func (p *Publisher) BillingChanged(ctx context.Context, event Event) {
	if p == nil || p.topic == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		if p.logg != nil {
			p.logg.Error(ctx, "marshal billing event", err)
		}
		return
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type":      "billing.changed",
			"source":          string(event.Source),
			"organization_id": event.OrganizationID.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil && p.logg != nil {
		p.logg.Error(ctx, "publish billing event", err)
	}
}
