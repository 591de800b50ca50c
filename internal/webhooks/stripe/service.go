package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/subscription"

	"github.com/teamlumen/lumen-backend/internal/billing"
	"github.com/teamlumen/lumen-backend/internal/billingevents"
	"github.com/teamlumen/lumen-backend/pkg/db/models"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/logger"
	"github.com/teamlumen/lumen-backend/pkg/metrics"
	"github.com/teamlumen/lumen-backend/pkg/plans"
	pkgstripe "github.com/teamlumen/lumen-backend/pkg/stripe"
)

const (
	metadataOrgIDKey  = billing.MetadataOrgIDKey
	metadataPlanIDKey = billing.MetadataPlanIDKey
)

// StripeSubscriptionFetcher fetches the authoritative subscription when an
// event carries only its id.
type StripeSubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type stripeFetcher struct{}

// NewStripeFetcher wraps the initialized Stripe client for subscription reads.
func NewStripeFetcher(api *pkgstripe.Client) StripeSubscriptionFetcher {
	if api == nil {
		return nil
	}
	return &stripeFetcher{}
}

func (f *stripeFetcher) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(id, params)
}

type eventPublisher interface {
	BillingChanged(ctx context.Context, event billingevents.Event)
}

// ServiceParams groups dependencies for the webhook service.
type ServiceParams struct {
	BillingRepo  billing.Repository
	Catalog      *plans.Catalog
	StripeClient StripeSubscriptionFetcher
	Events       eventPublisher
	Logger       *logger.Logger
	Metrics      *metrics.WebhookMetrics
}

// Service reconciles incoming Stripe events into organization billing state.
type Service struct {
	billingRepo billing.Repository
	catalog     *plans.Catalog
	stripe      StripeSubscriptionFetcher
	events      eventPublisher
	logg        *logger.Logger
	metrics     *metrics.WebhookMetrics
	now         func() time.Time
}

// NewService builds a webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &Service{
		billingRepo: params.BillingRepo,
		catalog:     params.Catalog,
		stripe:      params.StripeClient,
		events:      params.Events,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleEvent routes a verified Stripe event. Unrecognized event types are
// acknowledged without effect; a returned error means the caller should
// respond 5xx so Stripe redelivers.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	start := s.now()
	err := s.routeEvent(ctx, event)
	s.metrics.ObserveDuration(string(event.Type), s.now().Sub(start))
	if err != nil {
		s.metrics.IncFailed(string(event.Type))
	}
	return err
}

func (s *Service) routeEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.syncSubscription(ctx, string(event.Type), &stripeSub)
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		if session.Subscription == nil || session.Subscription.ID == "" {
			// Sessions without a subscription carry no billing state.
			return nil
		}
		return s.fetchAndSync(ctx, string(event.Type), session.Subscription.ID)
	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		subscriptionID := event.GetObjectValue("subscription")
		if subscriptionID == "" {
			return nil
		}
		return s.fetchAndSync(ctx, string(event.Type), subscriptionID)
	default:
		return nil
	}
}

func (s *Service) fetchAndSync(ctx context.Context, eventType, subscriptionID string) error {
	stripeSub, err := s.stripe.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	return s.syncSubscription(ctx, eventType, stripeSub)
}

func (s *Service) syncSubscription(ctx context.Context, eventType string, stripeSub *stripe.Subscription) error {
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}

	event := NewSubscriptionEvent(stripeSub)
	org, err := s.resolveOrganization(ctx, event)
	if err != nil {
		return err
	}
	if org == nil {
		// Uncorrelatable events are acknowledged: redelivery cannot resolve
		// an organization that does not exist here.
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"subscription_id": event.SubscriptionID,
				"customer_id":     event.CustomerID,
			}), "dropping uncorrelatable subscription event")
		}
		s.metrics.IncDropped(eventType, "uncorrelatable")
		return nil
	}

	now := s.now()
	patch := Reconcile(s.catalog, org, event, now)
	if err := s.billingRepo.ApplyBillingPatch(ctx, org.ID, org.BillingVersion, patch); err != nil {
		return err
	}
	s.metrics.IncProcessed(eventType)

	if s.events != nil {
		s.events.BillingChanged(ctx, billingevents.Event{
			OrganizationID: org.ID,
			PlanID:         patch.PlanID,
			BillingStatus:  patch.BillingStatus,
			Source:         billingevents.SourceWebhook,
			OccurredAt:     now,
		})
	}
	return nil
}

// resolveOrganization correlates the event to a tenant: stamped metadata
// first, then the stored subscription id, then the stored customer id.
func (s *Service) resolveOrganization(ctx context.Context, event SubscriptionEvent) (*models.Organization, error) {
	if raw, ok := event.Metadata[metadataOrgIDKey]; ok {
		if orgID, err := uuid.Parse(raw); err == nil {
			org, err := s.billingRepo.FindByID(ctx, orgID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
			}
			if org != nil {
				return org, nil
			}
		}
	}

	org, err := s.billingRepo.FindBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find by subscription id")
	}
	if org != nil {
		return org, nil
	}

	org, err = s.billingRepo.FindByCustomerID(ctx, event.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find by customer id")
	}
	return org, nil
}
