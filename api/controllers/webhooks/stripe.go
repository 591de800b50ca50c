package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/teamlumen/lumen-backend/api/responses"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/logger"
)

// Payloads beyond this size cannot be legitimate subscription events.
const maxEventPayloadBytes = 1 << 20

// StripeWebhookService consumes verified, deduplicated Stripe events.
type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

// StripeWebhook verifies, deduplicates and dispatches Stripe deliveries.
// Signature failures are rejected outright; only handler errors surface as
// retryable so Stripe redelivers them.
func StripeWebhook(svc StripeWebhookService, secrets signingSecretSource, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || secrets == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline not configured"))
			return
		}

		event, err := verifiedEvent(w, r, secrets.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		duplicate, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark webhook delivery"))
			return
		}
		if duplicate {
			if logg != nil {
				logg.Info(logg.WithField(ctx, "event_id", event.ID), "duplicate stripe delivery acknowledged")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			// Release the mark so the redelivery is not mistaken for a duplicate.
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": string(event.Type),
			}), "stripe event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}

// verifiedEvent reads the delivery body and checks the Stripe-Signature
// header against the signing secret. A missing or bad signature is a client
// rejection, never a retryable failure.
func verifiedEvent(w http.ResponseWriter, r *http.Request, secret string) (*stripe.Event, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventPayloadBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook payload")
	}

	header := r.Header.Get("Stripe-Signature")
	if header == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}

	event, err := webhook.ConstructEvent(payload, header, secret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe signature verification failed")
	}
	return &event, nil
}
