package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teamlumen/lumen-backend/api/controllers"
	billingcontrollers "github.com/teamlumen/lumen-backend/api/controllers/billing"
	webhookcontrollers "github.com/teamlumen/lumen-backend/api/controllers/webhooks"
	"github.com/teamlumen/lumen-backend/api/middleware"
	"github.com/teamlumen/lumen-backend/internal/featuregate"
	stripewebhook "github.com/teamlumen/lumen-backend/internal/webhooks/stripe"
	"github.com/teamlumen/lumen-backend/pkg/config"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	"github.com/teamlumen/lumen-backend/pkg/logger"
	"github.com/teamlumen/lumen-backend/pkg/stripe"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	PubSub         controllers.Pinger
	BillingService billingcontrollers.BillingService
	FeatureGate    featuregate.Service
	Memberships    middleware.MembershipChecker
	StripeClient   *stripe.Client
	WebhookService webhookcontrollers.StripeWebhookService
	WebhookGuard   *stripewebhook.IdempotencyGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
			"pubsub":   deps.PubSub,
		}))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.WebhookService, deps.StripeClient, deps.WebhookGuard, logg))
	})

	r.Get("/api/v1/plans", billingcontrollers.Plans(deps.BillingService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.OrgContext(logg))

		r.Route("/billing", func(r chi.Router) {
			r.Get("/", billingcontrollers.Overview(deps.BillingService, logg))
			r.Get("/invoices", billingcontrollers.Invoices(deps.BillingService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOrgRoles(deps.Memberships, logg, enums.MemberRoleOwner, enums.MemberRoleAdmin))
				r.Post("/plan", billingcontrollers.ChangePlan(deps.BillingService, logg))
				r.Post("/downgrade", billingcontrollers.Downgrade(deps.BillingService, logg))
				r.Post("/checkout", billingcontrollers.Checkout(deps.BillingService, logg))
				r.Post("/portal", billingcontrollers.Portal(deps.BillingService, logg))
			})
		})

		r.Get("/features/{page}", controllers.FeatureCheck(deps.FeatureGate, logg))
	})

	return r
}
