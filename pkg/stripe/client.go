package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/teamlumen/lumen-backend/pkg/config"
	"github.com/teamlumen/lumen-backend/pkg/logger"
)

// Secret key prefixes Stripe issues per environment. Initialization refuses a
// key that does not match the configured environment so a live key can never
// reach a test deployment or vice versa.
var keyPrefixesByEnv = map[string][]string{
	"test": {"sk_test", "rk_test"},
	"live": {"sk_live", "rk_live"},
}

// Client holds the webhook signing secret and records that the package-level
// Stripe bindings were initialized. All API calls go through the package
// bindings once stripe.Key is set.
type Client struct {
	signingSecret string
}

// NewClient validates the configured secrets and initializes the Stripe SDK.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := strings.TrimSpace(strings.ToLower(cfg.Environment()))
	if env == "" {
		env = "test"
	}
	prefixes, ok := keyPrefixesByEnv[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be \"test\" or \"live\", got %q", env)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe environment %q requires a key prefixed %s", env, strings.Join(prefixes, "/"))
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errors.New("stripe webhook signing secret is required")
	}

	stripe.Key = apiKey
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}
	return &Client{signingSecret: signingSecret}, nil
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
