// Package stripe is the provider side of checkout and refunds. Webhook
// verification lives with the reconciler; this package only hands it the
// signing secret.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
)

// Secret and restricted keys carry their mode in the prefix.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = errors.New(`stripe environment must be "test" or "live"`)
)

type (
	sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	refundCreator  func(params *stripe.RefundParams) (*stripe.Refund, error)
)

type Client struct {
	newSession    sessionCreator
	newRefund     refundCreator
	environment   string
	signingSecret string
	currency      string
	successURL    string
	cancelURL     string
}

// NewClient checks the whole config and reports every problem at once.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)

	var problems []error
	if apiKey == "" {
		problems = append(problems, errAPIKeyRequired)
	}
	if secret == "" {
		problems = append(problems, errSecretRequired)
	}
	prefixes, ok := keyPrefixes[env]
	switch {
	case !ok:
		problems = append(problems, errInvalidStripeEnv)
	case apiKey != "" && !hasAnyPrefix(apiKey, prefixes):
		problems = append(problems, fmt.Errorf("stripe %s environment needs a %s key", env, strings.Join(prefixes, " or ")))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	c := &Client{
		newSession:    session.New,
		newRefund:     refund.New,
		environment:   env,
		signingSecret: secret,
		currency:      strings.ToLower(strings.TrimSpace(cfg.Currency)),
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
	}
	if c.currency == "" {
		c.currency = string(stripe.CurrencyUSD)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_env": env, "currency": c.currency}), "stripe client initialized")
	}
	return c, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret is the webhook endpoint secret (whsec_...).
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
