// Package stripe implements checkout.Redirector on top of Stripe Checkout.
package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/browser"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

const (
	endpointSessions     = "stripe_sessions"
	publishableKeyPrefix = "pk_"
)

// SessionRetriever fetches a Checkout Session by id.
// *stripe.Client satisfies it through NewSessionRetriever.
type SessionRetriever interface {
	Retrieve(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

type clientRetriever struct {
	client *stripe.Client
}

// NewSessionRetriever wraps a stripe-go client.
func NewSessionRetriever(client *stripe.Client) SessionRetriever {
	return &clientRetriever{client: client}
}

func (r *clientRetriever) Retrieve(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	return r.client.V1CheckoutSessions.Retrieve(ctx, id, &stripe.CheckoutSessionRetrieveParams{})
}

// Config configures the Stripe redirector.
type Config struct {
	// APIKey is a restricted key allowed to read Checkout Sessions.
	// Needed only for redirects by session id.
	APIKey string

	// Sessions overrides the session lookup. If nil, one is built from APIKey.
	Sessions SessionRetriever

	// Opener navigates to a URL. Default: the platform browser.
	Opener func(url string) error

	Logger  storefront.Logger
	Metrics storefront.Metrics
}

// Redirector opens hosted checkout pages.
type Redirector struct {
	sessions SessionRetriever
	open     func(url string) error
	logger   storefront.Logger
	metrics  storefront.Metrics
}

// NewRedirector creates a Redirector.
func NewRedirector(config Config) *Redirector {
	logger := storefront.LoggerOrNoop(config.Logger)
	sessions := config.Sessions
	if sessions == nil {
		switch key := strings.TrimSpace(config.APIKey); {
		case key == "":
		case strings.HasPrefix(key, publishableKeyPrefix):
			// publishable keys cannot read Checkout Sessions
			logger.Warn("stripe publishable key ignored for session lookup")
		default:
			sessions = NewSessionRetriever(stripe.NewClient(key))
		}
	}
	open := config.Opener
	if open == nil {
		open = browser.OpenURL
	}
	return &Redirector{
		sessions: sessions,
		open:     open,
		logger:   logger,
		metrics:  storefront.MetricsOrNoop(config.Metrics),
	}
}

// RedirectToURL opens a hosted checkout URL.
func (r *Redirector) RedirectToURL(_ context.Context, url string) error {
	if err := r.open(url); err != nil {
		return &storefront.RedirectError{Err: err}
	}
	r.logger.Debug("opened checkout page", storefront.Field{Key: "url", Value: url})
	return nil
}

// RedirectToSession looks the session up and opens its hosted page.
// Sessions that are no longer open are rejected.
func (r *Redirector) RedirectToSession(ctx context.Context, sessionID string) error {
	if r.sessions == nil {
		return &storefront.RedirectError{Err: &storefront.ConfigurationError{Setting: "stripe API key"}}
	}

	start := time.Now()
	session, err := r.sessions.Retrieve(ctx, sessionID)
	if err != nil {
		r.metrics.RecordWebhookCall(endpointSessions, "error", time.Since(start))
		return &storefront.RedirectError{Err: fmt.Errorf("retrieve session %s: %w", sessionID, err)}
	}
	r.metrics.RecordWebhookCall(endpointSessions, "200", time.Since(start))

	if session.Status != "" && session.Status != stripe.CheckoutSessionStatusOpen {
		return &storefront.RedirectError{Err: fmt.Errorf("session %s is %s", sessionID, session.Status)}
	}
	if session.URL == "" {
		return &storefront.RedirectError{Err: fmt.Errorf("session %s has no hosted URL", sessionID)}
	}
	return r.RedirectToURL(ctx, session.URL)
}
