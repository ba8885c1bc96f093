// Package checkout starts a hosted payment checkout for the signed-in identity.
//
// The checkout session is minted by a backend webhook. Its response shape varies,
// so it is reduced to a Resolution before the Redirector takes the visitor to
// the payment page.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mihaimyh/storefront/pkg/internal"
	"github.com/mihaimyh/storefront/pkg/storefront"
)

const (
	endpointName          = "checkout"
	defaultHTTPTimeout    = 10 * time.Second
	defaultMode           = "subscription"
	defaultBillingModel   = "monthly_all_access"
	maxResponseSize       = 1 << 20
	genericBackendMessage = "Failed to create checkout session"
)

// SnapshotReader is the read side of the entitlement store.
type SnapshotReader interface {
	Current() storefront.Snapshot
}

// Redirector takes the visitor to the payment page.
type Redirector interface {
	// RedirectToURL navigates to a hosted checkout URL.
	RedirectToURL(ctx context.Context, url string) error

	// RedirectToSession redeems a checkout session id with the payment processor.
	RedirectToSession(ctx context.Context, sessionID string) error
}

// Config configures the purchase workflow.
type Config struct {
	// WebhookURL is the checkout-session backend endpoint
	WebhookURL string

	// PriceID is the recurring price every product checks out against
	PriceID string

	// Mode is sent to the backend. Default: "subscription".
	Mode string

	// BillingModel is sent to the backend. Default: "monthly_all_access".
	BillingModel string

	// HTTPClient is an optional HTTP client for backend calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Redirector performs the final navigation (required)
	Redirector Redirector

	Logger  storefront.Logger
	Metrics storefront.Metrics
}

// Workflow initiates checkouts.
type Workflow struct {
	store      SnapshotReader
	config     Config
	httpClient *http.Client
	redirector Redirector
	logger     storefront.Logger
	metrics    storefront.Metrics
}

// Request is the body sent to the checkout backend.
type Request struct {
	PriceID      string `json:"priceId"`
	ProductID    string `json:"productId"`
	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail,omitempty"`
	Mode         string `json:"mode"`
	BillingModel string `json:"billingModel"`
}

// New creates a purchase workflow reading identity from store.
// Missing endpoint or price are reported when a checkout is attempted.
func New(store SnapshotReader, config Config) (*Workflow, error) {
	if store == nil {
		return nil, &storefront.ConfigurationError{Setting: "entitlement store"}
	}
	if config.Redirector == nil {
		return nil, &storefront.ConfigurationError{Setting: "checkout redirector"}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if config.Mode == "" {
		config.Mode = defaultMode
	}
	if config.BillingModel == "" {
		config.BillingModel = defaultBillingModel
	}

	return &Workflow{
		store:      store,
		config:     config,
		httpClient: httpClient,
		redirector: config.Redirector,
		logger:     storefront.LoggerOrNoop(config.Logger),
		metrics:    storefront.MetricsOrNoop(config.Metrics),
	}, nil
}

// Initiate creates a checkout session for productID and redirects to it.
//
// It returns storefront.ErrRequiresAuthentication without any network call when
// nobody is signed in. Backend failures are CheckoutSessionError, unusable
// responses ErrMalformedCheckoutResponse and processor failures RedirectError.
func (w *Workflow) Initiate(ctx context.Context, productID string) (Resolution, error) {
	snap := w.store.Current()
	if snap.Identity == nil {
		w.metrics.RecordCheckout("unauthenticated")
		return Resolution{}, storefront.ErrRequiresAuthentication
	}
	if strings.TrimSpace(w.config.PriceID) == "" {
		w.metrics.RecordCheckout("config_error")
		return Resolution{}, &storefront.ConfigurationError{Setting: "subscription price"}
	}
	if strings.TrimSpace(w.config.WebhookURL) == "" {
		w.metrics.RecordCheckout("config_error")
		return Resolution{}, &storefront.ConfigurationError{Setting: "checkout webhook URL"}
	}

	res, err := w.createSession(ctx, Request{
		PriceID:      w.config.PriceID,
		ProductID:    productID,
		UserID:       snap.Identity.UID,
		UserEmail:    snap.Identity.Email,
		Mode:         w.config.Mode,
		BillingModel: w.config.BillingModel,
	})
	if err != nil {
		w.logger.Error("checkout session failed",
			storefront.Field{Key: "product_id", Value: productID},
			storefront.Field{Key: "error", Value: err},
		)
		return Resolution{}, err
	}

	switch res.Kind {
	case ResolvedURL:
		err = w.redirector.RedirectToURL(ctx, res.URL)
	case ResolvedSessionID:
		err = w.redirector.RedirectToSession(ctx, res.SessionID)
	}
	if err != nil {
		w.metrics.RecordCheckout("redirect_error")
		w.logger.Error("checkout redirect failed", storefront.Field{Key: "error", Value: err})
		var re *storefront.RedirectError
		if errors.As(err, &re) {
			return res, err
		}
		return res, &storefront.RedirectError{Err: err}
	}

	w.metrics.RecordCheckout(res.Kind.String())
	w.logger.Info("checkout redirect",
		storefront.Field{Key: "product_id", Value: productID},
		storefront.Field{Key: "kind", Value: res.Kind.String()},
	)
	return res, nil
}

func (w *Workflow) createSession(ctx context.Context, req Request) (Resolution, error) {
	start := time.Now()
	resp, err := internal.PostJSON(ctx, w.httpClient, w.config.WebhookURL, req, nil)
	if err != nil {
		w.metrics.RecordWebhookCall(endpointName, "error", time.Since(start))
		w.metrics.RecordCheckout("backend_error")
		return Resolution{}, &storefront.CheckoutSessionError{Message: genericBackendMessage + ": " + err.Error()}
	}
	defer func() { _ = internal.DrainAndClose(resp.Body) }()
	w.metrics.RecordWebhookCall(endpointName, strconv.Itoa(resp.StatusCode), time.Since(start))

	if !internal.Success(resp.StatusCode) {
		w.metrics.RecordCheckout("backend_error")
		return Resolution{}, &storefront.CheckoutSessionError{
			StatusCode: resp.StatusCode,
			Message:    internal.ErrorMessage(resp, genericBackendMessage),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		w.metrics.RecordCheckout("backend_error")
		return Resolution{}, &storefront.CheckoutSessionError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("read checkout response: %v", err),
		}
	}

	res, err := DecodeResponse(data)
	if err == nil && res.Kind == ResolvedNeither {
		err = storefront.ErrMalformedCheckoutResponse
	}
	if err != nil {
		w.metrics.RecordCheckout("malformed")
		w.logger.Error("invalid checkout session response", storefront.Field{Key: "body", Value: string(data)})
		return Resolution{}, err
	}
	return res, nil
}
