// Package delivery downloads the personalized bundle for the signed-in identity.
package delivery

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mihaimyh/storefront/pkg/internal"
	"github.com/mihaimyh/storefront/pkg/storefront"
)

const (
	endpointName          = "delivery"
	defaultHTTPTimeout    = 5 * time.Minute
	genericBackendMessage = "Failed to download file"
)

// SnapshotReader is the read side of the entitlement store.
type SnapshotReader interface {
	Current() storefront.Snapshot
}

// TokenSource supplies a current bearer token, renewing it when needed.
// *storefront.Session implements it.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// Config configures the delivery workflow.
type Config struct {
	// WebhookURL is the bundle backend endpoint
	WebhookURL string

	// DefaultFilename names the artifact when the response does not.
	// Default: DefaultFilename.
	DefaultFilename string

	// HTTPClient is an optional HTTP client for backend calls.
	// If nil, a default client with a 5 minute timeout will be used since
	// bundles are assembled on request.
	HTTPClient *http.Client

	// Saver persists the artifact. Default: FileSaver in the current directory.
	Saver Saver

	// Tokens renews expired ID tokens. If nil, the token held by the store is
	// sent while it is valid and an expired one fails with ErrSessionExpired.
	Tokens TokenSource

	// SkipEntitlementCheck lets the backend decide who may download
	SkipEntitlementCheck bool

	Logger  storefront.Logger
	Metrics storefront.Metrics
}

// Request is the body sent to the delivery backend.
type Request struct {
	UserID string `json:"user_id"`
}

// Result describes a saved artifact.
type Result struct {
	Filename string
	Path     string
	Bytes    int64
}

// Workflow downloads artifacts.
type Workflow struct {
	store      SnapshotReader
	config     Config
	httpClient *http.Client
	saver      Saver
	logger     storefront.Logger
	metrics    storefront.Metrics
	now        func() time.Time
}

// New creates a delivery workflow reading identity and ownership from store.
func New(store SnapshotReader, config Config) (*Workflow, error) {
	if store == nil {
		return nil, &storefront.ConfigurationError{Setting: "entitlement store"}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	saver := config.Saver
	if saver == nil {
		saver = FileSaver{}
	}
	if config.DefaultFilename == "" {
		config.DefaultFilename = DefaultFilename
	}

	return &Workflow{
		store:      store,
		config:     config,
		httpClient: httpClient,
		saver:      saver,
		logger:     storefront.LoggerOrNoop(config.Logger),
		metrics:    storefront.MetricsOrNoop(config.Metrics),
		now:        time.Now,
	}, nil
}

// Download requests the bundle for the current identity and saves it.
func (w *Workflow) Download(ctx context.Context) (*Result, error) {
	snap := w.store.Current()
	if snap.Identity == nil {
		w.metrics.RecordDelivery("unauthenticated")
		return nil, storefront.ErrRequiresAuthentication
	}
	if strings.TrimSpace(w.config.WebhookURL) == "" {
		w.metrics.RecordDelivery("config_error")
		return nil, &storefront.ConfigurationError{Setting: "download webhook URL"}
	}
	if !w.config.SkipEntitlementCheck && snap.Owned.Len() == 0 {
		w.metrics.RecordDelivery("not_entitled")
		return nil, storefront.ErrNotEntitled
	}

	token, err := w.bearerToken(ctx, snap.Identity)
	if err != nil {
		w.metrics.RecordDelivery("unauthenticated")
		w.logger.Warn("no valid id token for download", storefront.Field{Key: "error", Value: err})
		return nil, err
	}
	var header http.Header
	if token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}

	start := time.Now()
	resp, err := internal.PostJSON(ctx, w.httpClient, w.config.WebhookURL, Request{UserID: snap.Identity.UID}, header)
	if err != nil {
		w.metrics.RecordWebhookCall(endpointName, "error", time.Since(start))
		w.metrics.RecordDelivery("backend_error")
		return nil, &storefront.DeliveryError{Message: genericBackendMessage + ": " + err.Error()}
	}
	defer func() { _ = internal.DrainAndClose(resp.Body) }()
	w.metrics.RecordWebhookCall(endpointName, strconv.Itoa(resp.StatusCode), time.Since(start))

	if !internal.Success(resp.StatusCode) {
		w.metrics.RecordDelivery("backend_error")
		derr := &storefront.DeliveryError{
			StatusCode: resp.StatusCode,
			Message:    internal.ErrorMessage(resp, genericBackendMessage),
		}
		w.logger.Error("download failed",
			storefront.Field{Key: "status", Value: resp.StatusCode},
			storefront.Field{Key: "error", Value: derr},
		)
		return nil, derr
	}

	filename := ResolveFilename(resp.Header.Get("Content-Disposition"), w.config.DefaultFilename)
	path, n, err := w.saver.Save(ctx, filename, resp.Body)
	if err != nil {
		w.metrics.RecordDelivery("save_error")
		w.logger.Error("saving artifact failed",
			storefront.Field{Key: "filename", Value: filename},
			storefront.Field{Key: "error", Value: err},
		)
		return nil, &storefront.DeliveryError{StatusCode: resp.StatusCode, Message: genericBackendMessage + ": " + err.Error()}
	}

	w.metrics.RecordDelivery("success")
	w.metrics.RecordDeliveryBytes(n)
	w.logger.Info("artifact saved",
		storefront.Field{Key: "path", Value: path},
		storefront.Field{Key: "bytes", Value: n},
	)
	return &Result{Filename: filename, Path: path, Bytes: n}, nil
}

func (w *Workflow) bearerToken(ctx context.Context, id *storefront.Identity) (string, error) {
	if w.config.Tokens != nil {
		return w.config.Tokens.IDToken(ctx)
	}
	if id.IDToken != "" && id.TokenExpired(w.now()) {
		return "", storefront.ErrSessionExpired
	}
	return id.IDToken, nil
}
