package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

const defaultKeepAlive = 30 * time.Second

// Source is the read and subscribe side of the entitlement store.
type Source interface {
	Current() storefront.Snapshot
	Subscribe(obs storefront.Observer) (unsubscribe func())
}

// Config holds configuration for the renderer API handler
type Config struct {
	// Store is the entitlement store to expose (required)
	Store Source

	// KeepAlive is the interval of comment frames on the event stream.
	// Default: 30s.
	KeepAlive time.Duration

	// OnError handles errors (encoding, unsupported streaming)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is optional. If nil, nothing is logged.
	Logger storefront.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	return nil
}

// NewHandler creates a new renderer API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = defaultKeepAlive
	}
	return &Handler{
		config: config,
		logger: storefront.LoggerOrNoop(config.Logger),
	}, nil
}
