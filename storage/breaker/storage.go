package breaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Storage wraps a storefront.RecordSource with circuit breaker protection.
// A missing record is an answer, not a failure, and does not trip the breaker.
type Storage struct {
	source storefront.RecordSource
	cb     CircuitBreaker
}

// New creates a record source guarded by cb.
func New(source storefront.RecordSource, cb CircuitBreaker) (*Storage, error) {
	if source == nil || cb == nil {
		return nil, errors.New("breaker: record source and circuit breaker are required")
	}
	return &Storage{source: source, cb: cb}, nil
}

// FetchRecord implements storefront.RecordSource
func (s *Storage) FetchRecord(ctx context.Context, userID string) (*storefront.EntitlementRecord, error) {
	var rec *storefront.EntitlementRecord
	var notFound error
	err := s.cb.Execute(ctx, func() error {
		var e error
		rec, e = s.source.FetchRecord(ctx, userID)
		if errors.Is(e, storefront.ErrRecordNotFound) {
			notFound = e
			return nil
		}
		return e
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("subscription record store unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return rec, nil
}

// Invalidate passes through to a caching source and is not guarded.
func (s *Storage) Invalidate(ctx context.Context, userID string) error {
	if inv, ok := s.source.(storefront.Invalidator); ok {
		return inv.Invalidate(ctx, userID)
	}
	return nil
}
