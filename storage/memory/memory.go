// Package memory provides an in-memory implementation of the storefront.RecordSource interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Storage implements storefront.RecordSource using an in-memory map
type Storage struct {
	mu      sync.RWMutex
	records map[string]*storefront.EntitlementRecord
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		records: make(map[string]*storefront.EntitlementRecord),
	}
}

// FetchRecord implements storefront.RecordSource
func (s *Storage) FetchRecord(ctx context.Context, userID string) (*storefront.EntitlementRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, storefront.ErrRecordNotFound
	}

	// Return a copy to prevent external mutations
	return rec.Clone(), nil
}

// SetRecord stores a subscription record
func (s *Storage) SetRecord(ctx context.Context, rec *storefront.EntitlementRecord) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutations
	s.records[rec.UserID] = rec.Clone()
	return nil
}

// DeleteRecord removes a user's subscription record
func (s *Storage) DeleteRecord(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
	return nil
}
