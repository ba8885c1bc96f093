// Package firestore provides a Firestore implementation of the storefront.RecordSource interface.
// Subscription records live in one document per user, keyed by user id.
package firestore

import (
	"context"
	"fmt"
	"math"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Document field names written by the billing backend.
const (
	FieldSubscriptionStatus = "subscription_status"
	FieldCurrentPeriodEnd   = "current_period_end"
	FieldCancelAtPeriodEnd  = "cancel_at_period_end"
	FieldUpdatedAt          = "updated_at"
)

// Storage implements storefront.RecordSource using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore storage configuration
type Config struct {
	// LicensesCollection is the Firestore collection of subscription records
	// Default: "user_licenses"
	LicensesCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.LicensesCollection == "" {
		config.LicensesCollection = "user_licenses"
	}

	return &Storage{
		client:     client,
		collection: config.LicensesCollection,
	}, nil
}

// FetchRecord implements storefront.RecordSource
func (s *Storage) FetchRecord(ctx context.Context, userID string) (*storefront.EntitlementRecord, error) {
	if userID == "" {
		return nil, storefront.ErrRecordNotFound
	}

	snap, err := s.client.Collection(s.collection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, storefront.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get subscription record: %w", err)
	}
	if !snap.Exists() {
		return nil, storefront.ErrRecordNotFound
	}

	return recordFromData(userID, snap.Data()), nil
}

// SetRecord writes a subscription record. The billing backend owns these
// documents in production; this is for seeding and local development.
func (s *Storage) SetRecord(ctx context.Context, rec *storefront.EntitlementRecord) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	data := map[string]interface{}{
		FieldSubscriptionStatus: string(rec.Status),
		FieldUpdatedAt:          time.Now().UTC(),
	}
	if rec.CurrentPeriodEnd != nil {
		data[FieldCurrentPeriodEnd] = rec.CurrentPeriodEnd.UTC()
	}
	if rec.CancelAtPeriodEnd != nil {
		data[FieldCancelAtPeriodEnd] = *rec.CancelAtPeriodEnd
	}

	if _, err := s.client.Collection(s.collection).Doc(rec.UserID).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to set subscription record: %w", err)
	}
	return nil
}

// DeleteRecord removes a user's subscription record.
func (s *Storage) DeleteRecord(ctx context.Context, userID string) error {
	if _, err := s.client.Collection(s.collection).Doc(userID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete subscription record: %w", err)
	}
	return nil
}

// recordFromData decodes a document. Missing status reads as inactive.
func recordFromData(userID string, data map[string]interface{}) *storefront.EntitlementRecord {
	rec := &storefront.EntitlementRecord{
		UserID: userID,
		Status: storefront.Status(getString(data, FieldSubscriptionStatus)),
	}
	if rec.Status == "" {
		rec.Status = storefront.StatusInactive
	}
	if t, ok := getTime(data, FieldCurrentPeriodEnd); ok {
		rec.CurrentPeriodEnd = &t
	}
	if b, ok := data[FieldCancelAtPeriodEnd].(bool); ok {
		rec.CancelAtPeriodEnd = &b
	}
	return rec
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// getTime accepts a Firestore timestamp or Unix seconds, as webhook
// handlers store either.
func getTime(data map[string]interface{}, key string) (time.Time, bool) {
	switch v := data[key].(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	case float64:
		return time.Unix(int64(math.Round(v)), 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
