// Package redis provides a Redis implementation of the storefront.RecordSource interface.
// Each record is a hash at <prefix>license:<user id>, usually populated as a
// short-lived copy of the durable record store.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Hash field names.
const (
	fieldStatus    = "subscription_status"
	fieldPeriodEnd = "current_period_end"
	fieldCancel    = "cancel_at_period_end"
)

// Storage implements storefront.RecordSource using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "storefront:")
	KeyPrefix string

	// RecordTTL is the TTL for record keys (0 = no expiration)
	RecordTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "storefront:",
		RecordTTL: 5 * time.Minute,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "storefront:"
	}

	return &Storage{
		client: client,
		config: config,
	}, nil
}

func (s *Storage) recordKey(userID string) string {
	return s.config.KeyPrefix + "license:" + userID
}

// FetchRecord implements storefront.RecordSource
func (s *Storage) FetchRecord(ctx context.Context, userID string) (*storefront.EntitlementRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription record: %w", err)
	}
	if len(fields) == 0 {
		return nil, storefront.ErrRecordNotFound
	}
	return recordFromHash(userID, fields), nil
}

// SetRecord stores a subscription record, replacing any previous one
func (s *Storage) SetRecord(ctx context.Context, rec *storefront.EntitlementRecord) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	key := s.recordKey(rec.UserID)
	values := map[string]interface{}{fieldStatus: string(rec.Status)}
	if rec.CurrentPeriodEnd != nil {
		values[fieldPeriodEnd] = rec.CurrentPeriodEnd.Unix()
	}
	if rec.CancelAtPeriodEnd != nil {
		values[fieldCancel] = strconv.FormatBool(*rec.CancelAtPeriodEnd)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		if s.config.RecordTTL > 0 {
			pipe.Expire(ctx, key, s.config.RecordTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set subscription record: %w", err)
	}
	return nil
}

// DeleteRecord removes a user's subscription record
func (s *Storage) DeleteRecord(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.recordKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription record: %w", err)
	}
	return nil
}

func recordFromHash(userID string, fields map[string]string) *storefront.EntitlementRecord {
	rec := &storefront.EntitlementRecord{
		UserID: userID,
		Status: storefront.Status(fields[fieldStatus]),
	}
	if rec.Status == "" {
		rec.Status = storefront.StatusInactive
	}
	if v, ok := fields[fieldPeriodEnd]; ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.Unix(secs, 0).UTC()
			rec.CurrentPeriodEnd = &t
		}
	}
	if v, ok := fields[fieldCancel]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			rec.CancelAtPeriodEnd = &b
		}
	}
	return rec
}
