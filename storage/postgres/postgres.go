// Package postgres provides a PostgreSQL implementation of the storefront.RecordSource interface.
// Subscription records are mirrored into a user_licenses table by the billing backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Schema creates the subscription record table.
const Schema = `
CREATE TABLE IF NOT EXISTS user_licenses (
	user_id              TEXT PRIMARY KEY,
	subscription_status  TEXT NOT NULL DEFAULT 'inactive',
	current_period_end   TIMESTAMPTZ,
	cancel_at_period_end BOOLEAN,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Storage implements storefront.RecordSource using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Migrate creates the table on start when it does not exist
	Migrate bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool, config: config}
	if config.Migrate {
		if _, err := pool.Exec(ctx, Schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return s, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// FetchRecord implements storefront.RecordSource
func (s *Storage) FetchRecord(ctx context.Context, userID string) (*storefront.EntitlementRecord, error) {
	var (
		status    string
		periodEnd *time.Time
		cancel    *bool
	)

	err := s.pool.QueryRow(ctx,
		`SELECT subscription_status, current_period_end, cancel_at_period_end
			FROM user_licenses WHERE user_id = $1`,
		userID).Scan(&status, &periodEnd, &cancel)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storefront.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription record: %w", err)
	}

	rec := &storefront.EntitlementRecord{
		UserID:            userID,
		Status:            storefront.Status(status),
		CancelAtPeriodEnd: cancel,
	}
	if rec.Status == "" {
		rec.Status = storefront.StatusInactive
	}
	if periodEnd != nil {
		t := periodEnd.UTC()
		rec.CurrentPeriodEnd = &t
	}
	return rec, nil
}

// SetRecord upserts a subscription record
func (s *Storage) SetRecord(ctx context.Context, rec *storefront.EntitlementRecord) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("invalid subscription record")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_licenses (user_id, subscription_status, current_period_end, cancel_at_period_end, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				subscription_status = EXCLUDED.subscription_status,
				current_period_end = EXCLUDED.current_period_end,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				updated_at = NOW()`,
		rec.UserID, string(rec.Status), rec.CurrentPeriodEnd, rec.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to set subscription record: %w", err)
	}
	return nil
}

// DeleteRecord removes a user's subscription record
func (s *Storage) DeleteRecord(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_licenses WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete subscription record: %w", err)
	}
	return nil
}
