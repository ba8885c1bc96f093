package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultFetchTimeout = 10 * time.Second

// RecordSource fetches one subscription record by user id.
// It returns ErrRecordNotFound when the user has no record.
type RecordSource interface {
	FetchRecord(ctx context.Context, userID string) (*EntitlementRecord, error)
}

// Invalidator is implemented by record sources that cache records.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// SyncConfig configures a Syncer.
type SyncConfig struct {
	// Source is the subscription record store (required)
	Source RecordSource

	// FetchTimeout bounds a single record fetch. Default: 10s.
	FetchTimeout time.Duration

	Logger  Logger
	Metrics Metrics
}

// Syncer reconciles the subscription record into the Store on every identity transition.
type Syncer struct {
	store        *Store
	source       RecordSource
	fetchTimeout time.Duration
	logger       Logger
	metrics      Metrics

	inflight sync.WaitGroup
}

// NewSyncer creates a syncer for store.
func NewSyncer(store *Store, config SyncConfig) (*Syncer, error) {
	if store == nil {
		return nil, &ConfigurationError{Setting: "entitlement store"}
	}
	if config.Source == nil {
		return nil, &ConfigurationError{Setting: "subscription record source"}
	}
	timeout := config.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Syncer{
		store:        store,
		source:       config.Source,
		fetchTimeout: timeout,
		logger:       LoggerOrNoop(config.Logger),
		metrics:      MetricsOrNoop(config.Metrics),
	}, nil
}

// Attach registers the syncer as a change handler on session.
func (s *Syncer) Attach(ctx context.Context, session *Session) (detach func()) {
	return session.OnChange(ctx, s.HandleIdentity)
}

// HandleIdentity applies id to the store synchronously and, for a present
// identity, starts one uncached record fetch (see Refresh). A newer transition may start its own fetch
// while this one is in flight; the store discards whichever result is stale.
func (s *Syncer) HandleIdentity(ctx context.Context, id *Identity) {
	s.store.SetIdentity(id)
	if id == nil {
		s.metrics.RecordIdentityChange("signed_out")
		return
	}
	s.metrics.RecordIdentityChange("signed_in")

	captured := *id
	fetchCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_ = s.Refresh(fetchCtx, captured)
	}()
}

// Wait blocks until every fetch started by HandleIdentity has been applied or discarded.
func (s *Syncer) Wait() {
	s.inflight.Wait()
}

// Refresh drops any cached record for id and reconciles it from the record
// store. A failed invalidation is logged and reported as ErrSync, but the
// reconciliation still runs so the store never keeps a stale entitlement.
func (s *Syncer) Refresh(ctx context.Context, id Identity) error {
	inv, ok := s.source.(Invalidator)
	if !ok {
		return s.Reconcile(ctx, id)
	}

	var invErr error
	if err := inv.Invalidate(ctx, id.UID); err != nil {
		s.logger.Warn("subscription record cache invalidation failed",
			Field{Key: "uid", Value: id.UID},
			Field{Key: "error", Value: err},
		)
		invErr = fmt.Errorf("%w: %w", ErrSync, err)
	}
	if err := s.Reconcile(ctx, id); err != nil {
		return err
	}
	return invErr
}

// Reconcile fetches the record for id and applies it to the store.
// A failed fetch is applied as an absent record and reported as ErrSync; callers
// log it and never surface it to the user.
func (s *Syncer) Reconcile(ctx context.Context, id Identity) error {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	start := time.Now()
	rec, err := s.source.FetchRecord(ctx, id.UID)
	s.metrics.RecordSyncDuration(time.Since(start))

	outcome := ""
	var syncErr error
	switch {
	case errors.Is(err, ErrRecordNotFound):
		rec = &EntitlementRecord{UserID: id.UID, Status: StatusAbsent}
		outcome = "absent"
	case err != nil:
		syncErr = fmt.Errorf("%w: %w", ErrSync, err)
		s.logger.Warn("subscription record fetch failed",
			Field{Key: "uid", Value: id.UID},
			Field{Key: "error", Value: err},
		)
		rec = &EntitlementRecord{UserID: id.UID, Status: StatusAbsent}
		outcome = "error"
	case rec == nil:
		rec = &EntitlementRecord{UserID: id.UID, Status: StatusAbsent}
		outcome = "absent"
	default:
		rec = rec.Clone()
		rec.UserID = id.UID
		if rec.Active() {
			outcome = "active"
		} else {
			outcome = "inactive"
		}
	}

	if !s.store.SetEntitlement(rec) {
		s.logger.Debug("discarding stale subscription record", Field{Key: "uid", Value: id.UID})
		s.metrics.RecordSync("stale")
		return syncErr
	}

	s.metrics.RecordSync(outcome)
	s.logger.Debug("subscription reconciled",
		Field{Key: "uid", Value: id.UID},
		Field{Key: "status", Value: string(rec.Status)},
	)
	return syncErr
}
