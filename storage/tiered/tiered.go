// Package tiered provides a Hot/Cold tiered record source that puts fast
// ephemeral storage (Hot) in front of the durable subscription record store (Cold).
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// RecordStore is a record source that can also be written, such as the
// memory and redis storage adapters.
type RecordStore interface {
	storefront.RecordSource
	SetRecord(ctx context.Context, rec *storefront.EntitlementRecord) error
	DeleteRecord(ctx context.Context, userID string) error
}

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory)
	Hot RecordStore

	// Cold is the L2 storage (e.g., Firestore, Postgres) as the source of truth
	Cold storefront.RecordSource

	// AsyncFill populates Hot from a background worker instead of on the
	// reconciliation path.
	AsyncFill bool

	// FillBufferSize is the size of the buffered channel for async fills.
	// Default: 100
	FillBufferSize int

	// AsyncErrorHandler is called when a Hot operation fails.
	AsyncErrorHandler func(error)
}

// Storage implements storefront.RecordSource with a read-through strategy:
// Hot first, then Cold, then populate Hot. Absent records are never cached so
// a fresh purchase is visible on the next reconciliation.
type Storage struct {
	hot  RecordStore
	cold storefront.RecordSource
	conf Config

	// Channel for async cache fills
	fillQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.FillBufferSize <= 0 {
		config.FillBufferSize = 100
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		fillQueue: make(chan func() error, config.FillBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncFill {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncFill {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background fill loop.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.fillQueue:
				s.report(job())
			case <-s.shutdown:
				// Drain queue on shutdown (best effort)
				for {
					select {
					case job := <-s.fillQueue:
						_ = job()
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) report(err error) {
	if err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered cache: %w", err))
	}
}

// FetchRecord implements storefront.RecordSource with read-through strategy.
func (s *Storage) FetchRecord(ctx context.Context, userID string) (*storefront.EntitlementRecord, error) {
	// 1. Try Hot
	rec, err := s.hot.FetchRecord(ctx, userID)
	if err == nil && rec != nil {
		return rec, nil
	}
	if err != nil && !errors.Is(err, storefront.ErrRecordNotFound) {
		s.report(err)
	}

	// 2. Try Cold (Source of Truth)
	rec, err = s.cold.FetchRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. Populate Hot
	fill := rec.Clone()
	s.enqueue(func() error { return s.hot.SetRecord(context.WithoutCancel(ctx), fill) })

	return rec, nil
}

// Invalidate drops the cached record for userID, e.g. after a checkout completes.
func (s *Storage) Invalidate(ctx context.Context, userID string) error {
	return s.hot.DeleteRecord(ctx, userID)
}

func (s *Storage) enqueue(job func() error) {
	if !s.conf.AsyncFill {
		s.report(job())
		return
	}
	select {
	case s.fillQueue <- job:
	default:
		// Queue full: skip the fill, the next read goes to Cold again
		s.report(errors.New("fill queue full"))
	}
}
