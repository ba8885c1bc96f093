package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/storefront/internal/config"
	"github.com/mihaimyh/storefront/pkg/storefront"
	"github.com/mihaimyh/storefront/storage/breaker"
	firestorestore "github.com/mihaimyh/storefront/storage/firestore"
	"github.com/mihaimyh/storefront/storage/memory"
	"github.com/mihaimyh/storefront/storage/postgres"
	redisstore "github.com/mihaimyh/storefront/storage/redis"
	"github.com/mihaimyh/storefront/storage/tiered"
)

// openRecordSource builds the configured subscription record source. The
// returned close function releases every client it opened.
func openRecordSource(ctx context.Context, cfg *config.Config, logger storefront.Logger) (storefront.RecordSource, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	redisFor := func() *redis.Client {
		if redisClient == nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			closers = append(closers, func() { _ = redisClient.Close() })
		}
		return redisClient
	}

	source, err := openBackend(ctx, cfg, redisFor, &closers)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	source, err = guard(source, cfg, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if cfg.Cache == "" {
		return source, closeAll, nil
	}

	var hot tiered.RecordStore
	switch cfg.Cache {
	case config.BackendRedis:
		redisHot, err := redisstore.New(redisFor(), redisstore.DefaultConfig())
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		hot = redisHot
	default:
		hot = memory.New()
	}

	cached, err := tiered.New(tiered.Config{
		Hot:       hot,
		Cold:      source,
		AsyncFill: true,
		AsyncErrorHandler: func(err error) {
			logger.Warn("record cache", storefront.Field{Key: "error", Value: err})
		},
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	// the fill worker must stop before the clients it writes to
	closers = append(closers, func() { _ = cached.Close() })
	return cached, closeAll, nil
}

// guard puts the circuit breaker in front of the durable backend. A cache
// layered on top still serves hits while the circuit is open.
func guard(source storefront.RecordSource, cfg *config.Config, logger storefront.Logger) (storefront.RecordSource, error) {
	if cfg.BreakerThreshold == 0 {
		return source, nil
	}
	cb := breaker.NewDefaultCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset, func(state breaker.State) {
		logger.Warn("record store circuit breaker", storefront.Field{Key: "state", Value: string(state)})
	})
	guarded, err := breaker.New(source, cb)
	if err != nil {
		return nil, err
	}
	return guarded, nil
}

func openBackend(ctx context.Context, cfg *config.Config, redisFor func() *redis.Client, closers *[]func()) (storefront.RecordSource, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		*closers = append(*closers, func() { _ = client.Close() })
		store, err := firestorestore.New(client, firestorestore.Config{LicensesCollection: cfg.LicensesCollection})
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendPostgres:
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.PostgresDSN
		store, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, store.Close)
		return store, nil

	case config.BackendRedis:
		store, err := redisstore.New(redisFor(), redisstore.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
