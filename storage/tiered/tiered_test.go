package tiered

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/storefront/pkg/storefront"
	"github.com/mihaimyh/storefront/storage/memory"
)

var _ storefront.RecordSource = (*Storage)(nil)

// countingSource counts Cold reads.
type countingSource struct {
	*memory.Storage
	mu    sync.Mutex
	reads int
	err   error
}

func (c *countingSource) FetchRecord(ctx context.Context, userID string) (*storefront.EntitlementRecord, error) {
	c.mu.Lock()
	c.reads++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Storage.FetchRecord(ctx, userID)
}

func (c *countingSource) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// brokenHot fails every operation.
type brokenHot struct{}

func (brokenHot) FetchRecord(context.Context, string) (*storefront.EntitlementRecord, error) {
	return nil, errors.New("connection refused")
}
func (brokenHot) SetRecord(context.Context, *storefront.EntitlementRecord) error {
	return errors.New("connection refused")
}
func (brokenHot) DeleteRecord(context.Context, string) error { return errors.New("connection refused") }

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New()})
		assert.NoError(t, err)
		assert.NotNil(t, storage)
		assert.NoError(t, storage.Close())
	})

	t.Run("nil hot storage", func(t *testing.T) {
		storage, err := New(Config{Cold: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
		assert.Contains(t, err.Error(), "hot and cold storage are required")
	})

	t.Run("nil cold storage", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
	})

	t.Run("default fill buffer size", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New(), AsyncFill: true})
		require.NoError(t, err)
		defer storage.Close()
		assert.Equal(t, 100, cap(storage.fillQueue))
	})
}

func TestFetchRecord_ReadThrough(t *testing.T) {
	ctx := context.Background()
	hot := memory.New()
	cold := &countingSource{Storage: memory.New()}
	require.NoError(t, cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "user1", Status: storefront.StatusActive}))

	storage, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)

	rec, err := storage.FetchRecord(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, storefront.StatusActive, rec.Status)
	assert.Equal(t, 1, cold.count())

	cached, err := hot.FetchRecord(ctx, "user1")
	require.NoError(t, err, "hot should be populated")
	assert.Equal(t, storefront.StatusActive, cached.Status)

	_, err = storage.FetchRecord(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, cold.count(), "second read served from hot")
}

func TestFetchRecord_AbsentNotCached(t *testing.T) {
	ctx := context.Background()
	hot := memory.New()
	cold := &countingSource{Storage: memory.New()}
	storage, _ := New(Config{Hot: hot, Cold: cold})

	_, err := storage.FetchRecord(ctx, "user1")
	assert.ErrorIs(t, err, storefront.ErrRecordNotFound)

	_, err = storage.FetchRecord(ctx, "user1")
	assert.ErrorIs(t, err, storefront.ErrRecordNotFound)
	assert.Equal(t, 2, cold.count())
}

func TestFetchRecord_ColdErrorPropagates(t *testing.T) {
	cause := errors.New("firestore unavailable")
	cold := &countingSource{Storage: memory.New(), err: cause}
	storage, _ := New(Config{Hot: memory.New(), Cold: cold})

	_, err := storage.FetchRecord(context.Background(), "user1")

	assert.ErrorIs(t, err, cause)
}

func TestFetchRecord_HotFailureFallsBackToCold(t *testing.T) {
	ctx := context.Background()
	cold := &countingSource{Storage: memory.New()}
	_ = cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "user1", Status: storefront.StatusCanceled})

	var mu sync.Mutex
	var reported []error
	storage, _ := New(Config{Hot: brokenHot{}, Cold: cold, AsyncErrorHandler: func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}})

	rec, err := storage.FetchRecord(ctx, "user1")

	require.NoError(t, err)
	assert.Equal(t, storefront.StatusCanceled, rec.Status)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, reported, 2, "failed hot read and failed fill are both reported")
}

func TestFetchRecord_AsyncFill(t *testing.T) {
	ctx := context.Background()
	hot := memory.New()
	cold := &countingSource{Storage: memory.New()}
	_ = cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "user1", Status: storefront.StatusActive})

	storage, err := New(Config{Hot: hot, Cold: cold, AsyncFill: true})
	require.NoError(t, err)

	_, err = storage.FetchRecord(ctx, "user1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := hot.FetchRecord(ctx, "user1")
		return err == nil
	}, time.Second, 10*time.Millisecond)
	assert.NoError(t, storage.Close())
	assert.NoError(t, storage.Close(), "close is idempotent")
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	hot := memory.New()
	cold := &countingSource{Storage: memory.New()}
	_ = cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "user1", Status: storefront.StatusInactive})
	storage, _ := New(Config{Hot: hot, Cold: cold})

	_, _ = storage.FetchRecord(ctx, "user1")
	_ = cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "user1", Status: storefront.StatusActive})
	require.NoError(t, storage.Invalidate(ctx, "user1"))

	rec, err := storage.FetchRecord(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, storefront.StatusActive, rec.Status)
}
