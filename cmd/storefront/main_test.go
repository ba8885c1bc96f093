package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/storefront/internal/config"
	"github.com/mihaimyh/storefront/pkg/storefront"
	prommetrics "github.com/mihaimyh/storefront/pkg/storefront/metrics/prometheus"
	"github.com/mihaimyh/storefront/storage/breaker"
	"github.com/mihaimyh/storefront/storage/memory"
	"github.com/mihaimyh/storefront/storage/tiered"
)

type stubProvider struct{ id *storefront.Identity }

func (s *stubProvider) SignInWithProvider(context.Context) (*storefront.Identity, error) {
	return s.id, nil
}
func (s *stubProvider) SignInWithPassword(context.Context, string, string) (*storefront.Identity, error) {
	return s.id, nil
}
func (s *stubProvider) SignUpWithPassword(context.Context, string, string) (*storefront.Identity, error) {
	return s.id, nil
}
func (s *stubProvider) SendVerificationEmail(context.Context, *storefront.Identity) error { return nil }
func (s *stubProvider) SignOut(context.Context, *storefront.Identity) error               { return nil }

func TestNewRouter(t *testing.T) {
	store := storefront.NewStore([]string{"face_rig"})
	reg := prometheus.NewRegistry()
	metrics := prommetrics.NewMetrics(reg, "storefront")
	metrics.RecordSync("active")

	router, err := newRouter(store, reg, nil)
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"/health", "OK"},
		{"/api/snapshot", `"catalog":["face_rig"]`},
		{"/api/view", `"download"`},
		{"/metrics", "storefront_entitlement_sync_total"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestNewZerolog_Level(t *testing.T) {
	assert.Equal(t, "debug", newZerolog("debug").GetLevel().String())
	assert.Equal(t, "info", newZerolog("bogus").GetLevel().String())
}

func TestRefresher(t *testing.T) {
	ctx := context.Background()
	cold := memory.New()
	hot := memory.New()
	cached, err := tiered.New(tiered.Config{Hot: hot, Cold: cold})
	require.NoError(t, err)

	store := storefront.NewStore([]string{"face_rig"})
	session, err := storefront.NewSession(&stubProvider{id: &storefront.Identity{UID: "u1"}}, nil)
	require.NoError(t, err)
	syncer, err := storefront.NewSyncer(store, storefront.SyncConfig{Source: cached})
	require.NoError(t, err)
	refresh := refresher(session, syncer)

	assert.ErrorIs(t, refresh(ctx), storefront.ErrRequiresAuthentication)

	require.NoError(t, cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusInactive}))
	detach := syncer.Attach(ctx, session)
	defer detach()
	require.NoError(t, session.SignInWithPassword(ctx, "a@example.com", "secret1"))
	syncer.Wait()
	assert.False(t, store.Current().Entitled())

	// the checkout completed; the cached inactive record must not hide it
	require.NoError(t, cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusActive}))
	require.NoError(t, refresh(ctx))
	assert.True(t, store.Current().Entitled())
}

func TestSignInAgainReadsRevokedRecord(t *testing.T) {
	ctx := context.Background()
	cold := memory.New()
	cached, err := tiered.New(tiered.Config{Hot: memory.New(), Cold: cold})
	require.NoError(t, err)

	store := storefront.NewStore([]string{"face_rig"})
	session, err := storefront.NewSession(&stubProvider{id: &storefront.Identity{UID: "u1"}}, nil)
	require.NoError(t, err)
	syncer, err := storefront.NewSyncer(store, storefront.SyncConfig{Source: cached})
	require.NoError(t, err)
	detach := syncer.Attach(ctx, session)
	defer detach()

	require.NoError(t, cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusActive}))
	require.NoError(t, session.SignInWithPassword(ctx, "a@example.com", "secret1"))
	syncer.Wait()
	require.True(t, store.Current().Entitled())

	require.NoError(t, session.SignOut(ctx))
	require.NoError(t, cold.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusCanceled}))
	require.NoError(t, session.SignInWithPassword(ctx, "a@example.com", "secret1"))
	syncer.Wait()

	snap := store.Current()
	require.NotNil(t, snap.Entitlement)
	assert.Equal(t, storefront.StatusCanceled, snap.Entitlement.Status)
	assert.Equal(t, 0, snap.Owned.Len())
}

// failingInvalidate is a record source whose cache cannot be invalidated.
type failingInvalidate struct {
	*memory.Storage
}

func (failingInvalidate) Invalidate(context.Context, string) error {
	return errors.New("redis down")
}

func TestRefresher_InvalidateFailureStillReconciles(t *testing.T) {
	ctx := context.Background()
	source := failingInvalidate{Storage: memory.New()}
	store := storefront.NewStore([]string{"face_rig"})
	session, err := storefront.NewSession(&stubProvider{id: &storefront.Identity{UID: "u1"}}, nil)
	require.NoError(t, err)
	syncer, err := storefront.NewSyncer(store, storefront.SyncConfig{Source: source})
	require.NoError(t, err)
	detach := syncer.Attach(ctx, session)
	defer detach()

	require.NoError(t, source.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusActive}))
	require.NoError(t, session.SignInWithPassword(ctx, "a@example.com", "secret1"))
	syncer.Wait()
	require.True(t, store.Current().Entitled())

	require.NoError(t, source.SetRecord(ctx, &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusCanceled}))
	err = refresher(session, syncer)(ctx)

	assert.ErrorIs(t, err, storefront.ErrSync)
	assert.False(t, store.Current().Entitled())
	assert.Equal(t, storefront.StatusCanceled, store.Current().Entitlement.Status)
}

func TestRun_HelpAndInvalidConfig(t *testing.T) {
	assert.NoError(t, run([]string{"-h"}))

	err := run([]string{"-backend", "nope"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown backend"))

	err = run([]string{"-backend", "memory"})
	assert.True(t, errors.Is(err, storefront.ErrConfiguration), "missing firebase API key is fatal")
}

func TestOpenRecordSource_MemoryWithCache(t *testing.T) {
	_, err := config.Load([]string{"-backend", "memory", "-cache", "memory"})
	require.Error(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Backend = config.BackendMemory
	source, closeFn, err := openRecordSource(context.Background(), cfg, &storefront.NoopLogger{})
	require.NoError(t, err)
	defer closeFn()
	_, ok := source.(*breaker.Storage)
	assert.True(t, ok)

	cfg.BreakerThreshold = 0
	source, closeFn2, err := openRecordSource(context.Background(), cfg, &storefront.NoopLogger{})
	require.NoError(t, err)
	defer closeFn2()
	_, ok = source.(*memory.Storage)
	assert.True(t, ok)
}
