package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

func TestWatch_RendersTransitions(t *testing.T) {
	h := newHarness(t, "")
	stop := h.app.Watch()
	defer stop()

	h.store.SetIdentity(&storefront.Identity{UID: "u1", Email: "a@example.com"})
	h.store.SetEntitlement(&storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusActive})
	h.store.SetEntitlement(&storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusActive})
	_ = h.auth.SignOut(context.Background())

	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	assert.Equal(t, []string{
		"Signed in as a@example.com",
		"Subscription: active",
		"2 product(s) unlocked. Type 'download' to get the bundle.",
		"Signed out.",
	}, lines)
}

func TestChangeLines(t *testing.T) {
	signedOut := storefront.Snapshot{Version: 1}
	pending := storefront.Snapshot{Identity: &storefront.Identity{UID: "u1"}, Version: 2}
	absent := storefront.Snapshot{
		Identity:    &storefront.Identity{UID: "u1"},
		Entitlement: &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusAbsent},
		Version:     3,
	}
	canceled := storefront.Snapshot{
		Identity:    &storefront.Identity{UID: "u1"},
		Entitlement: &storefront.EntitlementRecord{UserID: "u1", Status: storefront.StatusCanceled},
		Version:     4,
	}

	assert.Equal(t, []string{"Signed in as Account"}, changeLines(signedOut, pending))
	assert.Equal(t, []string{"No subscription found."}, changeLines(pending, absent))
	assert.Equal(t, []string{"Subscription: canceled"}, changeLines(absent, canceled))
	assert.Empty(t, changeLines(canceled, canceled))
	assert.Equal(t, []string{"Signed out."}, changeLines(canceled, signedOut))
}
