package cli

import (
	"fmt"
	"sync"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Watch prints identity and subscription changes as the store publishes them.
func (a *App) Watch() (stop func()) {
	var mu sync.Mutex
	last := a.store.Current()
	return a.store.Subscribe(func(next storefront.Snapshot) {
		mu.Lock()
		prev := last
		if next.Version <= prev.Version {
			mu.Unlock()
			return
		}
		last = next
		mu.Unlock()

		for _, line := range changeLines(prev, next) {
			a.println(line)
		}
	})
}

// changeLines describes what changed between two snapshots.
func changeLines(prev, next storefront.Snapshot) []string {
	var lines []string

	switch {
	case prev.SignedIn() && !next.SignedIn():
		return []string{"Signed out."}
	case next.SignedIn() && (!prev.SignedIn() || prev.Identity.UID != next.Identity.UID):
		lines = append(lines, "Signed in as "+accountLabel(next))
	}
	if !next.SignedIn() {
		return lines
	}

	if !next.Pending() && (prev.Pending() || !sameStatus(prev.Entitlement, next.Entitlement)) {
		view := storefront.BuildView(next)
		if view.Subscription == nil {
			lines = append(lines, "No subscription found.")
		} else {
			lines = append(lines, "Subscription: "+describeBadge(view.Subscription))
		}
		if view.Download.Visible && !prev.Entitled() {
			lines = append(lines, fmt.Sprintf("%d product(s) unlocked. Type 'download' to get the bundle.", next.Owned.Len()))
		}
	}
	return lines
}

func sameStatus(a, b *storefront.EntitlementRecord) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Status == b.Status
}
