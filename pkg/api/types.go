package api

import "github.com/mihaimyh/storefront/pkg/storefront"

// SnapshotResponse is the JSON form of a store snapshot
type SnapshotResponse struct {
	Version     uint64                        `json:"version"`
	SignedIn    bool                          `json:"signed_in"`
	Pending     bool                          `json:"pending"`
	Identity    *storefront.Identity          `json:"identity"`              // nil when signed out
	Entitlement *storefront.EntitlementRecord `json:"entitlement,omitempty"` // nil while reconciliation is pending
	Owned       []string                      `json:"owned"`
	Catalog     []string                      `json:"catalog"`
}

// ViewResponse is the rendered UI state for a snapshot
type ViewResponse struct {
	Version uint64          `json:"version"`
	View    storefront.View `json:"view"`
}

func newSnapshotResponse(snap storefront.Snapshot) SnapshotResponse {
	catalog := snap.Catalog
	if catalog == nil {
		catalog = []string{}
	}
	return SnapshotResponse{
		Version:     snap.Version,
		SignedIn:    snap.SignedIn(),
		Pending:     snap.Pending(),
		Identity:    snap.Identity,
		Entitlement: snap.Entitlement,
		Owned:       snap.Owned.IDs(),
		Catalog:     catalog,
	}
}
