// Package storefront keeps storefront UI state consistent with the identity
// provider and the subscription record store.
//
// A Store holds the current Identity, the reconciled EntitlementRecord and the
// derived OwnedSet. A Session feeds identity transitions into a Syncer, which
// applies them to the Store and reconciles the subscription record. Renderers
// subscribe to the Store; purchase and delivery workflows only read it.
package storefront

import (
	"encoding/json"
	"sort"
	"time"
)

// Status is the subscription status reported by the record store.
// Values other than StatusActive and StatusAbsent are kept verbatim for display.
type Status string

const (
	// StatusActive grants access to the whole catalog
	StatusActive Status = "active"

	// StatusAbsent means no record exists for the identity
	StatusAbsent Status = "absent"

	StatusCanceled Status = "canceled"
	StatusInactive Status = "inactive"
)

// Identity is the signed-in principal.
type Identity struct {
	// UID is the stable, provider-issued identifier
	UID string `json:"uid"`

	// Email is the display email (optional)
	Email string `json:"email,omitempty"`

	EmailVerified bool `json:"emailVerified"`

	// IDToken is the provider-issued bearer token. Never serialized.
	IDToken string `json:"-"`

	// ExpiresAt is when IDToken expires (zero when unknown)
	ExpiresAt time.Time `json:"-"`

	// RefreshToken renews IDToken without a new sign-in. Never serialized.
	RefreshToken string `json:"-"`
}

// tokenExpirySkew renews tokens slightly early so they do not lapse in flight.
const tokenExpirySkew = time.Minute

// TokenExpired reports whether IDToken has expired, or is about to, at now.
// A token with unknown expiry never expires.
func (i *Identity) TokenExpired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Add(tokenExpirySkew).Before(i.ExpiresAt)
}

// Clone returns a copy of the identity, or nil.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// EntitlementRecord is the reconciled subscription state for one identity.
type EntitlementRecord struct {
	UserID string `json:"userId"`
	Status Status `json:"status"`

	// CurrentPeriodEnd is informational (nil when the record has none)
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`

	// CancelAtPeriodEnd is nil when the record has no such field
	CancelAtPeriodEnd *bool `json:"cancelAtPeriodEnd,omitempty"`
}

// Active reports whether the record grants access.
func (r *EntitlementRecord) Active() bool {
	return r != nil && r.Status == StatusActive
}

// Clone returns a deep copy of the record, or nil.
func (r *EntitlementRecord) Clone() *EntitlementRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.CurrentPeriodEnd != nil {
		t := *r.CurrentPeriodEnd
		c.CurrentPeriodEnd = &t
	}
	if r.CancelAtPeriodEnd != nil {
		b := *r.CancelAtPeriodEnd
		c.CancelAtPeriodEnd = &b
	}
	return &c
}

// OwnedSet is the set of product ids the current identity may access.
// The zero value is an empty set. OwnedSet values are never mutated after construction.
type OwnedSet struct {
	ids map[string]struct{}
}

// NewOwnedSet builds a set from product ids. Empty ids are ignored.
func NewOwnedSet(ids ...string) OwnedSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		m[id] = struct{}{}
	}
	return OwnedSet{ids: m}
}

// Has reports whether productID is owned.
func (s OwnedSet) Has(productID string) bool {
	_, ok := s.ids[productID]
	return ok
}

// Len returns the number of owned products.
func (s OwnedSet) Len() int {
	return len(s.ids)
}

// IDs returns the owned product ids in sorted order.
func (s OwnedSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s OwnedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// Snapshot is a point-in-time copy of the store state.
type Snapshot struct {
	// Identity is nil when nobody is signed in
	Identity *Identity `json:"identity"`

	// Entitlement is nil when nobody is signed in or reconciliation is pending
	Entitlement *EntitlementRecord `json:"entitlement"`

	Owned   OwnedSet `json:"owned"`
	Catalog []string `json:"catalog"`

	// Version increases by one on every store mutation
	Version uint64 `json:"version"`
}

// SignedIn reports whether an identity is present.
func (s Snapshot) SignedIn() bool {
	return s.Identity != nil
}

// Entitled reports whether the identity owns at least one product.
func (s Snapshot) Entitled() bool {
	return s.Identity != nil && s.Owned.Len() > 0
}

// Pending reports whether an identity is present but not yet reconciled.
func (s Snapshot) Pending() bool {
	return s.Identity != nil && s.Entitlement == nil
}
