package storefront

import (
	"sync"
)

// Observer receives a snapshot after every store mutation.
// Observers may call Store.Current but must not mutate the store.
type Observer func(Snapshot)

// Store is the page-lifetime state shared by the session, the syncer and renderers.
// It is the only shared mutable state; workflows read it through Current.
type Store struct {
	// dispatchMu serializes mutation and notification so observers see
	// snapshots in mutation order
	dispatchMu sync.Mutex

	mu          sync.RWMutex
	identity    *Identity
	entitlement *EntitlementRecord
	owned       OwnedSet
	catalog     []string
	version     uint64

	observers      map[uint64]Observer
	observerOrder  []uint64
	nextObserverID uint64
}

// NewStore creates a store with the given catalog of product ids.
func NewStore(catalog []string) *Store {
	return &Store{
		catalog:   dedupe(catalog),
		owned:     NewOwnedSet(),
		observers: make(map[uint64]Observer),
	}
}

// Current returns a snapshot of the current state.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// SetIdentity replaces the current identity.
// A nil identity clears entitlement and owned set in the same update. An identity
// with a different UID resets the entitlement to pending.
func (s *Store) SetIdentity(id *Identity) Snapshot {
	return s.mutate(func() bool {
		prev := s.identity
		s.identity = id.Clone()
		if id == nil || prev == nil || prev.UID != id.UID {
			s.entitlement = nil
		}
		s.recomputeOwnedLocked()
		return true
	})
}

// SetEntitlement applies a reconciled record. The record is discarded, and false
// returned, when its UserID does not match the current identity.
func (s *Store) SetEntitlement(rec *EntitlementRecord) bool {
	if rec == nil {
		return false
	}
	applied := false
	s.mutate(func() bool {
		if s.identity == nil || s.identity.UID != rec.UserID {
			return false
		}
		s.entitlement = rec.Clone()
		s.recomputeOwnedLocked()
		applied = true
		return true
	})
	return applied
}

// SetCatalog replaces the catalog of known product ids and recomputes the owned set.
func (s *Store) SetCatalog(catalog []string) Snapshot {
	return s.mutate(func() bool {
		s.catalog = dedupe(catalog)
		s.recomputeOwnedLocked()
		return true
	})
}

// Subscribe registers an observer. The returned function removes it.
func (s *Store) Subscribe(obs Observer) (unsubscribe func()) {
	if obs == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextObserverID
	s.nextObserverID++
	s.observers[id] = obs
	s.observerOrder = append(s.observerOrder, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.observers, id)
			for i, oid := range s.observerOrder {
				if oid == id {
					s.observerOrder = append(s.observerOrder[:i], s.observerOrder[i+1:]...)
					break
				}
			}
		})
	}
}

// mutate runs fn under the state lock and, when fn reports a change,
// notifies observers with the resulting snapshot before returning.
func (s *Store) mutate(fn func() bool) Snapshot {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	changed := fn()
	if changed {
		s.version++
	}
	snap := s.snapshotLocked()
	observers := make([]Observer, 0, len(s.observerOrder))
	for _, id := range s.observerOrder {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	if !changed {
		return snap
	}
	for _, obs := range observers {
		obs(snap)
	}
	return snap
}

func (s *Store) recomputeOwnedLocked() {
	if s.identity != nil && s.entitlement.Active() {
		s.owned = NewOwnedSet(s.catalog...)
		return
	}
	s.owned = NewOwnedSet()
}

func (s *Store) snapshotLocked() Snapshot {
	catalog := make([]string, len(s.catalog))
	copy(catalog, s.catalog)
	return Snapshot{
		Identity:    s.identity.Clone(),
		Entitlement: s.entitlement.Clone(),
		Owned:       s.owned,
		Catalog:     catalog,
		Version:     s.version,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
