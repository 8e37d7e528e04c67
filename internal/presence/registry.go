package presence

import (
	"sort"
	"sync"
	"time"

	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

// Registry tracks which users are connected and with what status.
// It guarantees at most one entry per user: a reconnect overwrites the
// previous entry, and stale connections cannot evict their replacement.
type Registry struct {
	mu    sync.RWMutex
	store interfaces.PresenceStore
	clock func() time.Time
}

// NewRegistry creates a presence registry over the given store.
// A nil store gets the default in-memory implementation.
func NewRegistry(store interfaces.PresenceStore) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		store: store,
		clock: time.Now,
	}
}

// Connect records userID as online on the given connection. If the user
// already has an entry it is replaced wholesale: last write wins on
// reconnect. Returns the new entry.
func (r *Registry) Connect(userID, connID string) types.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := types.PresenceEntry{
		UserID:   userID,
		ConnID:   connID,
		Status:   types.StatusOnline,
		LastSeen: r.clock(),
	}
	r.store.Set(entry)
	return entry
}

// Disconnect removes the user's entry, but only if connID still owns it.
// A stale connection disconnecting after its replacement registered is a
// no-op. Returns whether an entry was actually removed.
func (r *Registry) Disconnect(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.store.Get(userID)
	if !ok {
		return false
	}
	if entry.ConnID != connID {
		return false
	}
	r.store.Delete(userID)
	return true
}

// SetStatus updates the advertised status of a connected user. An
// unknown user is a silent no-op, not an error: status updates race
// with disconnect, and absence here is an expected outcome. Returns
// whether an entry was actually updated. ErrInvalidStatus is still
// reported for a status outside the allowed set.
func (r *Registry) SetStatus(userID string, status types.UserStatus) (types.PresenceEntry, bool, error) {
	if !types.IsValidStatus(status) {
		return types.PresenceEntry{}, false, ErrInvalidStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.store.Get(userID)
	if !ok {
		return types.PresenceEntry{}, false, nil
	}
	entry.Status = status
	entry.LastSeen = r.clock()
	r.store.Set(entry)
	return entry, true, nil
}

// Touch refreshes the user's last-seen timestamp. Missing users are
// ignored: activity can race with disconnect.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.store.Get(userID)
	if !ok {
		return
	}
	entry.LastSeen = r.clock()
	r.store.Set(entry)
}

// Get returns the presence entry for a user.
func (r *Registry) Get(userID string) (types.PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Get(userID)
}

// IsOnline reports whether the user has a live entry.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.store.Get(userID)
	return ok
}

// Snapshot returns all current entries sorted by user ID.
func (r *Registry) Snapshot() []types.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]types.PresenceEntry, 0, r.store.Len())
	r.store.ForEach(func(entry types.PresenceEntry) bool {
		entries = append(entries, entry)
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}

// Stats returns registry counters for the stats endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus := make(map[types.UserStatus]int)
	r.store.ForEach(func(entry types.PresenceEntry) bool {
		byStatus[entry.Status]++
		return true
	})

	return map[string]int{
		"online_users": r.store.Len(),
		"status_busy":  byStatus[types.StatusBusy],
		"status_away":  byStatus[types.StatusAway],
	}
}

var _ interfaces.PresenceReader = (*Registry)(nil)
