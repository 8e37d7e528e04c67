package presence

import (
	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

// MemoryStore is the default map-backed PresenceStore. It carries no
// locking: the Registry serializes all access.
type MemoryStore struct {
	entries map[string]types.PresenceEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]types.PresenceEntry),
	}
}

func (s *MemoryStore) Get(userID string) (types.PresenceEntry, bool) {
	entry, ok := s.entries[userID]
	return entry, ok
}

func (s *MemoryStore) Set(entry types.PresenceEntry) {
	s.entries[entry.UserID] = entry
}

func (s *MemoryStore) Delete(userID string) {
	delete(s.entries, userID)
}

func (s *MemoryStore) ForEach(fn func(entry types.PresenceEntry) bool) {
	for _, entry := range s.entries {
		if !fn(entry) {
			return
		}
	}
}

func (s *MemoryStore) Len() int {
	return len(s.entries)
}

var _ interfaces.PresenceStore = (*MemoryStore)(nil)
