package call

import (
	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

// MemoryStore is the default map-backed CallStore. The Coordinator
// serializes all access, so the store itself carries no locking.
type MemoryStore struct {
	records map[string]*types.CallRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*types.CallRecord),
	}
}

func (s *MemoryStore) Get(callID string) (*types.CallRecord, bool) {
	rec, ok := s.records[callID]
	return rec, ok
}

func (s *MemoryStore) Put(rec *types.CallRecord) {
	s.records[rec.ID] = rec
}

func (s *MemoryStore) Delete(callID string) {
	delete(s.records, callID)
}

func (s *MemoryStore) ForEach(fn func(rec *types.CallRecord) bool) {
	for _, rec := range s.records {
		if !fn(rec) {
			return
		}
	}
}

var _ interfaces.CallStore = (*MemoryStore)(nil)
