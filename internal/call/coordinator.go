package call

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

// maxBufferedCandidates caps early candidates held per pending call.
// Candidates past the cap are dropped; peers renegotiate on their own.
const maxBufferedCandidates = 64

// archiveTimeout bounds the persistence call for a finished record.
const archiveTimeout = 5 * time.Second

// Coordinator owns the lifecycle of every call attempt. It enforces the
// single-call-per-participant rule, drives the pending/active/terminal
// state machine and hands finished records to the archiver.
//
// The store only ever holds non-terminal records: a record reaching a
// terminal state is removed and archived in the same operation, so a
// lookup miss on end or candidate relay means the call already finished
// and the operation degrades to a no-op.
type Coordinator struct {
	mu         sync.Mutex
	store      interfaces.CallStore
	presence   interfaces.PresenceReader
	archiver   interfaces.CallArchiver
	clock      func() time.Time
	candidates map[string][]types.IceCandidatePayload
}

// NewCoordinator wires the coordinator to its presence view and the
// archive. A nil store gets the default in-memory implementation; a nil
// archiver disables persistence.
func NewCoordinator(store interfaces.CallStore, presence interfaces.PresenceReader, archiver interfaces.CallArchiver) *Coordinator {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Coordinator{
		store:      store,
		presence:   presence,
		archiver:   archiver,
		clock:      time.Now,
		candidates: make(map[string][]types.IceCandidatePayload),
	}
}

// RequestCall creates a pending call from caller to callee, capturing
// the caller's opaque offer signal on the record.
// Fails with ErrCalleeOffline when the callee has no presence entry and
// with ErrAlreadyInCall when either participant has a call in flight.
func (c *Coordinator) RequestCall(callerID, calleeID string, offer json.RawMessage) (*types.CallRecord, error) {
	if callerID == calleeID {
		return nil, ErrSelfCall
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.presence.IsOnline(calleeID) {
		return nil, ErrCalleeOffline
	}
	if c.activeFor(callerID) != nil || c.activeFor(calleeID) != nil {
		return nil, ErrAlreadyInCall
	}

	now := c.clock()
	rec := &types.CallRecord{
		ID:            NewCallID(callerID, calleeID, now),
		CallerID:      callerID,
		CalleeID:      calleeID,
		State:         types.CallStatePending,
		RequestSignal: offer,
		CreatedAt:     now,
	}
	c.store.Put(rec)

	cp := *rec
	return &cp, nil
}

// AcceptCall transitions a pending call to active, capturing the
// callee's answer signal on the record. Only the callee of a pending
// call may accept it.
func (c *Coordinator) AcceptCall(callID, userID string, answer json.RawMessage) (*types.CallRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.store.Get(callID)
	if !ok {
		return nil, ErrCallNotFound
	}
	if !rec.Involves(userID) {
		return nil, ErrNotParticipant
	}
	if rec.State != types.CallStatePending || userID != rec.CalleeID {
		return nil, ErrInvalidTransition
	}

	now := c.clock()
	rec.State = types.CallStateActive
	rec.AnswerSignal = answer
	rec.AnsweredAt = &now

	cp := *rec
	return &cp, nil
}

// RejectCall transitions a pending call to rejected. Only the callee of
// a pending call may reject it. The finished record is archived.
func (c *Coordinator) RejectCall(callID, userID string) (*types.CallRecord, error) {
	c.mu.Lock()

	rec, ok := c.store.Get(callID)
	if !ok {
		c.mu.Unlock()
		return nil, ErrCallNotFound
	}
	if !rec.Involves(userID) {
		c.mu.Unlock()
		return nil, ErrNotParticipant
	}
	if rec.State != types.CallStatePending || userID != rec.CalleeID {
		c.mu.Unlock()
		return nil, ErrInvalidTransition
	}

	cp := c.finishLocked(rec, types.CallStateRejected, types.OutcomeRejected, userID)
	c.mu.Unlock()

	c.archive(cp)
	return cp, nil
}

// EndCall ends a call from either participant. Ending a call that no
// longer exists is not an error: teardown races with the peer's hangup
// and with disconnect cleanup, so a miss returns (nil, nil).
// A pending call ended this way counts as missed, an active one as
// completed.
func (c *Coordinator) EndCall(callID, userID string) (*types.CallRecord, error) {
	c.mu.Lock()

	rec, ok := c.store.Get(callID)
	if !ok {
		c.mu.Unlock()
		return nil, nil
	}
	if !rec.Involves(userID) {
		c.mu.Unlock()
		return nil, ErrNotParticipant
	}

	outcome := types.OutcomeCompleted
	if rec.State == types.CallStatePending {
		outcome = types.OutcomeMissed
	}
	cp := c.finishLocked(rec, types.CallStateEnded, outcome, userID)
	c.mu.Unlock()

	c.archive(cp)
	return cp, nil
}

// AddCandidate routes one transport candidate for a call. For an active
// call the candidate relays to the sender's peer immediately. While the
// call is still pending the caller's candidates are buffered for the
// callee, who has not committed to the call yet; candidates from the
// callee relay straight to the waiting caller. Candidates for finished
// or unknown calls are dropped silently.
//
// The returned relayTo is the peer to deliver to, or "" when the
// candidate was buffered or dropped.
func (c *Coordinator) AddCandidate(callID, fromID string, candidate json.RawMessage) (relayTo string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.store.Get(callID)
	if !ok {
		return "", nil
	}
	if !rec.Involves(fromID) {
		return "", ErrNotParticipant
	}

	if rec.State == types.CallStatePending && fromID == rec.CallerID {
		buf := c.candidates[callID]
		if len(buf) >= maxBufferedCandidates {
			return "", nil
		}
		c.candidates[callID] = append(buf, types.IceCandidatePayload{
			CallID:    callID,
			From:      fromID,
			Candidate: candidate,
		})
		return "", nil
	}

	return rec.PeerOf(fromID), nil
}

// DrainCandidates returns and clears the candidates buffered while the
// call was pending, in arrival order. Called after accept to flush the
// caller's early candidates to the callee.
func (c *Coordinator) DrainCandidates(callID string) []types.IceCandidatePayload {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.candidates[callID]
	delete(c.candidates, callID)
	return buf
}

// CleanupForUser ends every call the user participates in, for use when
// their connection drops. Pending calls finish as missed, active ones as
// completed. Returns the finished records so the gateway can notify the
// abandoned peers. Idempotent: a second call for the same user finds
// nothing and returns an empty slice.
func (c *Coordinator) CleanupForUser(userID string) []*types.CallRecord {
	c.mu.Lock()

	var open []*types.CallRecord
	c.store.ForEach(func(rec *types.CallRecord) bool {
		if rec.Involves(userID) {
			open = append(open, rec)
		}
		return true
	})

	finished := make([]*types.CallRecord, 0, len(open))
	for _, rec := range open {
		outcome := types.OutcomeCompleted
		if rec.State == types.CallStatePending {
			outcome = types.OutcomeMissed
		}
		finished = append(finished, c.finishLocked(rec, types.CallStateEnded, outcome, userID))
	}
	c.mu.Unlock()

	for _, rec := range finished {
		c.archive(rec)
	}
	return finished
}

// ExpirePending ends pending calls older than maxAge as missed.
// Returns the expired records for peer notification.
func (c *Coordinator) ExpirePending(maxAge time.Duration) []*types.CallRecord {
	c.mu.Lock()

	cutoff := c.clock().Add(-maxAge)
	var stale []*types.CallRecord
	c.store.ForEach(func(rec *types.CallRecord) bool {
		if rec.State == types.CallStatePending && rec.CreatedAt.Before(cutoff) {
			stale = append(stale, rec)
		}
		return true
	})

	expired := make([]*types.CallRecord, 0, len(stale))
	for _, rec := range stale {
		expired = append(expired, c.finishLocked(rec, types.CallStateEnded, types.OutcomeMissed, ""))
	}
	c.mu.Unlock()

	for _, rec := range expired {
		c.archive(rec)
	}
	return expired
}

// ActiveCallFor returns the user's in-flight call, if any.
func (c *Coordinator) ActiveCallFor(userID string) (*types.CallRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.activeFor(userID)
	if rec == nil {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Stats returns coordinator counters for the stats endpoint.
func (c *Coordinator) Stats() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending, active := 0, 0
	c.store.ForEach(func(rec *types.CallRecord) bool {
		switch rec.State {
		case types.CallStatePending:
			pending++
		case types.CallStateActive:
			active++
		}
		return true
	})

	return map[string]int{
		"pending_calls": pending,
		"active_calls":  active,
	}
}

// activeFor finds the user's non-terminal call. Caller holds the lock.
func (c *Coordinator) activeFor(userID string) *types.CallRecord {
	var found *types.CallRecord
	c.store.ForEach(func(rec *types.CallRecord) bool {
		if rec.Involves(userID) {
			found = rec
			return false
		}
		return true
	})
	return found
}

// finishLocked moves rec to a terminal state, removes it from the store
// along with any buffered candidates, and returns a detached copy.
// Caller holds the lock.
func (c *Coordinator) finishLocked(rec *types.CallRecord, state types.CallState, outcome types.CallOutcome, endedBy string) *types.CallRecord {
	now := c.clock()
	rec.State = state
	rec.Outcome = outcome
	rec.EndedAt = &now
	rec.EndedBy = endedBy

	c.store.Delete(rec.ID)
	delete(c.candidates, rec.ID)

	cp := *rec
	return &cp
}

// archive hands a finished record to the archiver. Persistence failures
// are logged and swallowed: teardown must not depend on the archive.
func (c *Coordinator) archive(rec *types.CallRecord) {
	if c.archiver == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := c.archiver.ArchiveCall(ctx, rec); err != nil {
		log.Warn().Err(err).
			Str("call_id", rec.ID).
			Str("outcome", string(rec.Outcome)).
			Msg("failed to archive call")
	}
}
