package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func finishedCall(id, caller, callee string, outcome types.CallOutcome, endedAt time.Time) *types.CallRecord {
	created := endedAt.Add(-2 * time.Minute)
	answered := endedAt.Add(-time.Minute)

	rec := &types.CallRecord{
		ID:        id,
		CallerID:  caller,
		CalleeID:  callee,
		State:     types.CallStateEnded,
		Outcome:   outcome,
		CreatedAt: created,
		EndedAt:   &endedAt,
		EndedBy:   caller,
	}
	if outcome == types.OutcomeCompleted {
		rec.AnsweredAt = &answered
	}
	return rec
}

func TestArchiveAndQuery(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	endedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := finishedCall("alice-bob-1", "alice", "bob", types.OutcomeCompleted, endedAt)

	require.NoError(t, m.ArchiveCall(ctx, rec))

	// Both participants see the call.
	for _, userID := range []string{"alice", "bob"} {
		calls, err := m.CallsForUser(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, calls, 1, "user %s", userID)

		got := calls[0]
		assert.Equal(t, "alice-bob-1", got.CallID)
		assert.Equal(t, "alice", got.CallerID)
		assert.Equal(t, "bob", got.CalleeID)
		assert.Equal(t, string(types.OutcomeCompleted), got.Outcome)
		assert.Equal(t, int64(60), got.DurationSecs)
		assert.NotNil(t, got.AnsweredAt)
		assert.Equal(t, "alice", got.EndedBy)
	}

	// Uninvolved users see nothing.
	calls, err := m.CallsForUser(ctx, "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestArchiveMissedCall(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	endedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := finishedCall("alice-bob-2", "alice", "bob", types.OutcomeMissed, endedAt)

	require.NoError(t, m.ArchiveCall(ctx, rec))

	calls, err := m.CallsForUser(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, string(types.OutcomeMissed), calls[0].Outcome)
	assert.Nil(t, calls[0].AnsweredAt)
	assert.Equal(t, int64(0), calls[0].DurationSecs)
}

func TestArchiveUnfinishedCall(t *testing.T) {
	m := newTestManager(t)

	err := m.ArchiveCall(context.Background(), &types.CallRecord{ID: "x"})
	assert.Error(t, err)
}

func TestCallsForUser_NewestFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.ArchiveCall(ctx, finishedCall("alice-bob-1", "alice", "bob", types.OutcomeCompleted, base)))
	require.NoError(t, m.ArchiveCall(ctx, finishedCall("alice-bob-2", "alice", "bob", types.OutcomeRejected, base.Add(time.Hour))))

	calls, err := m.CallsForUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "alice-bob-2", calls[0].CallID)
	assert.Equal(t, "alice-bob-1", calls[1].CallID)
}

func TestCallsForUser_Limit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := finishedCall(call("alice", "bob", i), "alice", "bob", types.OutcomeCompleted, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, m.ArchiveCall(ctx, rec))
	}

	calls, err := m.CallsForUser(ctx, "alice", 3)
	require.NoError(t, err)
	assert.Len(t, calls, 3)
}

func call(a, b string, i int) string {
	return a + "-" + b + "-" + string(rune('0'+i))
}

func TestHealthCheck(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}

func TestClose_Idempotent(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	// Writes after close fail cleanly.
	endedAt := time.Now()
	rec := finishedCall("alice-bob-1", "alice", "bob", types.OutcomeCompleted, endedAt)
	assert.Error(t, m.ArchiveCall(context.Background(), rec))
}
