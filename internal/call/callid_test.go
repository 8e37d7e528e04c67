package call

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCallID_OrdersParticipants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	want := fmt.Sprintf("alice-bob-%d", now.UnixMilli())
	assert.Equal(t, want, NewCallID("alice", "bob", now))
	assert.Equal(t, want, NewCallID("bob", "alice", now))
}

func TestNewCallID_RepeatCallsAreDistinct(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := NewCallID("alice", "bob", now)
	second := NewCallID("alice", "bob", now.Add(time.Millisecond))
	assert.NotEqual(t, first, second)
}
