package call

import (
	"fmt"
	"time"
)

// NewCallID builds a call identifier from the two participants and the
// creation time: the sorted pair joined with the millisecond timestamp.
// The participant prefix makes IDs self-describing in logs and the
// archive; the timestamp suffix keeps repeat calls between the same
// pair distinct. Two calls created in the same millisecond would
// collide, which the coordinator rules out by rejecting a second call
// while either participant is busy.
func NewCallID(a, b string, now time.Time) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s-%s-%d", a, b, now.UnixMilli())
}
