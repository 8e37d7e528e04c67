package call

import "errors"

var (
	ErrSelfCall          = errors.New("cannot place a call to yourself")
	ErrCalleeOffline     = errors.New("callee is not online")
	ErrAlreadyInCall     = errors.New("participant already has a call in progress")
	ErrCallNotFound      = errors.New("call not found")
	ErrNotParticipant    = errors.New("user is not a participant in this call")
	ErrInvalidTransition = errors.New("call state does not allow this operation")
)
