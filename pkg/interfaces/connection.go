package interfaces

// Conn abstracts a registered client connection. The gateway's
// websocket wrapper is the production implementation; tests supply
// in-memory fakes.
type Conn interface {
	// WriteJSON queues v for delivery on the connection's writer.
	WriteJSON(v interface{}) error

	// Close tears down the connection. Safe to call more than once.
	Close() error

	// UserID returns the authenticated user, set during the handshake.
	UserID() string

	// ConnID returns the unique ID of this connection instance.
	// Distinguishes a stale connection from its replacement after
	// a reconnect by the same user.
	ConnID() string
}
