package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"signalhub/internal/call"
	"signalhub/internal/presence"
	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's proxy layer.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// HandlerConfig tunes connection keepalive and message rate limits.
// Zero values fall back to defaults.
type HandlerConfig struct {
	PingInterval       time.Duration
	ReadTimeout        time.Duration
	RateLimitPerMinute int
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 100
	}
	return c
}

// Handler authenticates websocket upgrades and runs the per-connection
// read pump, dispatching decoded events to presence and call state.
type Handler struct {
	registry *Registry
	presence *presence.Registry
	calls    *call.Coordinator
	verifier interfaces.TokenVerifier
	limiter  *RateLimiter
	cfg      HandlerConfig
}

func NewHandler(registry *Registry, pres *presence.Registry, calls *call.Coordinator, verifier interfaces.TokenVerifier, cfg HandlerConfig) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		registry: registry,
		presence: pres,
		calls:    calls,
		verifier: verifier,
		limiter:  NewRateLimiter(cfg.RateLimitPerMinute),
		cfg:      cfg,
	}
}

// ServeHTTP upgrades an authenticated request to a websocket session.
// The bearer token comes from the Authorization header, or the token
// query parameter for browser clients that cannot set headers on
// websocket requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	wsConn := NewConnection(conn, userID)

	if err := h.registry.Register(wsConn); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to register connection")
		_ = wsConn.Close()
		return
	}

	h.presence.Connect(userID, wsConn.ConnID())
	h.broadcastPresence()

	log.Info().Str("user_id", userID).Str("conn_id", wsConn.ConnID()).Msg("client connected")

	go h.readPump(wsConn)
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// readPump reads client frames until the connection drops, then runs
// teardown. Keepalive follows the usual gorilla pattern: a ping ticker
// paired with a pong handler that extends the read deadline.
func (h *Handler) readPump(conn *Connection) {
	defer h.teardown(conn)

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Warn().Err(err).Msg("failed to set read deadline")
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("user_id", conn.UserID()).Msg("websocket read error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if !h.limiter.Allow(conn.UserID()) {
			h.sendError(conn, types.ErrCodeRateLimited, "message rate limit exceeded")
			continue
		}

		ev, err := types.DecodeInbound(data)
		if err != nil {
			h.sendError(conn, types.ErrCodeBadPayload, "malformed event")
			continue
		}

		h.presence.Touch(conn.UserID())
		h.handleEvent(conn, ev)
	}
}

// teardown runs when a connection drops. Order matters: calls are
// cleaned up and peers notified while the rest of the system still
// sees the user, then presence goes offline, then the connection
// leaves the registry. The presence and registry steps are
// instance-matched, so a stale connection cannot evict its
// replacement. Call cleanup is keyed by user only: a superseded
// connection's late teardown also ends calls the replacement placed,
// matching a hard disconnect of that user.
func (h *Handler) teardown(conn *Connection) {
	h.goOffline(conn)

	h.registry.Unregister(conn)
	_ = conn.Close()

	log.Info().Str("user_id", conn.UserID()).Str("conn_id", conn.ConnID()).Msg("client disconnected")
}

// ExpirePendingCalls times out stale ring attempts and notifies both
// participants. Driven by the application's janitor ticker.
func (h *Handler) ExpirePendingCalls(maxAge time.Duration) {
	for _, rec := range h.calls.ExpirePending(maxAge) {
		payload := types.CallEndedPayload{CallID: rec.ID, By: rec.EndedBy}
		h.sendTo(rec.CallerID, types.EventCallEnded, payload)
		h.sendTo(rec.CalleeID, types.EventCallEnded, payload)
	}
}

// CleanupRateLimiter drops idle rate limit windows. Driven by the
// application's janitor ticker.
func (h *Handler) CleanupRateLimiter() {
	h.limiter.Cleanup()
}
