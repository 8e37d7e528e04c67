package gateway

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-user message budget over a fixed one
// minute window.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	clients   map[string]*clientWindow
}

type clientWindow struct {
	messageCount int
	windowStart  time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		clients:   make(map[string]*clientWindow),
	}
}

// Allow reports whether userID may send another message.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, ok := rl.clients[userID]
	if !ok {
		rl.clients[userID] = &clientWindow{messageCount: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.messageCount = 1
		window.windowStart = now
		return true
	}

	if window.messageCount >= rl.perMinute {
		return false
	}

	window.messageCount++
	return true
}

// Cleanup drops windows idle for more than five minutes. Called
// periodically to keep disconnected users from accumulating.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, window := range rl.clients {
		if now.Sub(window.windowStart) > 5*time.Minute {
			delete(rl.clients, userID)
		}
	}
}
