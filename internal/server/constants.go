package server

import "time"

// Server configuration constants
const (
	// Per-connection rate limiting of websocket commands
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Events buffered for the websocket broadcaster
	BroadcastBuffer = 128

	// Per-write deadline for a websocket client
	WriteTimeout = 5 * time.Second

	// Largest accepted request body
	MaxBodyBytes = 64 << 10
)
