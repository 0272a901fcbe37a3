package discord

import (
	"errors"
	"fmt"
	"time"
)

const (
	HeaderRetryAfter = "Retry-After"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
)

// ErrMissingHeader means the server omitted a rate-limit header the protocol requires.
var ErrMissingHeader = errors.New("discord: missing rate limit header")

// RateLimitState is the bucket state reported by the last response.
type RateLimitState struct {
	Remaining int
	Reset     time.Time
	// Exhausted is set when Remaining hit 0; the next Send waits for Reset.
	Exhausted bool
}

// Message is the subset of the Discord message object returned with ?wait=true.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	WebhookID string    `json:"webhook_id,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusError is returned for non-2xx, non-429 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("discord: webhook returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("discord: webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}
