// Package bus carries conversation events between the agent and its
// observers. The default implementation is in-memory; NATS is used when a
// server URL is configured.
package bus

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// MessageBus is a publish/subscribe transport. Implementations must be
// safe for concurrent use.
type MessageBus interface {
	// Publish sends data to every subscriber of subject without waiting
	// for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers handler for subject. "*" matches one token and
	// ">" matches the rest: "repcoach.sessions.*.turns".
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes one incoming message.
type MessageHandler func(msg *Message)

// Message is a delivered payload.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is an active registration.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL. Empty selects the in-memory bus.
	URL string
	// Name identifies the client to the server.
	Name string
	// Timeout bounds the connection attempt.
	Timeout time.Duration
}

// DefaultConfig returns the in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Name:    "repcoach",
		Timeout: 10 * time.Second,
	}
}

// New returns a NATS bus when cfg.URL is set and an in-memory bus
// otherwise.
func New(cfg Config) (MessageBus, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return NewMemoryBus(), nil
	}
	b, err := NewNATSBus(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DefaultPrefix is the subject namespace for repcoach events.
const DefaultPrefix = "repcoach"

// TurnSubject is the subject carrying completed turns for a session.
func TurnSubject(prefix, sessionID string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ".sessions." + sessionID + ".turns"
}

// matchSubject checks if a subject matches a pattern with wildcards.
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	subjectParts := strings.Split(subject, ".")

	pi, si := 0, 0
	for pi < len(patternParts) && si < len(subjectParts) {
		switch patternParts[pi] {
		case "*":
			pi++
			si++
		case ">":
			return true
		default:
			if patternParts[pi] != subjectParts[si] {
				return false
			}
			pi++
			si++
		}
	}
	return pi == len(patternParts) && si == len(subjectParts)
}
