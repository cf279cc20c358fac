package memory

import "time"

// DefaultMaxTurns bounds episodic memory when no limit is configured.
const DefaultMaxTurns = 100

// Turn is one user input and the agent's response.
type Turn struct {
	UserInput     string    `json:"user_input"`
	AgentResponse string    `json:"agent_response"`
	Timestamp     time.Time `json:"timestamp"`
	Truncated     bool      `json:"truncated,omitempty"`
}

// EpisodicMemory is an ordered turn log, most recent last. When maxTurns is
// positive the oldest turns are dropped past that bound.
type EpisodicMemory struct {
	turns    []Turn
	maxTurns int
}

// NewEpisodicMemory returns a log bounded to maxTurns; maxTurns <= 0 keeps
// everything.
func NewEpisodicMemory(maxTurns int) *EpisodicMemory {
	return &EpisodicMemory{maxTurns: maxTurns}
}

// Append adds a turn and trims the log to its bound.
func (e *EpisodicMemory) Append(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	e.turns = append(e.turns, t)
	if e.maxTurns > 0 && len(e.turns) > e.maxTurns {
		drop := len(e.turns) - e.maxTurns
		trimmed := make([]Turn, e.maxTurns)
		copy(trimmed, e.turns[drop:])
		e.turns = trimmed
	}
}

// Turns returns a copy of the log.
func (e *EpisodicMemory) Turns() []Turn {
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Recent returns up to n most recent turns, oldest first.
func (e *EpisodicMemory) Recent(n int) []Turn {
	if n <= 0 || n >= len(e.turns) {
		return e.Turns()
	}
	out := make([]Turn, n)
	copy(out, e.turns[len(e.turns)-n:])
	return out
}

// Last returns the most recent turn.
func (e *EpisodicMemory) Last() (Turn, bool) {
	if len(e.turns) == 0 {
		return Turn{}, false
	}
	return e.turns[len(e.turns)-1], true
}

// Len returns the number of retained turns.
func (e *EpisodicMemory) Len() int {
	return len(e.turns)
}
