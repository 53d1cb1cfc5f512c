package cursor

import (
	"errors"
	"time"
)

// State is the lifecycle state of a stream poller.
type State string

const (
	StateIdle          State = "idle"
	StateBootstrapping State = "bootstrapping"
	StatePolling       State = "polling"
	StateCooldown      State = "cooldown"
	StateStopped       State = "stopped"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	StateIdle:          {StateBootstrapping, StatePolling, StateStopped},
	StateBootstrapping: {StateIdle, StateStopped},
	StatePolling:       {StateIdle, StateCooldown, StateStopped},
	StateCooldown:      {StatePolling, StateStopped},
	StateStopped:       {},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateIdle:
		return "Idle - waiting for the next tick"
	case StateBootstrapping:
		return "Bootstrapping - loading or deriving the start cursor"
	case StatePolling:
		return "Polling - fetching and applying events"
	case StateCooldown:
		return "Cooldown - paused after an upstream failure"
	case StateStopped:
		return "Stopped - shut down"
	default:
		return "Unknown state"
	}
}
