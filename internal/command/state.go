package command

import "fmt"

// Phase is the position of a session in the capture/confirm cycle.
type Phase int

const (
	Idle Phase = iota
	Collecting
	AwaitingConfirmation
	Executing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Executing:
		return "executing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the per-session value threaded through Machine. It is owned by
// a single session loop and never shared.
type State struct {
	Phase          Phase
	PendingCommand string
	LastEventAtMs  int64
	// InFlightCommand mirrors the orchestrator's in-flight marker. It is set
	// by Accept and cleared by Finish.
	InFlightCommand string
}

// Busy reports whether an accepted command is still being executed.
func (s State) Busy() bool { return s.InFlightCommand != "" }

// Valid reports whether s satisfies the pending command invariant.
func (s State) Valid() bool {
	switch s.Phase {
	case Idle:
		return s.PendingCommand == ""
	case AwaitingConfirmation, Executing:
		return s.PendingCommand != ""
	case Collecting:
		return true
	default:
		return false
	}
}

func (s State) idle() State {
	s.Phase = Idle
	s.PendingCommand = ""
	return s
}
