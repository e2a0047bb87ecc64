// Package command implements the voice command state machine: trigger
// phrase detection, optional utterance collection, and the yes/no
// confirmation turn. The machine is a pure transition function; callers
// execute the returned effects.
package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/jakesimonds/Creator/internal/transcript"
)

// Config holds the matching vocabulary and display timings.
type Config struct {
	TriggerPhrases []string
	Affirmative    []string
	Negative       []string

	// CollectWindow enables utterance collection when positive: after a
	// trigger, finals are appended until no event arrives for this long.
	CollectWindow time.Duration

	TranscriptDuration time.Duration
	PromptDuration     time.Duration
	RepromptDuration   time.Duration
	NoticeDuration     time.Duration
}

// DefaultConfig returns the stock vocabulary and timings.
func DefaultConfig() Config {
	return Config{
		TriggerPhrases:     []string{"creator"},
		Affirmative:        []string{"yes", "yeah", "correct"},
		Negative:           []string{"no", "nope", "cancel"},
		TranscriptDuration: 3 * time.Second,
		PromptDuration:     7 * time.Second,
		RepromptDuration:   5 * time.Second,
		NoticeDuration:     3 * time.Second,
	}
}

const cancelledMessage = "Command cancelled. What would you like to create?"

// PromptText is the confirmation question shown for cmd.
func PromptText(cmd string) string {
	return fmt.Sprintf("Do you want me to create: %q? Say yes or no.", cmd)
}

// RepromptText is shown when a confirmation reply had no yes/no token.
func RepromptText(cmd string) string {
	return fmt.Sprintf("Please confirm: %q - Say yes or no", cmd)
}

// BusyText is shown when a command is triggered while another executes.
func BusyText(inFlight string) string {
	return fmt.Sprintf("Still creating: %q. Please wait.", inFlight)
}

// Machine applies transcription events to a session State.
type Machine struct {
	cfg         Config
	trigger     *TriggerDetector
	affirmative tokenSet
	negative    tokenSet
}

func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:         cfg,
		trigger:     NewTriggerDetector(cfg.TriggerPhrases),
		affirmative: newTokenSet(cfg.Affirmative),
		negative:    newTokenSet(cfg.Negative),
	}
}

// Config returns the configuration the machine was built with.
func (m *Machine) Config() Config { return m.cfg }

// OnEvent returns the state following ev and the effects to apply, in order.
func (m *Machine) OnEvent(s State, ev transcript.Event) (State, []Effect) {
	if ev.TimestampMs > s.LastEventAtMs {
		s.LastEventAtMs = ev.TimestampMs
	}
	if !ev.IsFinal {
		return s, []Effect{Text(ev.Text, 0)}
	}
	switch s.Phase {
	case Idle:
		return m.onIdleFinal(s, ev)
	case Collecting:
		s.PendingCommand = joinUtterance(s.PendingCommand, ev.Text)
		return s, []Effect{Text(ev.Text, m.cfg.TranscriptDuration)}
	case AwaitingConfirmation:
		return m.onConfirmation(s, ev)
	case Executing:
		// The hand-off is resolved within the same turn by Accept or
		// Reject; a final seen here is only echoed.
		return s, []Effect{Text(ev.Text, m.cfg.TranscriptDuration)}
	default:
		return s.idle(), []Effect{Text(ev.Text, m.cfg.TranscriptDuration)}
	}
}

func (m *Machine) onIdleFinal(s State, ev transcript.Event) (State, []Effect) {
	matched, remainder := m.trigger.Detect(ev.Text)
	if !matched {
		return s, []Effect{Text(ev.Text, m.cfg.TranscriptDuration)}
	}
	if m.cfg.CollectWindow > 0 {
		if s.Busy() {
			return s, []Effect{Text(BusyText(s.InFlightCommand), m.cfg.NoticeDuration)}
		}
		s.Phase = Collecting
		s.PendingCommand = remainder
		return s, []Effect{Text(ev.Text, m.cfg.TranscriptDuration)}
	}
	if remainder == "" {
		return s, []Effect{Text(ev.Text, m.cfg.TranscriptDuration)}
	}
	if s.Busy() {
		return s, []Effect{Text(BusyText(s.InFlightCommand), m.cfg.NoticeDuration)}
	}
	s.Phase = AwaitingConfirmation
	s.PendingCommand = remainder
	return s, []Effect{Prompt(remainder, PromptText(remainder), m.cfg.PromptDuration)}
}

func (m *Machine) onConfirmation(s State, ev transcript.Event) (State, []Effect) {
	lower := strings.ToLower(ev.Text)
	// Affirmative is checked first so a reply holding both kinds confirms.
	switch {
	case m.affirmative.match(lower):
		s.Phase = Executing
		return s, []Effect{HandOff(s.PendingCommand)}
	case m.negative.match(lower):
		return s.idle(), []Effect{Text(cancelledMessage, m.cfg.NoticeDuration)}
	default:
		return s, []Effect{Prompt(s.PendingCommand, RepromptText(s.PendingCommand), m.cfg.RepromptDuration)}
	}
}

// Tick closes a collected utterance once the caller has seen no event for
// quiet >= CollectWindow. It is a no-op outside Collecting.
func (m *Machine) Tick(s State, quiet time.Duration) (State, []Effect) {
	if s.Phase != Collecting || m.cfg.CollectWindow <= 0 {
		return s, nil
	}
	if quiet < m.cfg.CollectWindow {
		return s, nil
	}
	cmd := strings.TrimSpace(s.PendingCommand)
	if cmd == "" {
		return s.idle(), nil
	}
	s.Phase = AwaitingConfirmation
	s.PendingCommand = cmd
	return s, []Effect{Prompt(cmd, PromptText(cmd), m.cfg.PromptDuration)}
}

// Accept records that the orchestrator took the handed-off command.
func (m *Machine) Accept(s State) State {
	if s.Phase != Executing {
		return s
	}
	s.InFlightCommand = s.PendingCommand
	return s.idle()
}

// Reject records that the orchestrator refused the hand-off. The command is
// dropped and the user is told why.
func (m *Machine) Reject(s State) (State, []Effect) {
	if s.Phase != Executing {
		return s, nil
	}
	inFlight := s.InFlightCommand
	if inFlight == "" {
		inFlight = s.PendingCommand
	}
	return s.idle(), []Effect{Text(BusyText(inFlight), m.cfg.NoticeDuration)}
}

// Finish clears the in-flight marker once the orchestrator stream ends.
func (m *Machine) Finish(s State) State {
	s.InFlightCommand = ""
	return s
}

func joinUtterance(prev, next string) string {
	prev, next = strings.TrimSpace(prev), strings.TrimSpace(next)
	switch {
	case prev == "":
		return next
	case next == "":
		return prev
	default:
		return prev + " " + next
	}
}
