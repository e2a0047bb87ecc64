package command

import (
	"fmt"
	"time"
)

// EffectKind identifies what the caller must do with an Effect.
type EffectKind int

const (
	// EffectShowText displays Text for Duration (zero means until replaced).
	EffectShowText EffectKind = iota + 1
	// EffectShowPrompt displays the confirmation prompt for Command.
	EffectShowPrompt
	// EffectShowImage displays the encoded bitmap in Image.
	EffectShowImage
	// EffectHandOff passes Command to the action orchestrator.
	EffectHandOff
)

func (k EffectKind) String() string {
	switch k {
	case EffectShowText:
		return "show_text"
	case EffectShowPrompt:
		return "show_prompt"
	case EffectShowImage:
		return "show_image"
	case EffectHandOff:
		return "hand_off"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// Priority is the display priority requested for a text effect.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Effect is an instruction produced by the state machine or the orchestrator
// and executed by the session against its display.
type Effect struct {
	Kind     EffectKind
	Text     string
	Image    string
	Command  string
	Duration time.Duration
	Priority Priority
}

// Text returns a normal priority text effect.
func Text(text string, d time.Duration) Effect {
	return Effect{Kind: EffectShowText, Text: text, Duration: d}
}

// Prompt returns a high priority confirmation prompt for cmd.
func Prompt(cmd, text string, d time.Duration) Effect {
	return Effect{Kind: EffectShowPrompt, Command: cmd, Text: text, Duration: d, Priority: PriorityHigh}
}

// Image returns an image effect carrying an encoded bitmap.
func Image(encoded string, d time.Duration) Effect {
	return Effect{Kind: EffectShowImage, Image: encoded, Duration: d}
}

// HandOff returns the effect that passes cmd to the orchestrator.
func HandOff(cmd string) Effect {
	return Effect{Kind: EffectHandOff, Command: cmd}
}
