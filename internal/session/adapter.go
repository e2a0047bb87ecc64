// Package session binds one streaming session to a command state machine
// and an action executor.
package session

import (
	"context"
	"time"

	"github.com/jakesimonds/Creator/internal/command"
	"github.com/jakesimonds/Creator/internal/transcript"
)

// TextOptions controls how long and how urgently text is shown.
type TextOptions struct {
	// Duration of zero leaves the text until it is replaced.
	Duration time.Duration
	Priority command.Priority
}

// Display is the output side of a session.
type Display interface {
	ShowText(text string, opts TextOptions) error
	ShowImage(encoded string, d time.Duration) error
}

// Disposer unregisters a handler. Calling it more than once is harmless.
type Disposer func()

// Notification is a phone notification relayed by the session host.
type Notification struct {
	App     string `json:"app"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Battery is a device battery report.
type Battery struct {
	Level    int  `json:"level"`
	Charging bool `json:"charging"`
}

// Events is the input side of a session. Handlers may be called from any
// goroutine but never concurrently for the same kind.
type Events interface {
	OnTranscription(func(transcript.Event)) Disposer
	OnNotification(func(Notification)) Disposer
	OnBattery(func(Battery)) Disposer
	OnError(func(error)) Disposer
}

// Adapter is a live session host connection.
type Adapter interface {
	Display
	Events
	ID() string
	UserID() string
	// Done is closed when the underlying transport ends.
	Done() <-chan struct{}
}

// Executor runs a confirmed command and streams its display effects. The
// returned channel is closed when the command has finished.
type Executor interface {
	Execute(ctx context.Context, cmd string) (<-chan command.Effect, error)
}
