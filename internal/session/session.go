package session

import (
	"context"
	"sync"
	"time"

	"github.com/jakesimonds/Creator/internal/command"
	"github.com/jakesimonds/Creator/internal/logging"
	"github.com/jakesimonds/Creator/internal/transcript"
)

// WelcomeText is shown once when a session starts.
const WelcomeText = `Creator ready! Say "creator" followed by what to build.`

const eventBuffer = 64

// Option configures a Session.
type Option func(*Session)

// WithWelcome replaces the start-up text. An empty string disables it.
func WithWelcome(text string) Option {
	return func(s *Session) { s.welcome = text }
}

// WithClock overrides the clock that collection windows are measured on.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session runs the command loop for one Adapter. All state is owned by the
// goroutine inside Run.
type Session struct {
	adapter Adapter
	machine *command.Machine
	exec    Executor
	welcome string
	now     func() time.Time

	events chan transcript.Event
	stop   chan struct{}
	run    sync.Once

	state   command.State
	actions <-chan command.Effect
	// lastEvent is when the loop last took an event, on the session clock.
	// Collection windows are measured from it, not from client timestamps.
	lastEvent time.Time
}

func New(a Adapter, m *command.Machine, exec Executor, opts ...Option) *Session {
	s := &Session{
		adapter: a,
		machine: m,
		exec:    exec,
		welcome: WelcomeText,
		now:     time.Now,
		events:  make(chan transcript.Event, eventBuffer),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) ID() string { return s.adapter.ID() }

// Run processes events until ctx is cancelled or the adapter is done. It may
// be called once; later calls return immediately.
func (s *Session) Run(ctx context.Context) error {
	ran := false
	s.run.Do(func() { ran = true })
	if !ran {
		return nil
	}
	defer close(s.stop)

	ctx = logging.WithFields(ctx, logging.SessionFields(s.adapter.ID(), s.adapter.UserID())...)
	disposers := s.subscribe(ctx)
	defer func() {
		for _, d := range disposers {
			d()
		}
		logging.InfowCtx(ctx, "session: stopped")
	}()
	logging.InfowCtx(ctx, "session: started")

	if s.welcome != "" {
		s.apply(ctx, []command.Effect{command.Text(s.welcome, 0)})
	}

	var tick <-chan time.Time
	if w := s.machine.Config().CollectWindow; w > 0 {
		interval := w / 4
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.adapter.Done():
			return nil
		case ev := <-s.events:
			s.lastEvent = s.now()
			s.drainActions(ctx)
			var effects []command.Effect
			s.state, effects = s.machine.OnEvent(s.state, ev)
			s.apply(ctx, effects)
		case e, ok := <-s.actions:
			if !ok {
				s.actions = nil
				s.state = s.machine.Finish(s.state)
				continue
			}
			s.apply(ctx, []command.Effect{e})
		case <-tick:
			var effects []command.Effect
			s.state, effects = s.machine.Tick(s.state, s.now().Sub(s.lastEvent))
			s.apply(ctx, effects)
		}
	}
}

// drainActions applies whatever the executor has already produced so an
// event never observes a finished command as still running.
func (s *Session) drainActions(ctx context.Context) {
	for s.actions != nil {
		select {
		case e, ok := <-s.actions:
			if !ok {
				s.actions = nil
				s.state = s.machine.Finish(s.state)
				return
			}
			s.apply(ctx, []command.Effect{e})
		default:
			return
		}
	}
}

func (s *Session) subscribe(ctx context.Context) []Disposer {
	return []Disposer{
		once(s.adapter.OnTranscription(func(ev transcript.Event) {
			select {
			case s.events <- ev:
			case <-s.stop:
			}
		})),
		once(s.adapter.OnNotification(func(n Notification) {
			logging.DebugwCtx(ctx, "session: notification", "app", n.App, "title", n.Title)
		})),
		once(s.adapter.OnBattery(func(b Battery) {
			logging.DebugwCtx(ctx, "session: battery", "level", b.Level, "charging", b.Charging)
		})),
		once(s.adapter.OnError(func(err error) {
			logging.WarnwCtx(ctx, "session: transport error", "err", err)
		})),
	}
}

// apply executes effects in order against the display, handing confirmed
// commands to the executor.
func (s *Session) apply(ctx context.Context, effects []command.Effect) {
	for _, e := range effects {
		var err error
		switch e.Kind {
		case command.EffectShowText, command.EffectShowPrompt:
			err = s.adapter.ShowText(e.Text, TextOptions{Duration: e.Duration, Priority: e.Priority})
		case command.EffectShowImage:
			err = s.adapter.ShowImage(e.Image, e.Duration)
		case command.EffectHandOff:
			s.handOff(ctx, e.Command)
		}
		if err != nil {
			logging.WarnwCtx(ctx, "session: display failed", "effect", e.Kind.String(), "err", err)
		}
	}
}

func (s *Session) handOff(ctx context.Context, cmd string) {
	ch, err := s.exec.Execute(ctx, cmd)
	if err != nil {
		logging.InfowCtx(ctx, "session: hand-off rejected", "command.text", cmd, "err", err)
		var effects []command.Effect
		s.state, effects = s.machine.Reject(s.state)
		s.apply(ctx, effects)
		return
	}
	s.state = s.machine.Accept(s.state)
	s.actions = ch
}

func once(d Disposer) Disposer {
	var o sync.Once
	return func() {
		if d != nil {
			o.Do(d)
		}
	}
}
