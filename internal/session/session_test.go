package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jakesimonds/Creator/internal/action"
	"github.com/jakesimonds/Creator/internal/command"
	"github.com/jakesimonds/Creator/internal/generator"
	"github.com/jakesimonds/Creator/internal/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type shown struct {
	text  string
	image string
	opts  TextOptions
}

type fakeAdapter struct {
	id   string
	out  chan shown
	done chan struct{}

	mu            sync.Mutex
	transcription func(transcript.Event)
	notification  func(Notification)
	battery       func(Battery)
	onErr         func(error)
	disposed      map[string]int
}

func newFakeAdapter(id string) *fakeAdapter {
	return &fakeAdapter{
		id:       id,
		out:      make(chan shown, 256),
		done:     make(chan struct{}),
		disposed: make(map[string]int),
	}
}

func (f *fakeAdapter) ID() string            { return f.id }
func (f *fakeAdapter) UserID() string        { return "user-" + f.id }
func (f *fakeAdapter) Done() <-chan struct{} { return f.done }

func (f *fakeAdapter) ShowText(text string, opts TextOptions) error {
	f.out <- shown{text: text, opts: opts}
	return nil
}

func (f *fakeAdapter) ShowImage(encoded string, d time.Duration) error {
	f.out <- shown{image: encoded, opts: TextOptions{Duration: d}}
	return nil
}

func (f *fakeAdapter) dispose(kind string) Disposer {
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.disposed[kind]++
	}
}

func (f *fakeAdapter) OnTranscription(h func(transcript.Event)) Disposer {
	f.mu.Lock()
	f.transcription = h
	f.mu.Unlock()
	return f.dispose("transcription")
}

func (f *fakeAdapter) OnNotification(h func(Notification)) Disposer {
	f.mu.Lock()
	f.notification = h
	f.mu.Unlock()
	return f.dispose("notification")
}

func (f *fakeAdapter) OnBattery(h func(Battery)) Disposer {
	f.mu.Lock()
	f.battery = h
	f.mu.Unlock()
	return f.dispose("battery")
}

func (f *fakeAdapter) OnError(h func(error)) Disposer {
	f.mu.Lock()
	f.onErr = h
	f.mu.Unlock()
	return f.dispose("error")
}

func (f *fakeAdapter) say(text string, final bool) {
	f.mu.Lock()
	h := f.transcription
	f.mu.Unlock()
	h(transcript.Event{Text: text, IsFinal: final})
}

func (f *fakeAdapter) sayAt(text string, final bool, tsMs int64) {
	f.mu.Lock()
	h := f.transcription
	f.mu.Unlock()
	h(transcript.Event{Text: text, IsFinal: final, TimestampMs: tsMs})
}

func (f *fakeAdapter) next(t *testing.T) shown {
	t.Helper()
	select {
	case s := <-f.out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for display output")
		return shown{}
	}
}

func (f *fakeAdapter) waitFor(t *testing.T, text string) []shown {
	t.Helper()
	var seen []shown
	for {
		s := f.next(t)
		seen = append(seen, s)
		if s.text == text {
			return seen
		}
	}
}

func fastOrchestrator(gen generator.Client) *action.Orchestrator {
	return action.NewOrchestrator(gen, action.Config{
		StartDuration:  3 * time.Second,
		ProgressTotal:  20 * time.Millisecond,
		ProgressFrames: 2,
		ResultDuration: 5 * time.Second,
	})
}

func startSession(t *testing.T, a *fakeAdapter, exec Executor, cfg command.Config) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := New(a, command.NewMachine(cfg), exec)
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	require.Equal(t, WelcomeText, a.next(t).text)
	return cancel, errc
}

func TestSessionConfirmAndCreate(t *testing.T) {
	gen := generator.ClientFunc(func(ctx context.Context, prompt string) (generator.ModelHandle, error) {
		return generator.ModelHandle{ID: "m-1"}, nil
	})
	orch := fastOrchestrator(gen)
	a := newFakeAdapter("s1")
	cancel, errc := startSession(t, a, orch, command.DefaultConfig())

	a.say("creator a small boat", false)
	assert.Equal(t, shown{text: "creator a small boat"}, a.next(t))

	a.say("creator a small boat", true)
	prompt := a.next(t)
	assert.Equal(t, command.PromptText("a small boat"), prompt.text)
	assert.Equal(t, command.PriorityHigh, prompt.opts.Priority)

	a.say("yes", true)
	assert.Equal(t, "Executing: a small boat", a.next(t).text)
	seen := a.waitFor(t, action.SuccessText("a small boat"))
	assert.Len(t, seen, 3, "two progress frames then the result")

	cancel()
	require.NoError(t, <-errc)
	orch.Wait()
}

func TestSessionCancel(t *testing.T) {
	a := newFakeAdapter("s2")
	cancel, errc := startSession(t, a, fastOrchestrator(nil), command.DefaultConfig())

	a.say("creator make a lamp", true)
	assert.Equal(t, command.PromptText("make a lamp"), a.next(t).text)
	a.say("maybe", true)
	assert.Equal(t, command.RepromptText("make a lamp"), a.next(t).text)
	a.say("no thanks", true)
	assert.Equal(t, "Command cancelled. What would you like to create?", a.next(t).text)

	cancel()
	require.NoError(t, <-errc)
}

func TestSessionFailureThenRetryByUser(t *testing.T) {
	calls := 0
	gen := generator.ClientFunc(func(ctx context.Context, prompt string) (generator.ModelHandle, error) {
		calls++
		if calls == 1 {
			return generator.ModelHandle{}, generator.ErrTransient
		}
		return generator.ModelHandle{ID: "m-2"}, nil
	})
	orch := fastOrchestrator(gen)
	a := newFakeAdapter("s3")
	cancel, errc := startSession(t, a, orch, command.DefaultConfig())

	a.say("creator a chair", true)
	a.next(t)
	a.say("yes", true)
	a.waitFor(t, "Failed to create model. Please try again.")
	orch.Wait()

	a.say("creator a chair", true)
	assert.Equal(t, command.PromptText("a chair"), a.next(t).text)
	a.say("yeah", true)
	a.waitFor(t, action.SuccessText("a chair"))

	cancel()
	require.NoError(t, <-errc)
	orch.Wait()
	assert.Equal(t, 2, calls)
}

func TestSessionTriggerWhileBusy(t *testing.T) {
	release := make(chan struct{})
	gen := generator.ClientFunc(func(ctx context.Context, prompt string) (generator.ModelHandle, error) {
		<-release
		return generator.ModelHandle{ID: "m"}, nil
	})
	orch := fastOrchestrator(gen)
	a := newFakeAdapter("s4")
	cancel, errc := startSession(t, a, orch, command.DefaultConfig())

	a.say("creator a boat", true)
	a.next(t)
	a.say("yes", true)
	assert.Equal(t, "Executing: a boat", a.next(t).text)

	a.say("creator a plane", true)
	a.waitFor(t, command.BusyText("a boat"))

	close(release)
	a.waitFor(t, action.SuccessText("a boat"))

	cancel()
	require.NoError(t, <-errc)
	orch.Wait()
}

type rejectingExecutor struct{}

func (rejectingExecutor) Execute(context.Context, string) (<-chan command.Effect, error) {
	return nil, action.ErrBusy
}

func TestSessionRejectedHandOff(t *testing.T) {
	a := newFakeAdapter("s5")
	cancel, errc := startSession(t, a, rejectingExecutor{}, command.DefaultConfig())

	a.say("creator a boat", true)
	a.next(t)
	a.say("yes", true)
	assert.Equal(t, command.BusyText("a boat"), a.next(t).text)

	a.say("just talking", true)
	assert.Equal(t, "just talking", a.next(t).text)

	cancel()
	require.NoError(t, <-errc)
}

func TestSessionCollectsUtterance(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	cfg := command.DefaultConfig()
	cfg.CollectWindow = 40 * time.Millisecond
	a := newFakeAdapter("s6")
	ctx, cancel := context.WithCancel(context.Background())
	s := New(a, command.NewMachine(cfg), fastOrchestrator(nil), WithWelcome(""), WithClock(clock))
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.transcription != nil
	}, time.Second, 5*time.Millisecond)

	a.say("creator build me", true)
	assert.Equal(t, "creator build me", a.next(t).text)
	a.say("a tall tower", true)
	assert.Equal(t, "a tall tower", a.next(t).text)

	advance(time.Second)
	assert.Equal(t, command.PromptText("build me a tall tower"), a.next(t).text)

	cancel()
	require.NoError(t, <-errc)
}

func TestSessionCollectWindowIgnoresClientTimestamps(t *testing.T) {
	now := time.UnixMilli(5_000_000)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	cfg := command.DefaultConfig()
	cfg.CollectWindow = 40 * time.Millisecond
	a := newFakeAdapter("s6b")
	ctx, cancel := context.WithCancel(context.Background())
	s := New(a, command.NewMachine(cfg), fastOrchestrator(nil), WithWelcome(""), WithClock(clock))
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.transcription != nil
	}, time.Second, 5*time.Millisecond)

	// Stamps far behind the session clock must not close the window.
	a.sayAt("creator a lamp", true, 1)
	assert.Equal(t, "creator a lamp", a.next(t).text)
	select {
	case got := <-a.out:
		t.Fatalf("window closed early with %q", got.text)
	case <-time.After(150 * time.Millisecond):
	}

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()
	assert.Equal(t, command.PromptText("a lamp"), a.next(t).text)

	cancel()
	require.NoError(t, <-errc)
}

func TestSessionDisposesOnceOnTransportEnd(t *testing.T) {
	a := newFakeAdapter("s7")
	_, errc := startSession(t, a, fastOrchestrator(nil), command.DefaultConfig())

	a.mu.Lock()
	a.onErr(errors.New("socket hiccup"))
	a.notification(Notification{App: "mail"})
	a.battery(Battery{Level: 40})
	a.mu.Unlock()

	close(a.done)
	require.NoError(t, <-errc)

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Equal(t, map[string]int{"transcription": 1, "notification": 1, "battery": 1, "error": 1}, a.disposed)
}

func TestRunTwiceIsNoop(t *testing.T) {
	a := newFakeAdapter("s8")
	s := New(a, command.NewMachine(command.DefaultConfig()), fastOrchestrator(nil), WithWelcome(""))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.transcription != nil
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Run(ctx))

	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, 1, a.disposed["transcription"])
}
