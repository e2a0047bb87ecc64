// Package action runs a confirmed command against the generation service
// while feeding progress and the final outcome back as display effects.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/jakesimonds/Creator/internal/command"
	"github.com/jakesimonds/Creator/internal/generator"
	"github.com/jakesimonds/Creator/internal/logging"
)

var (
	// ErrBusy is returned by Execute while a previous invocation runs.
	ErrBusy = errors.New("an action is already in flight")
	// ErrEmptyCommand is returned by Execute for a blank command.
	ErrEmptyCommand = errors.New("empty command")
)

const failureMessage = "Failed to create model. Please try again."

// SuccessText is the terminal message for a generated model.
func SuccessText(cmd string) string {
	return fmt.Sprintf("Created successfully: %q", cmd)
}

// Config controls the feedback sequence around one invocation.
type Config struct {
	StartDuration  time.Duration
	ProgressTotal  time.Duration
	ProgressFrames int
	// Frames overrides the generated text frames when non-empty.
	Frames         []Frame
	ResultDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		StartDuration:  3 * time.Second,
		ProgressTotal:  6 * time.Second,
		ProgressFrames: 6,
		ResultDuration: 5 * time.Second,
	}
}

// PendingAction describes the invocation currently in flight.
type PendingAction struct {
	ID        string
	Command   string
	StartedAt time.Time
}

// Orchestrator supervises at most one generation at a time.
type Orchestrator struct {
	gen generator.Client
	cfg Config

	mu       sync.Mutex
	inFlight *PendingAction
	wg       sync.WaitGroup
}

func NewOrchestrator(gen generator.Client, cfg Config) *Orchestrator {
	return &Orchestrator{gen: gen, cfg: cfg}
}

// InFlight returns the running invocation, if any.
func (o *Orchestrator) InFlight() (PendingAction, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight == nil {
		return PendingAction{}, false
	}
	return *o.inFlight, true
}

// Execute starts cmd and returns its effect stream. The first effect is
// already queued when Execute returns; the channel is closed after the
// terminal effect, once the in-flight marker has been cleared.
//
// The invocation is detached from ctx cancellation and always runs to
// completion; ctx only contributes trace and log values.
func (o *Orchestrator) Execute(ctx context.Context, cmd string) (<-chan command.Effect, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil, ErrEmptyCommand
	}

	o.mu.Lock()
	if o.inFlight != nil {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	pa := &PendingAction{ID: uuid.NewString(), Command: cmd, StartedAt: time.Now()}
	o.inFlight = pa
	o.mu.Unlock()

	frames := o.cfg.Frames
	if len(frames) == 0 {
		frames = TextFrames(cmd, o.cfg.ProgressFrames)
	}
	out := make(chan command.Effect, len(frames)+2)
	out <- command.Text("Executing: "+cmd, o.cfg.StartDuration)

	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), *pa, frames, out)
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, pa PendingAction, frames []Frame, out chan<- command.Effect) {
	defer o.wg.Done()
	defer close(out)

	ctx = logging.WithFields(ctx, logging.CommandFields(pa.ID, pa.Command)...)
	ctx, span := tracer.Start(ctx, "action.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("action.id", pa.ID))
	logging.InfowCtx(ctx, "action: started")

	var (
		g      errgroup.Group
		handle generator.ModelHandle
	)
	g.Go(func() error {
		o.showProgress(frames, out)
		return nil
	})
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("generator panic: %v", r)
			}
		}()
		handle, err = o.gen.Generate(ctx, pa.Command)
		return err
	})
	err := g.Wait()

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.WarnwCtx(ctx, "action: generation failed", "err", err)
		out <- command.Text(failureMessage, o.cfg.ResultDuration)
	} else {
		span.SetAttributes(attribute.String("model.id", handle.ID))
		logging.InfowCtx(ctx, "action: generation accepted", "model_id", handle.ID, "status", handle.Status)
		out <- command.Text(SuccessText(pa.Command), o.cfg.ResultDuration)
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	executions.Add(ctx, 1, attrs)
	executionLatency.Record(ctx, time.Since(pa.StartedAt).Seconds(), attrs)

	o.mu.Lock()
	o.inFlight = nil
	o.mu.Unlock()
}

// showProgress emits each frame and holds it for its share of the total.
func (o *Orchestrator) showProgress(frames []Frame, out chan<- command.Effect) {
	slice := frameSlice(o.cfg.ProgressTotal, len(frames))
	if slice == 0 {
		return
	}
	for _, f := range frames {
		out <- f.effect(slice)
		time.Sleep(slice)
	}
}

// Wait blocks until every started invocation has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
