// Package orchestrator runs every enabled adapter, commits results to the
// store and the health tracker, and dispatches the notifications that follow.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/events"
	"github.com/JakeFAU/private-sauna-availability/internal/health"
	"github.com/JakeFAU/private-sauna-availability/internal/logging"
	"github.com/JakeFAU/private-sauna-availability/internal/metrics"
	"github.com/JakeFAU/private-sauna-availability/internal/notify"
	"github.com/JakeFAU/private-sauna-availability/internal/session"
	"github.com/JakeFAU/private-sauna-availability/internal/storage/memory"
)

var (
	// ErrRunInProgress rejects a run requested while another is executing.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrAllSourcesFailed is returned when every source that ran failed.
	ErrAllSourcesFailed = errors.New("all sources failed")
)

// Trigger says what started a run.
type Trigger string

// Run triggers.
const (
	TriggerStartup  Trigger = "startup"
	TriggerExternal Trigger = "external"
	TriggerSchedule Trigger = "schedule"
)

// Outcome classifies one source within a run.
type Outcome string

// Source outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeWarning means the adapter returned no rooms at all. Nothing is
	// committed: the result cannot be told apart from a broken page.
	OutcomeWarning Outcome = "warning"
	// OutcomeCanceled means the run itself was canceled, usually by shutdown,
	// before the source finished. Health is left untouched.
	OutcomeCanceled Outcome = "canceled"
)

// SessionRunner runs one adapter on a managed page. session.Manager implements it.
type SessionRunner interface {
	Run(ctx context.Context, req session.Request, fn session.ScrapeFunc) (availability.Snapshot, error)
}

// Notifier delivers operator notifications. notify.Dispatcher implements it.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Config holds run parameters.
type Config struct {
	Concurrency   int
	SourceTimeout time.Duration
	HorizonDays   int
	Location      *time.Location
}

// Deps are the collaborators of an Orchestrator. Notifier and Events may be nil.
type Deps struct {
	Adapters []availability.Adapter
	Sessions SessionRunner
	Store    *memory.ResultStore
	Health   *health.Tracker
	Notifier Notifier
	Events   events.Emitter
	IDs      availability.IDGenerator
	Clock    availability.Clock
	Logger   *zap.Logger
}

// SourceResult is one source's part of a RunSummary.
type SourceResult struct {
	Key      string        `json:"key"`
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Rooms    int           `json:"rooms"`
	Slots    int           `json:"slots"`
	SoldOut  bool          `json:"sold_out,omitempty"`
	Fallback bool          `json:"fallback,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// RunSummary reports a finished run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	Trigger    Trigger        `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Sources    []SourceResult `json:"sources"`
}

// Orchestrator owns run scheduling state. It is safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	adapters []availability.Adapter
	sessions SessionRunner
	store    *memory.ResultStore
	health   *health.Tracker
	notifier Notifier
	events   events.Emitter
	ids      availability.IDGenerator
	clock    availability.Clock
	logger   *zap.Logger

	runMu   sync.Mutex
	running atomic.Bool
	// commitMu makes a source's store and health updates one atomic step for readers.
	commitMu sync.RWMutex

	lastMu  sync.Mutex
	lastRun *RunSummary
}

// New builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Sessions == nil || deps.Store == nil || deps.Health == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, fmt.Errorf("orchestrator requires sessions, store, health, ids and clock")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = availability.DefaultHorizonDays
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		adapters: append([]availability.Adapter(nil), deps.Adapters...),
		sessions: deps.Sessions,
		store:    deps.Store,
		health:   deps.Health,
		notifier: deps.Notifier,
		events:   deps.Events,
		ids:      deps.IDs,
		clock:    deps.Clock,
		logger:   logger.Named("orchestrator"),
	}, nil
}

// Sources lists the adapters' sources in run order.
func (o *Orchestrator) Sources() []availability.Source {
	out := make([]availability.Source, 0, len(o.adapters))
	for _, a := range o.adapters {
		out = append(out, a.Source())
	}
	return out
}

// Running reports whether a run is executing.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// LastRun returns the most recent finished run.
func (o *Orchestrator) LastRun() (RunSummary, bool) {
	o.lastMu.Lock()
	defer o.lastMu.Unlock()
	if o.lastRun == nil {
		return RunSummary{}, false
	}
	return *o.lastRun, true
}

// Run executes every adapter once. It returns ErrRunInProgress without waiting
// when a run is executing, and ErrAllSourcesFailed, alongside the summary,
// when every source failed.
func (o *Orchestrator) Run(ctx context.Context, trigger Trigger) (RunSummary, error) {
	if !o.runMu.TryLock() {
		return RunSummary{}, ErrRunInProgress
	}
	defer o.runMu.Unlock()
	o.running.Store(true)
	defer o.running.Store(false)

	runID, err := o.ids.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("run id: %w", err)
	}
	logger := logging.ForRun(o.logger, runID).With(zap.String("trigger", string(trigger)))

	ctx, span := otel.Tracer("orchestrator").Start(ctx, "orchestrator.Run")
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("trigger", string(trigger)))
	defer span.End()

	started := o.clock.Now()
	o.emit(events.Event{RunID: events.RunIDBytes(runID), TS: started.UTC(), Stage: events.StageRunStart, Trigger: string(trigger)})
	logger.Info("run started", zap.Int("sources", len(o.adapters)))

	for _, a := range o.adapters {
		if scoped, ok := a.(availability.RunScoped); ok {
			scoped.ResetRun()
		}
	}
	window := availability.Window(started.In(o.cfg.Location), o.cfg.HorizonDays)

	results := make([]SourceResult, len(o.adapters))
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for i, a := range o.adapters {
		g.Go(func() error {
			results[i] = o.runSource(ctx, runID, trigger, a, window, logger)
			return nil
		})
	}
	_ = g.Wait()

	summary := RunSummary{
		RunID:      runID,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: o.clock.Now(),
		Success:    true,
		Sources:    results,
	}
	var runErr error
	counts := countOutcomes(results)
	switch {
	case ctx.Err() != nil:
		summary.Success = false
		summary.Message = runMessage(counts, len(results))
		runErr = fmt.Errorf("run interrupted: %w", ctx.Err())
	case len(results) > 0 && counts[OutcomeFailure] == len(results):
		summary.Success = false
		summary.Message = failureMessage(results)
		runErr = fmt.Errorf("%w: %s", ErrAllSourcesFailed, summary.Message)
	default:
		summary.Message = runMessage(counts, len(results))
	}

	done := events.Event{
		RunID:   events.RunIDBytes(runID),
		TS:      summary.FinishedAt.UTC(),
		Stage:   events.StageRunDone,
		Trigger: string(trigger),
		Dur:     summary.FinishedAt.Sub(started),
	}
	if runErr != nil {
		done.Stage = events.StageRunError
		done.Note = summary.Message
		span.SetStatus(codes.Error, summary.Message)
		logger.Error("run failed", zap.String("message", summary.Message))
	} else {
		logger.Info("run finished",
			zap.Int("updated", counts[OutcomeSuccess]),
			zap.Int("failed", counts[OutcomeFailure]),
			zap.Int("warnings", counts[OutcomeWarning]),
			zap.Duration("dur", done.Dur),
		)
	}
	o.emit(done)

	o.lastMu.Lock()
	last := summary
	o.lastRun = &last
	o.lastMu.Unlock()
	return summary, runErr
}

func (o *Orchestrator) runSource(
	ctx context.Context,
	runID string,
	trigger Trigger,
	adapter availability.Adapter,
	window []availability.DateKey,
	runLogger *zap.Logger,
) SourceResult {
	src := adapter.Source()
	logger := logging.ForSource(runLogger, src.Key)
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "orchestrator.Source")
	span.SetAttributes(attribute.String("source", src.Key))
	defer span.End()
	started := o.clock.Now()
	o.emit(events.Event{RunID: events.RunIDBytes(runID), TS: started.UTC(), Stage: events.StageSourceStart, Trigger: string(trigger), Source: src.Key})

	snap, err := o.sessions.Run(ctx, session.Request{
		Source:  src.Key,
		RunID:   runID,
		Options: adapter.PageOptions(),
		Timeout: o.cfg.SourceTimeout,
	}, func(ctx context.Context, page availability.Page) (availability.Snapshot, error) {
		return adapter.Scrape(ctx, page, window)
	})

	res := SourceResult{Key: src.Key, Name: src.Name}
	switch {
	case err != nil && ctx.Err() != nil:
		// The per-source timeout lives inside the session; only the run's own
		// context being done lands here, and that says nothing about the site.
		res.Outcome = OutcomeCanceled
		res.Error = err.Error()
		logger.Info("source interrupted by run cancellation", zap.Error(err))
	case err != nil:
		res.Outcome = OutcomeFailure
		res.Error = err.Error()
		span.SetStatus(codes.Error, res.Error)
		logger.Warn("source failed", zap.Error(err))
		o.commitFailure(ctx, src, err)
	case snap.Empty():
		res.Outcome = OutcomeWarning
		res.Error = "no rooms returned"
		logger.Warn("source returned no rooms; keeping previous data")
	default:
		res.Outcome = OutcomeSuccess
		res.Rooms = len(snap.Rooms())
		res.Slots = snap.SlotCount()
		res.SoldOut = res.Slots == 0
		res.Fallback = snap.Fallback
		res.Strategy = snap.Strategy
		if res.SoldOut {
			logger.Info("source has rooms but no open slots")
		}
		o.commitSuccess(ctx, src, snap)
	}
	res.Duration = o.clock.Now().Sub(started)
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)), attribute.Int("slots", res.Slots))

	o.emit(events.Event{
		RunID:    events.RunIDBytes(runID),
		TS:       o.clock.Now().UTC(),
		Stage:    events.StageSourceDone,
		Trigger:  string(trigger),
		Source:   src.Key,
		Outcome:  string(res.Outcome),
		Rooms:    res.Rooms,
		Slots:    res.Slots,
		Fallback: res.Fallback,
		Dur:      res.Duration,
		Note:     res.Error,
	})
	return res
}

func (o *Orchestrator) commitSuccess(ctx context.Context, src availability.Source, snap availability.Snapshot) {
	o.commitMu.Lock()
	o.store.Put(src, snap, o.clock.Now())
	transition := o.health.RecordSuccess(src.Key)
	o.commitMu.Unlock()

	slots := snap.SlotCount()
	metrics.SetSourceSlots(src.Key, slots)
	metrics.SetConsecutiveFailures(src.Key, 0)

	if transition == health.TransitionRecovered {
		o.notify(ctx, notify.Recovery(src.Name))
	}
	if snap.Fallback {
		o.notify(ctx, notify.FallbackUsed(src.Name, snap.Strategy, slots))
	}
}

func (o *Orchestrator) commitFailure(ctx context.Context, src availability.Source, err error) {
	o.commitMu.Lock()
	transition := o.health.RecordFailure(src.Key, err)
	state, _ := o.health.State(src.Key)
	o.commitMu.Unlock()

	metrics.SetConsecutiveFailures(src.Key, state.ConsecutiveFailures)
	if transition == health.TransitionAlert {
		o.notify(ctx, notify.FailureAlert(src.Name, state.ConsecutiveFailures, state.LastError))
	}
}

// notify sends msg outliving a canceled run. Delivery failures are already
// logged by the notifier and never affect the run.
func (o *Orchestrator) notify(ctx context.Context, msg notify.Message) {
	if o.notifier == nil {
		return
	}
	_ = o.notifier.Send(context.WithoutCancel(ctx), msg)
}

func (o *Orchestrator) emit(evt events.Event) {
	if o.events != nil {
		o.events.Emit(evt)
	}
}

func countOutcomes(results []SourceResult) map[Outcome]int {
	out := make(map[Outcome]int, 4)
	for _, r := range results {
		out[r.Outcome]++
	}
	return out
}

// runMessage reports stored sources only; warnings and cancellations store nothing.
func runMessage(counts map[Outcome]int, total int) string {
	updated := counts[OutcomeSuccess]
	msg := "updated all sources"
	if updated != total {
		msg = fmt.Sprintf("updated %d of %d sources", updated, total)
	}
	var notes []string
	if n := counts[OutcomeFailure]; n > 0 {
		notes = append(notes, fmt.Sprintf("%d failed", n))
	}
	if n := counts[OutcomeWarning]; n > 0 {
		notes = append(notes, plural(n, "warning"))
	}
	if n := counts[OutcomeCanceled]; n > 0 {
		notes = append(notes, fmt.Sprintf("%d canceled", n))
	}
	if len(notes) > 0 {
		msg += " (" + strings.Join(notes, ", ") + ")"
	}
	return msg
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func failureMessage(results []SourceResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Key, r.Error))
	}
	return strings.Join(parts, "; ")
}
