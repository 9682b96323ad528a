package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/results"
	"github.com/roach88/microsim/internal/rng"
)

// Phase names used for spans and timings.
const (
	PhasePrepare  = "prepare"
	PhaseShuffle  = "shuffle"
	PhaseDispatch = "dispatch"
	PhaseFinish   = "finish"
)

// Scheduler is the single-threaded annual event loop.
//
// Thread-safety model:
//   - Register*: before the first Simulate, from one goroutine
//   - Simulate/Run: from exactly one goroutine
//
// INVARIANTS:
//   - one model per event kind
//   - eventModels and annualModels keep registration order forever
//   - the shared generator is seeded once and never reseeded
type Scheduler struct {
	rand     *rand.Rand
	counters *diag.Counters
	clock    *Clock
	queue    *yearQueue

	handlers     map[event.Kind]EventModel
	kinds        []event.Kind // registered kinds, ascending tag
	eventModels  []EventModel // distinct, first-registration order
	annualModels []AnnualModel

	runID     string
	sink      results.Sink
	recorder  Recorder
	tracer    trace.Tracer
	observer  DispatchObserver
	summaries []SummaryFunc
	logger    *slog.Logger

	totals diag.Totals
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSink sets where year results are written. Default: results.Discard.
func WithSink(sink results.Sink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// WithRunID stamps every year result with the given run id.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		s.runID = id
	}
}

// WithMetrics sets the recorder for year results and phase timings.
func WithMetrics(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithTracer sets the tracer for year and phase spans. Default: no-op.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// WithDispatchObserver registers a callback invoked after every handled event.
func WithDispatchObserver(fn DispatchObserver) Option {
	return func(s *Scheduler) {
		s.observer = fn
	}
}

// WithSummaries appends named year summaries (population totals and the like),
// evaluated after the finish phase in the given order.
func WithSummaries(fns ...SummaryFunc) Option {
	return func(s *Scheduler) {
		s.summaries = append(s.summaries, fns...)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New creates a Scheduler whose shared generator is seeded with seed.
func New(seed uint64, opts ...Option) *Scheduler {
	s := &Scheduler{
		rand:     rng.New(seed),
		counters: diag.New(),
		clock:    NewClock(),
		queue:    newYearQueue(),
		handlers: make(map[event.Kind]EventModel),
		sink:     results.Discard{},
		recorder: nopRecorder{},
		tracer:   noop.NewTracerProvider().Tracer("microsim/engine"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterEventModel makes model the handler of kind.
//
// Registration order is part of the reproducibility contract: distinct models
// are prepared (and therefore draw from the shared generator) in the order of
// their first registration, and their candidates enter the year list in that
// order before the shuffle. A model registered for several kinds is prepared
// and finished once; that requires a pointer, since non-pointer models are
// never recognized as the same instance.
func (s *Scheduler) RegisterEventModel(kind event.Kind, model EventModel) error {
	if model == nil {
		return &RuntimeError{Code: ErrCodeInvalidRegistration, Message: "nil event model", Kind: kind}
	}
	if kind == event.KindUnknown {
		return &RuntimeError{Code: ErrCodeInvalidRegistration, Message: "cannot register the unknown kind", Model: model.Name()}
	}
	if existing, ok := s.handlers[kind]; ok {
		return newDuplicateError(kind, existing.Name(), model.Name())
	}

	s.handlers[kind] = model
	s.kinds = append(s.kinds, kind)
	slices.Sort(s.kinds)
	if !slices.ContainsFunc(s.eventModels, func(m EventModel) bool { return sameInstance(m, model) }) {
		s.eventModels = append(s.eventModels, model)
	}
	return nil
}

// RegisterAnnualModel appends model to the annual models, run in order at every year end.
func (s *Scheduler) RegisterAnnualModel(model AnnualModel) error {
	if model == nil {
		return &RuntimeError{Code: ErrCodeInvalidRegistration, Message: "nil annual model"}
	}
	s.annualModels = append(s.annualModels, model)
	return nil
}

// Counters exposes the year counters. Values stay readable after Simulate
// returns and until the next year starts.
func (s *Scheduler) Counters() *diag.Counters {
	return s.counters
}

// Clock exposes the dispatch clock.
func (s *Scheduler) Clock() *Clock {
	return s.clock
}

// SoftFailureTotals returns soft failures accumulated over every simulated year.
func (s *Scheduler) SoftFailureTotals() []diag.Named {
	return s.totals.SoftFailures()
}

// Run simulates every year in [startYear, endYear].
//
// Models implementing Setupper are set up before the first year and models
// implementing Ender are notified after the last, event models first, each in
// registration order. The context is checked between years only; a year, once
// started, runs to completion or to its first fatal error.
func (s *Scheduler) Run(ctx context.Context, startYear, endYear int) error {
	if endYear < startYear {
		return &RuntimeError{
			Code:    ErrCodeInvalidYearRange,
			Message: fmt.Sprintf("end year %d before start year %d", endYear, startYear),
		}
	}

	s.logger.Debug("run starting", "run_id", s.runID, "start", startYear, "end", endYear)
	setupCtx := &YearContext{Year: startYear, Rand: s.rand, Counters: s.counters, Logger: s.logger}
	for _, m := range s.models() {
		if h, ok := m.(Setupper); ok {
			if err := h.Setup(ctx, setupCtx); err != nil {
				return newModelError(startYear, nameOf(m), "setup", err)
			}
		}
	}

	for year := startYear; year <= endYear; year++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before year %d: %w", year, err)
		}
		if _, err := s.Simulate(ctx, year); err != nil {
			return err
		}
	}

	endCtx := &YearContext{Year: endYear, Rand: s.rand, Counters: s.counters, Logger: s.logger}
	for _, m := range s.models() {
		if h, ok := m.(Ender); ok {
			if err := h.EndSimulation(ctx, endCtx); err != nil {
				return newModelError(endYear, nameOf(m), "end simulation", err)
			}
		}
	}

	if s.totals.Any() {
		attrs := []any{"run_id", s.runID}
		for _, n := range s.totals.SoftFailures() {
			attrs = append(attrs, n.Name, n.Value)
		}
		s.logger.Warn("soft failures during run", attrs...)
	}
	return nil
}

// Simulate runs the four phases of one year and returns what was flushed to the sink.
//
// On error the year is abandoned: no result is written, the event list is
// cleared and the store keeps whatever mutations were already applied.
func (s *Scheduler) Simulate(ctx context.Context, year int) (results.YearResult, error) {
	ctx, span := s.tracer.Start(ctx, "simulate.year", trace.WithAttributes(attribute.Int("year", year)))
	defer span.End()

	r, err := s.simulate(ctx, year)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return results.YearResult{}, err
	}
	span.SetAttributes(attribute.Int("events.dispatched", r.Dispatched()))
	return r, nil
}

func (s *Scheduler) simulate(ctx context.Context, year int) (results.YearResult, error) {
	defer s.queue.reset()

	s.counters.Reset(year)
	yc := &YearContext{Year: year, Rand: s.rand, Counters: s.counters, Logger: s.logger}
	s.logger.Info("year starting", "year", year)

	if err := s.phase(ctx, PhasePrepare, func(ctx context.Context) error { return s.prepare(ctx, yc) }); err != nil {
		return results.YearResult{}, err
	}
	if err := s.phase(ctx, PhaseShuffle, func(context.Context) error { return s.queue.shuffle(s.rand) }); err != nil {
		return results.YearResult{}, err
	}
	if err := s.phase(ctx, PhaseDispatch, func(ctx context.Context) error { return s.dispatch(ctx, yc) }); err != nil {
		return results.YearResult{}, err
	}

	var r results.YearResult
	err := s.phase(ctx, PhaseFinish, func(ctx context.Context) error {
		var err error
		r, err = s.finish(ctx, yc)
		return err
	})
	if err != nil {
		return results.YearResult{}, err
	}
	return r, nil
}

// phase wraps fn in a child span and reports its duration.
func (s *Scheduler) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "phase."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.recorder.ObservePhase(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Scheduler) prepare(ctx context.Context, yc *YearContext) error {
	for _, m := range s.eventModels {
		evs, err := m.PrepareYear(ctx, yc)
		if err != nil {
			return newModelError(yc.Year, m.Name(), "prepare", err)
		}
		s.queue.add(evs)
		s.logger.Debug("model prepared", "year", yc.Year, "model", m.Name(), "events", len(evs))
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, yc *YearContext) error {
	for i := 0; i < s.queue.Len(); i++ {
		ev, err := s.queue.begin(i)
		if err != nil {
			return err
		}
		m, ok := s.handlers[ev.Kind()]
		if !ok {
			return newUnregisteredError(yc.Year, ev.Kind())
		}

		seq := s.clock.Next()
		yc.Counters.Attempt(ev.Kind())
		applied, err := m.HandleEvent(ctx, yc, ev)
		if err != nil {
			re := newModelError(yc.Year, m.Name(), "handle "+ev.String(), err)
			re.Kind = ev.Kind()
			return re
		}
		if applied {
			yc.Counters.Succeed(ev.Kind())
		}
		state := s.queue.settle(i, applied)

		s.logger.Debug("event dispatched", "seq", seq, "event", ev.String(), "state", state.String())
		if s.observer != nil {
			s.observer(Dispatch{Seq: seq, Year: yc.Year, Event: ev, Model: m.Name(), State: state})
		}
	}
	return nil
}

func (s *Scheduler) finish(ctx context.Context, yc *YearContext) (results.YearResult, error) {
	for _, m := range s.annualModels {
		if err := m.FinishYear(ctx, yc); err != nil {
			return results.YearResult{}, newModelError(yc.Year, m.Name(), "finish", err)
		}
	}
	for _, m := range s.eventModels {
		if err := m.FinishYear(ctx, yc); err != nil {
			return results.YearResult{}, newModelError(yc.Year, m.Name(), "finish", err)
		}
	}

	snap := yc.Counters.Snapshot()
	r := results.YearResult{
		RunID:        s.runID,
		Year:         yc.Year,
		Events:       make([]diag.KindTally, 0, len(s.kinds)),
		SoftFailures: snap.SoftFailures,
	}
	for _, k := range s.kinds {
		r.Events = append(r.Events, diag.KindTally{
			Kind:      k,
			Attempted: yc.Counters.Attempted(k),
			Succeeded: yc.Counters.Succeeded(k),
		})
	}
	for _, fn := range s.summaries {
		r.Summaries = append(r.Summaries, fn()...)
	}

	if err := s.sink.WriteYear(ctx, r); err != nil {
		return results.YearResult{}, &RuntimeError{
			Code:    ErrCodeSinkFailed,
			Message: "write year result",
			Year:    yc.Year,
			Err:     err,
		}
	}
	s.recorder.ObserveYear(r)
	s.totals.Add(snap)

	s.logger.Info("year finished",
		"year", yc.Year,
		"dispatched", r.Dispatched(),
		"soft_failures", yc.Counters.TotalSoftFailures())
	return r, nil
}

// models lists event models then annual models, each in registration order,
// without repeating an instance registered as both.
func (s *Scheduler) models() []any {
	out := make([]any, 0, len(s.eventModels)+len(s.annualModels))
	for _, m := range s.eventModels {
		out = append(out, m)
	}
	for _, m := range s.annualModels {
		if !slices.ContainsFunc(out, func(o any) bool { return sameInstance(o, m) }) {
			out = append(out, m)
		}
	}
	return out
}

// sameInstance reports whether a and b are the same pointer. Values are never
// compared: == panics on a dynamic type holding a slice or map.
func sameInstance(a, b any) bool {
	if a == nil || reflect.TypeOf(a).Kind() != reflect.Pointer {
		return false
	}
	return a == b
}

func nameOf(m any) string {
	if n, ok := m.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", m)
}
