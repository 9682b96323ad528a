package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/results"
)

// YearContext is handed to every model callback during one simulated year.
//
// Rand is the scheduler's single shared generator. Models draw from it in the
// order they are called, which is why registration order matters. Logger is
// the scheduler's logger.
type YearContext struct {
	Year     int
	Rand     *rand.Rand
	Counters *diag.Counters
	Logger   *slog.Logger
}

// EventModel proposes events for a year and applies them when dispatched.
//
// PrepareYear must not mutate the population store. HandleEvent is called at
// most once per event; it re-checks its preconditions (the subject may have
// died or moved away earlier in the year) and returns false, nil when the event
// no longer applies or when a soft failure prevented it. Errors are fatal.
type EventModel interface {
	Name() string
	PrepareYear(ctx context.Context, yc *YearContext) ([]event.Event, error)
	HandleEvent(ctx context.Context, yc *YearContext, ev event.Event) (bool, error)
	FinishYear(ctx context.Context, yc *YearContext) error
}

// AnnualModel runs once at the end of every year, after dispatch.
type AnnualModel interface {
	Name() string
	FinishYear(ctx context.Context, yc *YearContext) error
}

// Setupper is implemented by models that need a hook before the first year.
type Setupper interface {
	Setup(ctx context.Context, yc *YearContext) error
}

// Ender is implemented by models that need a hook after the last year.
type Ender interface {
	EndSimulation(ctx context.Context, yc *YearContext) error
}

// Dispatch describes one handled event, reported to the DispatchObserver.
type Dispatch struct {
	Seq   int64
	Year  int
	Event event.Event
	Model string
	State event.State // APPLIED or REJECTED
}

// DispatchObserver receives every dispatch in order, synchronously from the
// scheduler loop. It must not touch the population store.
type DispatchObserver func(Dispatch)

// SummaryFunc contributes named numeric values to a year result.
type SummaryFunc func() []diag.Named

// Recorder receives per-year results and phase timings, typically for metrics.
type Recorder interface {
	ObserveYear(r results.YearResult)
	ObservePhase(phase string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveYear(results.YearResult)      {}
func (nopRecorder) ObservePhase(string, time.Duration) {}
