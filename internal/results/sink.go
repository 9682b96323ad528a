// Package results receives the per-year outcome of a simulation run.
//
// Once per simulated year the scheduler's finish phase writes exactly one
// YearResult to the configured Sink: the (kind, attempted, succeeded) tallies of
// every registered event kind, the year's soft-failure counters and a list of
// named numeric summaries. The scheduler is the only writer; sinks are
// append-only.
package results

import (
	"context"
	"errors"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/event"
)

// YearResult is the flushed outcome of one simulated year.
type YearResult struct {
	RunID        string
	Year         int
	Events       []diag.KindTally // ascending kind tag, every registered kind
	SoftFailures []diag.Named     // ascending name
	Summaries    []diag.Named     // in summary-provider order
}

// Succeeded returns the applied count of kind k.
func (r YearResult) Succeeded(k event.Kind) int {
	for _, t := range r.Events {
		if t.Kind == k {
			return t.Succeeded
		}
	}
	return 0
}

// Dispatched returns the number of events dispatched during the year.
func (r YearResult) Dispatched() int {
	total := 0
	for _, t := range r.Events {
		total += t.Attempted
	}
	return total
}

// Summary looks up a named summary value.
func (r YearResult) Summary(name string) (int, bool) {
	for _, s := range r.Summaries {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}

// Sink is the append-only destination of year results.
type Sink interface {
	WriteYear(ctx context.Context, r YearResult) error
}

// Discard drops every result.
type Discard struct{}

func (Discard) WriteYear(context.Context, YearResult) error { return nil }

// MemorySink keeps results in memory, mainly for tests and the CLI summary.
type MemorySink struct {
	Years []YearResult
}

func (m *MemorySink) WriteYear(_ context.Context, r YearResult) error {
	m.Years = append(m.Years, r)
	return nil
}

// MultiSink fans one result out to several sinks in order.
// Every sink is attempted; the errors are joined.
type MultiSink []Sink

func (ms MultiSink) WriteYear(ctx context.Context, r YearResult) error {
	var errs []error
	for _, s := range ms {
		if err := s.WriteYear(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
