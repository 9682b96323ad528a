package results

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
)

var csvHeader = []string{"run_id", "year", "category", "name", "attempted", "value"}

// CSVSink appends year results to a CSV stream.
// Event rows carry attempted and succeeded (as value); soft-failure and summary
// rows leave attempted empty. The header is written before the first row.
type CSVSink struct {
	mu      sync.Mutex
	w       *csv.Writer
	started bool
}

// NewCSVSink wraps w. The caller owns w and closes it after the run.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) WriteYear(_ context.Context, r YearResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		if err := s.w.Write(csvHeader); err != nil {
			return fmt.Errorf("csv header: %w", err)
		}
		s.started = true
	}
	year := strconv.Itoa(r.Year)
	for _, t := range r.Events {
		rec := []string{r.RunID, year, "event", t.Kind.String(), strconv.Itoa(t.Attempted), strconv.Itoa(t.Succeeded)}
		if err := s.w.Write(rec); err != nil {
			return fmt.Errorf("csv year %d: %w", r.Year, err)
		}
	}
	for _, n := range r.SoftFailures {
		if err := s.w.Write([]string{r.RunID, year, categorySoftFailure, n.Name, "", strconv.Itoa(n.Value)}); err != nil {
			return fmt.Errorf("csv year %d: %w", r.Year, err)
		}
	}
	for _, n := range r.Summaries {
		if err := s.w.Write([]string{r.RunID, year, categorySummary, n.Name, "", strconv.Itoa(n.Value)}); err != nil {
			return fmt.Errorf("csv year %d: %w", r.Year, err)
		}
	}
	s.w.Flush()
	return s.w.Error()
}
