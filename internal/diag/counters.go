// Package diag accumulates the per-year event tallies and soft-failure counters.
//
// A soft failure is an expected, non-exceptional inability to satisfy an event
// (no vacant dwelling, no vacant job, ...). Soft failures are counted here and
// never raised as errors.
//
// Counters is owned by the scheduler and handed to models through the year
// context; there is no package-level instance. Reset is called at the start of
// every simulated year and values only grow until the next Reset.
//
// Thread-safety: none. Counters is touched only from the single-threaded
// scheduler loop; the parallel rebalancing tasks never see it.
package diag

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/microsim/internal/event"
)

// Well-known soft-failure names used by the built-in models.
const (
	NoVacantDwellingForMove    = "no vacant dwelling for move"
	NoVacantDwellingForMigrant = "no vacant dwelling for in-migrant"
	NoVacantJob                = "no vacant job"
)

// Counters holds one year's tallies.
type Counters struct {
	year      int
	attempted map[event.Kind]int
	succeeded map[event.Kind]int
	soft      map[string]int
}

// New creates zeroed counters.
func New() *Counters {
	return &Counters{
		attempted: make(map[event.Kind]int),
		succeeded: make(map[event.Kind]int),
		soft:      make(map[string]int),
	}
}

// Reset zeroes every counter and stamps the year being simulated.
func (c *Counters) Reset(year int) {
	c.year = year
	clear(c.attempted)
	clear(c.succeeded)
	clear(c.soft)
}

// Year returns the year passed to the last Reset.
func (c *Counters) Year() int { return c.year }

// Attempt records that an event of kind k was dispatched.
func (c *Counters) Attempt(k event.Kind) { c.attempted[k]++ }

// Succeed records that an event of kind k changed state.
func (c *Counters) Succeed(k event.Kind) { c.succeeded[k]++ }

// SoftFailure increments the named soft-failure counter.
// Names are trimmed and NFC-normalized so visually identical names share a counter.
func (c *Counters) SoftFailure(name string) {
	c.soft[normalize(name)]++
}

// Attempted returns the dispatched count for kind k.
func (c *Counters) Attempted(k event.Kind) int { return c.attempted[k] }

// Succeeded returns the applied count for kind k.
func (c *Counters) Succeeded(k event.Kind) int { return c.succeeded[k] }

// SoftFailures returns the value of one named counter.
func (c *Counters) SoftFailures(name string) int { return c.soft[normalize(name)] }

// TotalSoftFailures sums all named counters.
func (c *Counters) TotalSoftFailures() int {
	total := 0
	for _, n := range c.soft {
		total += n
	}
	return total
}

func normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// KindTally is the attempted/succeeded pair for one kind.
type KindTally struct {
	Kind      event.Kind
	Attempted int
	Succeeded int
}

// Named is one named numeric value.
type Named struct {
	Name  string
	Value int
}

// Snapshot is a detached, ordered copy of a year's counters.
type Snapshot struct {
	Year         int
	Kinds        []KindTally // ascending kind tag, only kinds that were attempted
	SoftFailures []Named     // ascending name
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{Year: c.year}
	for _, k := range slices.Sorted(maps.Keys(c.attempted)) {
		s.Kinds = append(s.Kinds, KindTally{Kind: k, Attempted: c.attempted[k], Succeeded: c.succeeded[k]})
	}
	for _, name := range slices.Sorted(maps.Keys(c.soft)) {
		s.SoftFailures = append(s.SoftFailures, Named{Name: name, Value: c.soft[name]})
	}
	return s
}

// Totals accumulates soft failures across a whole run.
type Totals struct {
	soft map[string]int
}

// Add folds one year's snapshot into the run totals.
func (t *Totals) Add(s Snapshot) {
	if t.soft == nil {
		t.soft = make(map[string]int)
	}
	for _, n := range s.SoftFailures {
		t.soft[n.Name] += n.Value
	}
}

// Any reports whether at least one soft failure occurred.
func (t *Totals) Any() bool {
	for _, n := range t.soft {
		if n > 0 {
			return true
		}
	}
	return false
}

// SoftFailures returns the run totals in ascending name order.
func (t *Totals) SoftFailures() []Named {
	out := make([]Named, 0, len(t.soft))
	for _, name := range slices.Sorted(maps.Keys(t.soft)) {
		out = append(out, Named{Name: name, Value: t.soft[name]})
	}
	return out
}
