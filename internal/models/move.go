package models

import (
	"context"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/rng"
)

// ZoneScorer ranks zones for location choice. *travel.Accessibility implements it.
type ZoneScorer interface {
	Of(zone int) float64
}

// Move relocates housed households. A moving household samples a few vacant
// dwellings and takes the one in the zone with the highest score.
type Move struct {
	store  population.Store
	params params.Move
	scorer ZoneScorer
}

// NewMove creates the relocation model.
func NewMove(s population.Store, p params.Move, scorer ZoneScorer) *Move {
	return &Move{store: s, params: p, scorer: scorer}
}

func (m *Move) Name() string { return "move" }

func (m *Move) PrepareYear(_ context.Context, yc *engine.YearContext) ([]event.Event, error) {
	var evs []event.Event
	for _, id := range m.store.HouseholdIDs() {
		hh, _ := m.store.Household(id)
		if hh.DwellingID == 0 {
			continue
		}
		if yc.Rand.Float64() < m.params.Probability {
			evs = append(evs, event.Move(id))
		}
	}
	return evs, nil
}

func (m *Move) HandleEvent(_ context.Context, yc *engine.YearContext, ev event.Event) (bool, error) {
	hh, ok := m.store.Household(ev.HouseholdID())
	if !ok || hh.DwellingID == 0 {
		return false, nil
	}
	vacant := population.VacantDwellings(m.store)
	if len(vacant) == 0 {
		yc.Counters.SoftFailure(diag.NoVacantDwellingForMove)
		return false, nil
	}

	best, bestScore := 0, -1.0
	for _, id := range rng.Sample(yc.Rand, vacant, m.params.Candidates) {
		d, _ := m.store.Dwelling(id)
		score := m.scorer.Of(d.Zone)
		if score > bestScore || (score == bestScore && id < best) {
			best, bestScore = id, score
		}
	}
	if err := population.Occupy(m.store, hh.ID, best); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Move) FinishYear(context.Context, *engine.YearContext) error { return nil }
