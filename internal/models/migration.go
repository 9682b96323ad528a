package models

import (
	"context"
	"math"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/rng"
)

// Migration steers the population towards the year's target by duplicating
// sampled households (in-migration) or removing them (out-migration).
//
// The model owns two kinds and must be registered for both
// event.KindMigrationIn and event.KindMigrationOut.
type Migration struct {
	store  population.Store
	params params.Migration
	plan   MigrationPlan
}

// MigrationPlan is what PrepareYear decided for the current year.
type MigrationPlan struct {
	Year    int
	Current int // persons at the start of the year
	Target  int
	Planned int // persons carried by the proposed events
}

// NewMigration creates the migration model.
func NewMigration(s population.Store, p params.Migration) *Migration {
	return &Migration{store: s, params: p}
}

func (m *Migration) Name() string { return "migration" }

// Target returns the population target of a year given the current population.
func (m *Migration) Target(year, current int) int {
	if t, ok := m.params.Target(year); ok {
		return t
	}
	return int(math.Round(float64(current) * (1 + m.params.GrowthRate)))
}

// Plan returns the decision of the last PrepareYear.
func (m *Migration) Plan() MigrationPlan {
	return m.plan
}

// PrepareYear samples households until the persons they carry cover the gap
// between target and current population. Sampling stops at the first household
// that closes the gap, so the overshoot is smaller than one household.
func (m *Migration) PrepareYear(_ context.Context, yc *engine.YearContext) ([]event.Event, error) {
	current := len(m.store.PersonIDs())
	target := m.Target(yc.Year, current)
	m.plan = MigrationPlan{Year: yc.Year, Current: current, Target: target}

	var households []int
	for _, id := range m.store.HouseholdIDs() {
		if hh, _ := m.store.Household(id); hh.Size() > 0 {
			households = append(households, id)
		}
	}
	if len(households) == 0 || target == current {
		return nil, nil
	}

	var evs []event.Event
	if target > current {
		gap := target - current
		for m.plan.Planned < gap {
			id := households[yc.Rand.IntN(len(households))]
			snap, _ := population.Snapshot(m.store, id)
			m.plan.Planned += snap.Size()
			evs = append(evs, event.MigrationIn(snap))
		}
		return evs, nil
	}

	gap := current - target
	rng.Shuffle(yc.Rand, households)
	for _, id := range households {
		if m.plan.Planned >= gap {
			break
		}
		hh, _ := m.store.Household(id)
		m.plan.Planned += hh.Size()
		evs = append(evs, event.MigrationOut(id))
	}
	return evs, nil
}

func (m *Migration) HandleEvent(_ context.Context, yc *engine.YearContext, ev event.Event) (bool, error) {
	switch ev.Kind() {
	case event.KindMigrationIn:
		snap, ok := ev.Migrant()
		if !ok {
			return false, nil
		}
		vacant := population.VacantDwellings(m.store)
		if len(vacant) == 0 {
			yc.Counters.SoftFailure(diag.NoVacantDwellingForMigrant)
			return false, nil
		}
		dwelling := vacant[yc.Rand.IntN(len(vacant))]
		if _, err := population.Instantiate(m.store, snap, dwelling); err != nil {
			return false, err
		}
		return true, nil

	case event.KindMigrationOut:
		_, removed := population.RemoveHousehold(m.store, ev.HouseholdID())
		return removed, nil
	}
	return false, nil
}

func (m *Migration) FinishYear(_ context.Context, yc *engine.YearContext) error {
	yc.Logger.Debug("migration finished",
		"year", yc.Year,
		"target", m.plan.Target,
		"start", m.plan.Current,
		"end", len(m.store.PersonIDs()),
		"in", yc.Counters.Succeeded(event.KindMigrationIn),
		"out", yc.Counters.Succeeded(event.KindMigrationOut))
	return nil
}
