package models

import (
	"fmt"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/executor"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/travel"
)

// Set is the standard configuration of all exemplar models over one store.
type Set struct {
	Birth         *Birth
	Death         *Death
	Migration     *Migration
	Move          *Move
	JobChange     *JobChange
	Aging         *Aging
	LaborMarket   *LaborMarket
	Accessibility *Accessibility

	store population.Store
}

// NewSet wires every model to the store, parameters and travel provider.
func NewSet(s population.Store, p *params.Params, tp travel.Provider, pool *executor.Pool) *Set {
	table := travel.NewAccessibility()
	return &Set{
		Birth:         NewBirth(s, p.Birth),
		Death:         NewDeath(s, p.Death),
		Migration:     NewMigration(s, p.Migration),
		Move:          NewMove(s, p.Move, table),
		JobChange:     NewJobChange(s, p.JobChange, tp),
		Aging:         NewAging(s, p.Aging),
		LaborMarket:   NewLaborMarket(s, p.LaborMarket, pool),
		Accessibility: NewAccessibility(s, tp, table, p.Accessibility),
		store:         s,
	}
}

// Register installs the models on the scheduler.
//
// The order below is part of the reproducibility contract: it fixes the order
// in which models draw from the shared generator and append candidates. Changing
// it changes every run.
func (set *Set) Register(s *engine.Scheduler) error {
	events := []struct {
		kind  event.Kind
		model engine.EventModel
	}{
		{event.KindBirth, set.Birth},
		{event.KindDeath, set.Death},
		{event.KindMigrationIn, set.Migration},
		{event.KindMigrationOut, set.Migration},
		{event.KindMove, set.Move},
		{event.KindJobChange, set.JobChange},
	}
	for _, e := range events {
		if err := s.RegisterEventModel(e.kind, e.model); err != nil {
			return fmt.Errorf("register %s: %w", e.model.Name(), err)
		}
	}
	for _, m := range []engine.AnnualModel{set.Aging, set.LaborMarket, set.Accessibility} {
		if err := s.RegisterAnnualModel(m); err != nil {
			return fmt.Errorf("register %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Summaries returns the year summaries of this configuration: population
// totals followed by labor-market activity.
func (set *Set) Summaries() []engine.SummaryFunc {
	return []engine.SummaryFunc{PopulationSummary(set.store), set.LaborMarket.Summary}
}

// PopulationSummary reports registry sizes and vacancies at year end.
func PopulationSummary(s population.Store) engine.SummaryFunc {
	return func() []diag.Named {
		c := population.Tally(s)
		return []diag.Named{
			{Name: "households", Value: c.Households},
			{Name: "persons", Value: c.Persons},
			{Name: "dwellings", Value: c.Dwellings},
			{Name: "vacant_dwellings", Value: c.VacantHomes},
			{Name: "jobs", Value: c.Jobs},
			{Name: "vacant_jobs", Value: c.VacantJobs},
			{Name: "unemployed", Value: c.Unemployed},
		}
	}
}
