package models

import (
	"context"

	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/travel"
)

// Accessibility recomputes zone accessibility from the job inventory once a
// year, and once before the first year so relocation has values to rank by.
type Accessibility struct {
	store  population.Store
	travel travel.Provider
	table  *travel.Accessibility
	params params.Accessibility
}

// NewAccessibility creates the model writing into table.
func NewAccessibility(s population.Store, tp travel.Provider, table *travel.Accessibility, p params.Accessibility) *Accessibility {
	return &Accessibility{store: s, travel: tp, table: table, params: p}
}

func (a *Accessibility) Name() string { return "accessibility" }

func (a *Accessibility) Setup(context.Context, *engine.YearContext) error {
	return a.update()
}

func (a *Accessibility) FinishYear(context.Context, *engine.YearContext) error {
	return a.update()
}

func (a *Accessibility) update() error {
	jobs := make(map[int]int)
	for _, id := range a.store.JobIDs() {
		j, _ := a.store.Job(id)
		jobs[j.Zone]++
	}
	return a.table.Update(a.travel, jobs, a.params.Alpha, a.params.Beta)
}
