package models

import (
	"context"

	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
)

// Death removes persons by age- and sex-specific rates. The job of the deceased
// is vacated; a household left empty is dissolved and its dwelling vacated.
type Death struct {
	store  population.Store
	params params.Death
}

// NewDeath creates the death model.
func NewDeath(s population.Store, p params.Death) *Death {
	return &Death{store: s, params: p}
}

func (d *Death) Name() string { return "death" }

func (d *Death) PrepareYear(_ context.Context, yc *engine.YearContext) ([]event.Event, error) {
	var evs []event.Event
	for _, id := range d.store.PersonIDs() {
		p, _ := d.store.Person(id)
		if yc.Rand.Float64() < d.params.DeathRate(p.Age, p.Gender == population.GenderFemale) {
			evs = append(evs, event.Death(id))
		}
	}
	return evs, nil
}

func (d *Death) HandleEvent(_ context.Context, _ *engine.YearContext, ev event.Event) (bool, error) {
	removed, _ := population.RemovePerson(d.store, ev.PersonID())
	return removed, nil
}

func (d *Death) FinishYear(context.Context, *engine.YearContext) error { return nil }
