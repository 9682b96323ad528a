package models

import (
	"context"

	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
)

// Birth adds newborns to the households of women of childbearing age.
type Birth struct {
	store  population.Store
	params params.Birth
}

// NewBirth creates the birth model.
func NewBirth(s population.Store, p params.Birth) *Birth {
	return &Birth{store: s, params: p}
}

func (b *Birth) Name() string { return "birth" }

// Probability returns the birth probability of a person this year. ok is false
// for persons who are not eligible: men, women outside the table ages and
// persons missing from the registry.
func (b *Birth) Probability(personID int) (p float64, ok bool) {
	person, found := b.store.Person(personID)
	if !found || person.Gender != population.GenderFemale {
		return 0, false
	}
	hh, found := b.store.Household(person.HouseholdID)
	if !found {
		return 0, false
	}
	return b.params.BirthRate(person.Age, population.CountChildren(b.store, hh))
}

func (b *Birth) PrepareYear(_ context.Context, yc *engine.YearContext) ([]event.Event, error) {
	var evs []event.Event
	for _, id := range b.store.PersonIDs() {
		p, ok := b.Probability(id)
		if !ok || p <= 0 {
			continue
		}
		if yc.Rand.Float64() < p {
			evs = append(evs, event.Birth(id))
		}
	}
	return evs, nil
}

func (b *Birth) HandleEvent(_ context.Context, yc *engine.YearContext, ev event.Event) (bool, error) {
	mother, ok := b.store.Person(ev.PersonID())
	if !ok {
		return false, nil
	}
	if _, ok := b.store.Household(mother.HouseholdID); !ok {
		return false, nil
	}

	gender := population.GenderFemale
	if yc.Rand.Float64() < b.params.MaleShare {
		gender = population.GenderMale
	}
	baby := &population.Person{
		Age:        0,
		Gender:     gender,
		Occupation: population.OccupationToddler,
		Role:       population.RoleChild,
	}
	if err := population.AddMember(b.store, mother.HouseholdID, baby); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Birth) FinishYear(context.Context, *engine.YearContext) error { return nil }
