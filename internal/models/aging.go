package models

import (
	"context"

	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
)

// Aging advances every person by one year at the end of the year.
//
// Children reaching adult age become singles, looking for work unless they
// already hold a job. Toddlers reaching school age become students, and persons
// reaching retirement age leave the labor force, vacating their job.
type Aging struct {
	store  population.Store
	params params.Aging
}

// schoolAge is when toddlers become students.
const schoolAge = 6

// NewAging creates the aging model.
func NewAging(s population.Store, p params.Aging) *Aging {
	return &Aging{store: s, params: p}
}

func (a *Aging) Name() string { return "aging" }

func (a *Aging) FinishYear(context.Context, *engine.YearContext) error {
	for _, id := range a.store.PersonIDs() {
		p, _ := a.store.Person(id)
		p.Age++

		if p.Occupation == population.OccupationToddler && p.Age >= schoolAge {
			p.Occupation = population.OccupationStudent
		}
		if p.Role == population.RoleChild && p.Age >= a.params.AdultAge {
			p.Role = population.RoleSingle
			if p.JobID == 0 {
				p.Occupation = population.OccupationUnemployed
			}
		}
		if p.Age >= a.params.RetirementAge && p.Occupation != population.OccupationRetired {
			population.Unemploy(a.store, id)
			p.Occupation = population.OccupationRetired
		}
	}
	return nil
}
