package models

import (
	"context"
	"math"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/travel"
)

// JobChange lets unemployed working-age persons take the vacant job closest to home.
type JobChange struct {
	store  population.Store
	params params.JobChange
	travel travel.Provider
}

// NewJobChange creates the job seeking model.
func NewJobChange(s population.Store, p params.JobChange, tp travel.Provider) *JobChange {
	return &JobChange{store: s, params: p, travel: tp}
}

func (j *JobChange) Name() string { return "job_change" }

func (j *JobChange) seeking(p *population.Person) bool {
	return p.Occupation == population.OccupationUnemployed &&
		p.Age >= j.params.MinAge && p.Age <= j.params.MaxAge
}

func (j *JobChange) PrepareYear(_ context.Context, yc *engine.YearContext) ([]event.Event, error) {
	var evs []event.Event
	for _, id := range j.store.PersonIDs() {
		p, _ := j.store.Person(id)
		if !j.seeking(p) {
			continue
		}
		if yc.Rand.Float64() < j.params.SearchProbability {
			evs = append(evs, event.JobChange(id))
		}
	}
	return evs, nil
}

func (j *JobChange) HandleEvent(_ context.Context, yc *engine.YearContext, ev event.Event) (bool, error) {
	p, ok := j.store.Person(ev.PersonID())
	if !ok || !j.seeking(p) {
		return false, nil
	}
	vacant := population.VacantJobs(j.store)
	if len(vacant) == 0 {
		yc.Counters.SoftFailure(diag.NoVacantJob)
		return false, nil
	}

	home := j.homeZone(p)
	best, bestTime := 0, math.Inf(1)
	for _, id := range vacant {
		job, _ := j.store.Job(id)
		tt := 0.0
		if home != 0 {
			var err error
			if tt, err = j.travel.TravelTime(home, job.Zone); err != nil {
				return false, err
			}
		}
		// vacant is ascending, so strict < keeps the lowest id on ties
		if tt < bestTime {
			best, bestTime = id, tt
		}
	}
	if err := population.AssignJob(j.store, p.ID, best); err != nil {
		return false, err
	}
	return true, nil
}

// homeZone returns the zone of the person's dwelling, 0 when unhoused.
func (j *JobChange) homeZone(p *population.Person) int {
	hh, ok := j.store.Household(p.HouseholdID)
	if !ok || hh.DwellingID == 0 {
		return 0
	}
	d, ok := j.store.Dwelling(hh.DwellingID)
	if !ok {
		return 0
	}
	return d.Zone
}

func (j *JobChange) FinishYear(context.Context, *engine.YearContext) error { return nil }
