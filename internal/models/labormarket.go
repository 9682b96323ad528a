package models

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/executor"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/rng"
)

// JobKey identifies one segment of the job market.
type JobKey struct {
	Zone int
	Type string
}

func (k JobKey) String() string {
	return fmt.Sprintf("zone=%d/%s", k.Zone, k.Type)
}

func compareKeys(a, b JobKey) int {
	if c := cmp.Compare(a.Zone, b.Zone); c != 0 {
		return c
	}
	return cmp.Compare(a.Type, b.Type)
}

// Rebalance reports what happened to one zone and job type.
type Rebalance struct {
	Key             JobKey
	Forecast        int
	Inventory       int // jobs before rebalancing
	Created         int
	VacantRemoved   int
	OccupiedRemoved int
	Fired           []int // person ids made unemployed
}

// LaborMarket aligns the job inventory with exogenous forecasts at year end.
//
// For every zone and job type with a forecast, missing jobs are created vacant
// and surplus jobs are removed, vacant ones first. Removing an occupied job
// fires its worker in the same serialized operation. Keys are processed as
// independent tasks on the executor pool; the call returns once all are done.
type LaborMarket struct {
	store     population.Store
	forecasts params.LaborMarket
	pool      *executor.Pool
	last      []Rebalance
}

// NewLaborMarket creates the rebalancing model.
func NewLaborMarket(s population.Store, f params.LaborMarket, pool *executor.Pool) *LaborMarket {
	return &LaborMarket{store: s, forecasts: f, pool: pool}
}

func (l *LaborMarket) Name() string { return "labor_market" }

// LastReport returns the per-key reports of the last FinishYear, in key order.
func (l *LaborMarket) LastReport() []Rebalance {
	return l.last
}

type rebalanceTask struct {
	key      JobKey
	forecast int
	vacant   []int // ascending
	occupied []int // ascending
	newIDs   []int // reserved ids for jobs to create
}

func (t rebalanceTask) String() string {
	return t.key.String()
}

func (l *LaborMarket) FinishYear(ctx context.Context, yc *engine.YearContext) error {
	l.last = nil
	forecasts := l.forecasts.ForecastsFor(yc.Year)
	if len(forecasts) == 0 {
		return nil
	}

	tasks := l.plan(forecasts)
	jobs := executor.NewSerializedJobs(l.store)
	reports, err := executor.Run(ctx, l.pool, yc.Rand, tasks, func(_ context.Context, r *rand.Rand, t rebalanceTask) (Rebalance, error) {
		return t.apply(r, jobs)
	})
	if err != nil {
		return fmt.Errorf("labor market rebalancing: %w", err)
	}
	l.last = reports

	created, removed, fired := 0, 0, 0
	for _, r := range reports {
		created += r.Created
		removed += r.VacantRemoved + r.OccupiedRemoved
		fired += len(r.Fired)
	}
	yc.Logger.Debug("labor market rebalanced",
		"year", yc.Year,
		"keys", len(reports),
		"created", created,
		"removed", removed,
		"fired", fired)
	return nil
}

// plan builds one task per forecast key, in key order. Job ids for creations
// are reserved here, before any task runs.
func (l *LaborMarket) plan(forecasts []params.Forecast) []rebalanceTask {
	want := make(map[JobKey]int)
	for _, f := range forecasts {
		want[JobKey{Zone: f.Zone, Type: f.Type}] += f.Jobs
	}

	inventory := make(map[JobKey]*rebalanceTask)
	for _, id := range l.store.JobIDs() {
		j, _ := l.store.Job(id)
		k := JobKey{Zone: j.Zone, Type: j.Type}
		if _, ok := want[k]; !ok {
			continue
		}
		t := inventory[k]
		if t == nil {
			t = &rebalanceTask{key: k}
			inventory[k] = t
		}
		if j.Vacant() {
			t.vacant = append(t.vacant, id)
		} else {
			t.occupied = append(t.occupied, id)
		}
	}

	keys := slices.SortedFunc(maps.Keys(want), compareKeys)
	tasks := make([]rebalanceTask, 0, len(keys))
	for _, k := range keys {
		t := rebalanceTask{key: k}
		if inv := inventory[k]; inv != nil {
			t = *inv
		}
		t.forecast = want[k]
		if missing := t.forecast - len(t.vacant) - len(t.occupied); missing > 0 {
			t.newIDs = l.store.ReserveJobIDs(missing)
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// apply runs on a pool worker. Only jobs goes through shared state.
func (t rebalanceTask) apply(r *rand.Rand, jobs *executor.SerializedJobs) (Rebalance, error) {
	rep := Rebalance{Key: t.key, Forecast: t.forecast, Inventory: len(t.vacant) + len(t.occupied)}

	for _, id := range t.newIDs {
		if err := jobs.AddJob(&population.Job{ID: id, Zone: t.key.Zone, Type: t.key.Type}); err != nil {
			return rep, err
		}
		rep.Created++
	}

	surplus := rep.Inventory - t.forecast
	if surplus <= 0 {
		return rep, nil
	}
	vacant := slices.Clone(t.vacant)
	rng.Shuffle(r, vacant)
	for _, id := range vacant[:min(surplus, len(vacant))] {
		if _, ok := jobs.RemoveJob(id); ok {
			rep.VacantRemoved++
		}
	}
	surplus -= rep.VacantRemoved
	if surplus <= 0 {
		return rep, nil
	}

	occupied := slices.Clone(t.occupied)
	rng.Shuffle(r, occupied)
	for _, id := range occupied[:min(surplus, len(occupied))] {
		fired, ok := jobs.RemoveJob(id)
		if !ok {
			continue
		}
		rep.OccupiedRemoved++
		if fired != 0 {
			rep.Fired = append(rep.Fired, fired)
		}
	}
	return rep, nil
}

// Summary reports the year's job creation and removal as named values.
func (l *LaborMarket) Summary() []diag.Named {
	var created, removed, fired int
	for _, r := range l.last {
		created += r.Created
		removed += r.VacantRemoved + r.OccupiedRemoved
		fired += len(r.Fired)
	}
	return []diag.Named{
		{Name: "jobs_created", Value: created},
		{Name: "jobs_removed", Value: removed},
		{Name: "workers_fired", Value: fired},
	}
}
