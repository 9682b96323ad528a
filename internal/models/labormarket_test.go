package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/executor"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/testutil"
)

// zoneWithJobs builds one zone with vacant and occupied jobs of type x.
func zoneWithJobs(t *testing.T, vacant, occupied int) (*population.Memory, []int) {
	t.Helper()
	b := testutil.NewBuilder(t)
	b.Jobs(1, "x", vacant)
	var workers []int
	for _, jid := range b.Jobs(1, "x", occupied) {
		hh := b.Household(0, testutil.Worker(40, population.GenderMale, jid))
		workers = append(workers, hh)
	}
	s := b.Store()
	persons := make([]int, 0, len(workers))
	for _, hh := range workers {
		h, _ := s.Household(hh)
		persons = append(persons, h.PersonIDs[0])
	}
	return s, persons
}

func forecast(year string, fs ...params.Forecast) params.LaborMarket {
	return params.LaborMarket{Forecasts: map[string][]params.Forecast{year: fs}}
}

func TestLaborMarket_ScenarioA_VacantOnly(t *testing.T) {
	s, _ := zoneWithJobs(t, 10, 5)
	m := NewLaborMarket(s, forecast("2012", params.Forecast{Zone: 1, Type: "x", Jobs: 12}), executor.New(4))

	require.NoError(t, m.FinishYear(context.Background(), yearContext(2012, 1)))

	require.Len(t, m.LastReport(), 1)
	r := m.LastReport()[0]
	assert.Equal(t, JobKey{Zone: 1, Type: "x"}, r.Key)
	assert.Equal(t, 15, r.Inventory)
	assert.Equal(t, 3, r.VacantRemoved)
	assert.Zero(t, r.OccupiedRemoved)
	assert.Empty(t, r.Fired)

	c := population.Tally(s)
	assert.Equal(t, 12, c.Jobs)
	assert.Equal(t, 7, c.VacantJobs)
	assert.Zero(t, c.Unemployed)
	require.NoError(t, population.CheckConsistency(s))
}

func TestLaborMarket_ScenarioB_FiresWorkers(t *testing.T) {
	s, workers := zoneWithJobs(t, 2, 5)
	m := NewLaborMarket(s, forecast("2012", params.Forecast{Zone: 1, Type: "x", Jobs: 3}), executor.New(4))

	require.NoError(t, m.FinishYear(context.Background(), yearContext(2012, 1)))

	r := m.LastReport()[0]
	assert.Equal(t, 2, r.VacantRemoved)
	assert.Equal(t, 2, r.OccupiedRemoved)
	require.Len(t, r.Fired, 2)

	for _, pid := range r.Fired {
		assert.Contains(t, workers, pid)
		p, _ := s.Person(pid)
		assert.Equal(t, population.OccupationUnemployed, p.Occupation)
		assert.Zero(t, p.JobID)
	}
	c := population.Tally(s)
	assert.Equal(t, 3, c.Jobs)
	assert.Zero(t, c.VacantJobs)
	assert.Equal(t, 2, c.Unemployed)
	require.NoError(t, population.CheckConsistency(s))
}

func TestLaborMarket_CreatesJobsWithReservedIDs(t *testing.T) {
	s, _ := zoneWithJobs(t, 1, 1)
	before := s.JobIDs()
	m := NewLaborMarket(s, forecast("2012",
		params.Forecast{Zone: 2, Type: "serv", Jobs: 2},
		params.Forecast{Zone: 1, Type: "x", Jobs: 4},
	), executor.New(8))

	require.NoError(t, m.FinishYear(context.Background(), yearContext(2012, 1)))

	reports := m.LastReport()
	require.Len(t, reports, 2)
	assert.Equal(t, JobKey{Zone: 1, Type: "x"}, reports[0].Key, "reports in key order")
	assert.Equal(t, 2, reports[0].Created)
	assert.Equal(t, 2, reports[1].Created)

	after := s.JobIDs()
	require.Len(t, after, 6)
	assert.Equal(t, before, after[:2])
	// zone 1 reserved first, then zone 2, regardless of which task ran first.
	j, _ := s.Job(after[2])
	assert.Equal(t, 1, j.Zone)
	j, _ = s.Job(after[5])
	assert.Equal(t, 2, j.Zone)

	assert.Equal(t, []diag.Named{
		{Name: "jobs_created", Value: 4},
		{Name: "jobs_removed", Value: 0},
		{Name: "workers_fired", Value: 0},
	}, m.Summary())
}

func TestLaborMarket_NoForecastNoChange(t *testing.T) {
	s, _ := zoneWithJobs(t, 3, 3)
	m := NewLaborMarket(s, forecast("2013", params.Forecast{Zone: 1, Type: "x", Jobs: 0}), executor.New(2))

	require.NoError(t, m.FinishYear(context.Background(), yearContext(2012, 1)))
	assert.Nil(t, m.LastReport())
	assert.Len(t, s.JobIDs(), 6)
}

func TestLaborMarket_DeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) []Rebalance {
		b := testutil.NewBuilder(t)
		var fs []params.Forecast
		for zone := 1; zone <= 6; zone++ {
			b.Jobs(zone, "x", 3)
			for _, jid := range b.Jobs(zone, "x", 6) {
				b.Household(0, testutil.Worker(30, population.GenderFemale, jid))
			}
			fs = append(fs, params.Forecast{Zone: zone, Type: "x", Jobs: zone})
		}
		s := b.Store()
		m := NewLaborMarket(s, forecast("2012", fs...), executor.New(workers))
		require.NoError(t, m.FinishYear(context.Background(), yearContext(2012, 99)))
		require.NoError(t, population.CheckConsistency(s))
		return m.LastReport()
	}

	serial := run(1)
	assert.Equal(t, serial, run(6))
	assert.Equal(t, serial, run(3))
	assert.Equal(t, 6-1, serial[0].OccupiedRemoved, "zone 1 keeps one of nine jobs")
}
