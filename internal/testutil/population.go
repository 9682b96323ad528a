// Package testutil provides deterministic population fixtures and recorders
// shared by package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/rng"
)

// Builder assembles a small population record by record.
// Every method fails the test on error, so call sites stay one line each.
type Builder struct {
	t     testing.TB
	store *population.Memory
}

// NewBuilder starts an empty population.
func NewBuilder(t testing.TB) *Builder {
	t.Helper()
	return &Builder{t: t, store: population.NewMemory()}
}

// Dwelling adds a vacant dwelling in zone and returns its id.
func (b *Builder) Dwelling(zone int) int {
	b.t.Helper()
	d := &population.Dwelling{Zone: zone}
	require.NoError(b.t, b.store.AddDwelling(d))
	return d.ID
}

// Dwellings adds n vacant dwellings in zone.
func (b *Builder) Dwellings(zone, n int) []int {
	b.t.Helper()
	ids := make([]int, n)
	for i := range ids {
		ids[i] = b.Dwelling(zone)
	}
	return ids
}

// Job adds a vacant job and returns its id.
func (b *Builder) Job(zone int, jobType string) int {
	b.t.Helper()
	j := &population.Job{Zone: zone, Type: jobType}
	require.NoError(b.t, b.store.AddJob(j))
	return j.ID
}

// Jobs adds n vacant jobs of one type in zone.
func (b *Builder) Jobs(zone int, jobType string, n int) []int {
	b.t.Helper()
	ids := make([]int, n)
	for i := range ids {
		ids[i] = b.Job(zone, jobType)
	}
	return ids
}

// Household adds a household living in dwellingID (0 = none) with the given
// members. Members with a JobID are assigned to that job. Returns the household id.
func (b *Builder) Household(dwellingID int, members ...population.Person) int {
	b.t.Helper()
	hh := &population.Household{}
	require.NoError(b.t, b.store.AddHousehold(hh))
	for _, m := range members {
		jobID := m.JobID
		p := m
		p.JobID = 0
		require.NoError(b.t, population.AddMember(b.store, hh.ID, &p))
		if jobID != 0 {
			require.NoError(b.t, population.AssignJob(b.store, p.ID, jobID))
		}
	}
	if dwellingID != 0 {
		require.NoError(b.t, population.Occupy(b.store, hh.ID, dwellingID))
	}
	return hh.ID
}

// Store checks the relationship invariants and returns the population.
func (b *Builder) Store() *population.Memory {
	b.t.Helper()
	require.NoError(b.t, population.CheckConsistency(b.store))
	return b.store
}

// Adult returns an unemployed single adult.
func Adult(age int, g population.Gender) population.Person {
	return population.Person{Age: age, Gender: g, Occupation: population.OccupationUnemployed, Role: population.RoleSingle}
}

// Worker returns an adult holding jobID.
func Worker(age int, g population.Gender, jobID int) population.Person {
	p := Adult(age, g)
	p.Occupation = population.OccupationEmployed
	p.JobID = jobID
	return p
}

// Child returns a child of the given age.
func Child(age int) population.Person {
	occ := population.OccupationStudent
	if age < 6 {
		occ = population.OccupationToddler
	}
	return population.Person{Age: age, Gender: population.GenderMale, Occupation: occ, Role: population.RoleChild}
}

// SyntheticConfig sizes a generated population.
type SyntheticConfig struct {
	Seed       uint64
	Households int
	Zones      int
	JobTypes   []string
	// VacancyRate is the share of extra dwellings and jobs beyond what the
	// households need, e.g. 0.1 for 10%.
	VacancyRate float64
}

// Synthetic generates a reproducible random population: households of one to
// five members spread across zones, with roughly half of the working-age
// adults employed.
func Synthetic(t testing.TB, cfg SyntheticConfig) *population.Memory {
	t.Helper()
	if cfg.Zones <= 0 {
		cfg.Zones = 1
	}
	if len(cfg.JobTypes) == 0 {
		cfg.JobTypes = []string{"retl", "serv", "manu"}
	}
	r := rng.New(cfg.Seed)
	b := NewBuilder(t)

	extra := int(float64(cfg.Households) * cfg.VacancyRate)
	var dwellings []int
	for i := 0; i < cfg.Households+extra; i++ {
		dwellings = append(dwellings, b.Dwelling(1+i%cfg.Zones))
	}
	var jobs []int
	for i := 0; i < cfg.Households+extra; i++ {
		jobs = append(jobs, b.Job(1+r.IntN(cfg.Zones), cfg.JobTypes[i%len(cfg.JobTypes)]))
	}

	nextJob := 0
	for h := 0; h < cfg.Households; h++ {
		size := 1 + r.IntN(5)
		members := make([]population.Person, 0, size)
		for i := 0; i < size; i++ {
			var p population.Person
			switch {
			case i >= 2:
				p = Child(r.IntN(18))
			default:
				g := population.GenderMale
				if i == 0 || r.IntN(2) == 0 {
					g = population.GenderFemale
				}
				p = Adult(18+r.IntN(70), g)
				if size > 1 {
					p.Role = population.RoleMarried
				}
				if p.Age >= 65 {
					p.Occupation = population.OccupationRetired
				} else if r.IntN(2) == 0 && nextJob < len(jobs) {
					p.Occupation = population.OccupationEmployed
					p.JobID = jobs[nextJob]
					p.Income = 20000 + r.IntN(40000)
					nextJob++
				}
			}
			members = append(members, p)
		}
		b.Household(dwellings[h], members...)
	}
	return b.Store()
}
