package population

import (
	"fmt"
	"maps"
	"slices"
)

// Store is the CRUD contract for the population registries.
//
// Getters return the stored pointer; callers mutate records in place and are
// responsible for keeping the relationship invariants (see relations.go for
// helpers that do so). Add with a zero ID assigns the next free id.
type Store interface {
	Household(id int) (*Household, bool)
	Person(id int) (*Person, bool)
	Dwelling(id int) (*Dwelling, bool)
	Job(id int) (*Job, bool)

	AddHousehold(h *Household) error
	AddPerson(p *Person) error
	AddDwelling(d *Dwelling) error
	AddJob(j *Job) error

	RemoveHousehold(id int) bool
	RemovePerson(id int) bool
	RemoveDwelling(id int) bool
	RemoveJob(id int) bool

	// Listings are in ascending id order.
	HouseholdIDs() []int
	PersonIDs() []int
	DwellingIDs() []int
	JobIDs() []int

	// ReserveJobIDs hands out n fresh job ids without creating jobs.
	// Used to make id assignment independent of parallel task scheduling.
	ReserveJobIDs(n int) []int
}

// Memory is the in-memory Store implementation.
// Not safe for concurrent use.
type Memory struct {
	households map[int]*Household
	persons    map[int]*Person
	dwellings  map[int]*Dwelling
	jobs       map[int]*Job

	nextHousehold int
	nextPerson    int
	nextDwelling  int
	nextJob       int
}

// NewMemory creates an empty registry. The first assigned id of every entity is 1.
func NewMemory() *Memory {
	return &Memory{
		households:    make(map[int]*Household),
		persons:       make(map[int]*Person),
		dwellings:     make(map[int]*Dwelling),
		jobs:          make(map[int]*Job),
		nextHousehold: 1,
		nextPerson:    1,
		nextDwelling:  1,
		nextJob:       1,
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Household(id int) (*Household, bool) {
	h, ok := m.households[id]
	return h, ok
}

func (m *Memory) Person(id int) (*Person, bool) {
	p, ok := m.persons[id]
	return p, ok
}

func (m *Memory) Dwelling(id int) (*Dwelling, bool) {
	d, ok := m.dwellings[id]
	return d, ok
}

func (m *Memory) Job(id int) (*Job, bool) {
	j, ok := m.jobs[id]
	return j, ok
}

// addRecord stores rec under *id, assigning the next free id when *id is zero.
func addRecord[T any](records map[int]*T, rec *T, id *int, next *int, entity string) error {
	if *id < 0 {
		return fmt.Errorf("add %s: negative id %d", entity, *id)
	}
	if *id == 0 {
		*id = *next
	}
	if _, exists := records[*id]; exists {
		return fmt.Errorf("add %s: id %d already exists", entity, *id)
	}
	if *id >= *next {
		*next = *id + 1
	}
	records[*id] = rec
	return nil
}

func (m *Memory) AddHousehold(h *Household) error {
	return addRecord(m.households, h, &h.ID, &m.nextHousehold, "household")
}

func (m *Memory) AddPerson(p *Person) error {
	return addRecord(m.persons, p, &p.ID, &m.nextPerson, "person")
}

func (m *Memory) AddDwelling(d *Dwelling) error {
	return addRecord(m.dwellings, d, &d.ID, &m.nextDwelling, "dwelling")
}

func (m *Memory) AddJob(j *Job) error {
	return addRecord(m.jobs, j, &j.ID, &m.nextJob, "job")
}

func (m *Memory) RemoveHousehold(id int) bool {
	if _, ok := m.households[id]; !ok {
		return false
	}
	delete(m.households, id)
	return true
}

func (m *Memory) RemovePerson(id int) bool {
	if _, ok := m.persons[id]; !ok {
		return false
	}
	delete(m.persons, id)
	return true
}

func (m *Memory) RemoveDwelling(id int) bool {
	if _, ok := m.dwellings[id]; !ok {
		return false
	}
	delete(m.dwellings, id)
	return true
}

func (m *Memory) RemoveJob(id int) bool {
	if _, ok := m.jobs[id]; !ok {
		return false
	}
	delete(m.jobs, id)
	return true
}

func (m *Memory) HouseholdIDs() []int { return slices.Sorted(maps.Keys(m.households)) }
func (m *Memory) PersonIDs() []int    { return slices.Sorted(maps.Keys(m.persons)) }
func (m *Memory) DwellingIDs() []int  { return slices.Sorted(maps.Keys(m.dwellings)) }
func (m *Memory) JobIDs() []int       { return slices.Sorted(maps.Keys(m.jobs)) }

func (m *Memory) ReserveJobIDs(n int) []int {
	if n <= 0 {
		return nil
	}
	ids := make([]int, n)
	for i := range ids {
		ids[i] = m.nextJob
		m.nextJob++
	}
	return ids
}

// Tally computes registry sizes and vacancy counts.
func Tally(s Store) Counts {
	var c Counts
	c.Households = len(s.HouseholdIDs())
	for _, id := range s.PersonIDs() {
		c.Persons++
		if p, _ := s.Person(id); p.Occupation == OccupationUnemployed {
			c.Unemployed++
		}
	}
	for _, id := range s.DwellingIDs() {
		c.Dwellings++
		if d, _ := s.Dwelling(id); d.Vacant() {
			c.VacantHomes++
		}
	}
	for _, id := range s.JobIDs() {
		c.Jobs++
		if j, _ := s.Job(id); j.Vacant() {
			c.VacantJobs++
		}
	}
	return c
}
