package population

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInconsistent reports a broken relationship invariant.
var ErrInconsistent = errors.New("population inconsistent")

// AddMember creates p inside an existing household and links both sides.
func AddMember(s Store, householdID int, p *Person) error {
	hh, ok := s.Household(householdID)
	if !ok {
		return fmt.Errorf("add member: household %d not found", householdID)
	}
	p.HouseholdID = householdID
	if err := s.AddPerson(p); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	hh.PersonIDs = append(hh.PersonIDs, p.ID)
	return nil
}

// Unemploy detaches a person from their job. The job stays in the registry, vacant.
// Returns false when the person holds no job.
func Unemploy(s Store, personID int) bool {
	p, ok := s.Person(personID)
	if !ok || p.JobID == 0 {
		return false
	}
	if j, ok := s.Job(p.JobID); ok && j.WorkerID == personID {
		j.WorkerID = 0
	}
	p.JobID = 0
	p.Occupation = OccupationUnemployed
	return true
}

// AssignJob links a person to a vacant job.
func AssignJob(s Store, personID, jobID int) error {
	p, ok := s.Person(personID)
	if !ok {
		return fmt.Errorf("assign job: person %d not found", personID)
	}
	j, ok := s.Job(jobID)
	if !ok {
		return fmt.Errorf("assign job: job %d not found", jobID)
	}
	if !j.Vacant() {
		return fmt.Errorf("assign job: job %d already held by person %d", jobID, j.WorkerID)
	}
	if p.JobID != 0 {
		Unemploy(s, personID)
	}
	j.WorkerID = personID
	p.JobID = jobID
	p.Occupation = OccupationEmployed
	return nil
}

// RemoveJobAndFire deletes a job; an incumbent worker becomes unemployed.
// Returns the fired person id (0 when the job was vacant) and whether the job existed.
func RemoveJobAndFire(s Store, jobID int) (firedID int, removed bool) {
	j, ok := s.Job(jobID)
	if !ok {
		return 0, false
	}
	if j.WorkerID != 0 {
		if p, ok := s.Person(j.WorkerID); ok && p.JobID == jobID {
			p.JobID = 0
			p.Occupation = OccupationUnemployed
			firedID = p.ID
		}
	}
	s.RemoveJob(jobID)
	return firedID, true
}

// Occupy moves a household into a vacant dwelling, releasing its previous one.
func Occupy(s Store, householdID, dwellingID int) error {
	hh, ok := s.Household(householdID)
	if !ok {
		return fmt.Errorf("occupy: household %d not found", householdID)
	}
	d, ok := s.Dwelling(dwellingID)
	if !ok {
		return fmt.Errorf("occupy: dwelling %d not found", dwellingID)
	}
	if !d.Vacant() {
		return fmt.Errorf("occupy: dwelling %d already occupied by household %d", dwellingID, d.HouseholdID)
	}
	vacate(s, hh)
	d.HouseholdID = householdID
	hh.DwellingID = dwellingID
	return nil
}

func vacate(s Store, hh *Household) {
	if hh.DwellingID == 0 {
		return
	}
	if d, ok := s.Dwelling(hh.DwellingID); ok && d.HouseholdID == hh.ID {
		d.HouseholdID = 0
	}
	hh.DwellingID = 0
}

// RemovePerson deletes a person, releasing their job and their household slot.
// A household left without members is dissolved and its dwelling vacated.
// Returns whether the person existed and whether the household was dissolved.
func RemovePerson(s Store, personID int) (removed, dissolved bool) {
	p, ok := s.Person(personID)
	if !ok {
		return false, false
	}
	Unemploy(s, personID)
	s.RemovePerson(personID)
	hh, ok := s.Household(p.HouseholdID)
	if !ok {
		return true, false
	}
	hh.PersonIDs = slices.DeleteFunc(hh.PersonIDs, func(id int) bool { return id == personID })
	if hh.Size() == 0 {
		vacate(s, hh)
		s.RemoveHousehold(hh.ID)
		return true, true
	}
	return true, false
}

// RemoveHousehold deletes a household with all members, their jobs and its dwelling link.
// Returns the number of persons removed and whether the household existed.
func RemoveHousehold(s Store, householdID int) (persons int, removed bool) {
	hh, ok := s.Household(householdID)
	if !ok {
		return 0, false
	}
	for _, pid := range slices.Clone(hh.PersonIDs) {
		Unemploy(s, pid)
		if s.RemovePerson(pid) {
			persons++
		}
	}
	hh.PersonIDs = nil
	vacate(s, hh)
	s.RemoveHousehold(householdID)
	return persons, true
}

// Snapshot copies the composition of a household.
func Snapshot(s Store, householdID int) (HouseholdSnapshot, bool) {
	hh, ok := s.Household(householdID)
	if !ok {
		return HouseholdSnapshot{}, false
	}
	snap := HouseholdSnapshot{
		Members:  make([]MemberSnapshot, 0, hh.Size()),
		Vehicles: hh.Vehicles,
	}
	for _, pid := range hh.PersonIDs {
		p, ok := s.Person(pid)
		if !ok {
			continue
		}
		occ := p.Occupation
		if occ == OccupationEmployed {
			// Jobs are not duplicated; copies enter the labor market searching.
			occ = OccupationUnemployed
		}
		snap.Members = append(snap.Members, MemberSnapshot{
			Age:        p.Age,
			Gender:     p.Gender,
			Occupation: occ,
			Role:       p.Role,
			Income:     p.Income,
		})
	}
	return snap, true
}

// Instantiate creates a new household and its persons from a snapshot,
// placing it into the given vacant dwelling. Returns the new household id.
func Instantiate(s Store, snap HouseholdSnapshot, dwellingID int) (int, error) {
	hh := &Household{Vehicles: snap.Vehicles}
	if err := s.AddHousehold(hh); err != nil {
		return 0, fmt.Errorf("instantiate: %w", err)
	}
	for _, m := range snap.Members {
		p := &Person{
			Age:        m.Age,
			Gender:     m.Gender,
			Occupation: m.Occupation,
			Role:       m.Role,
			Income:     m.Income,
		}
		if err := AddMember(s, hh.ID, p); err != nil {
			return 0, fmt.Errorf("instantiate: %w", err)
		}
	}
	if err := Occupy(s, hh.ID, dwellingID); err != nil {
		return 0, fmt.Errorf("instantiate: %w", err)
	}
	return hh.ID, nil
}

// CountChildren returns the number of household members with the child role.
func CountChildren(s Store, hh *Household) int {
	n := 0
	for _, pid := range hh.PersonIDs {
		if p, ok := s.Person(pid); ok && p.Role == RoleChild {
			n++
		}
	}
	return n
}

// HouseholdIncome sums member incomes.
func HouseholdIncome(s Store, hh *Household) int {
	total := 0
	for _, pid := range hh.PersonIDs {
		if p, ok := s.Person(pid); ok {
			total += p.Income
		}
	}
	return total
}

// VacantDwellings lists vacant dwelling ids in ascending order.
func VacantDwellings(s Store) []int {
	var out []int
	for _, id := range s.DwellingIDs() {
		if d, _ := s.Dwelling(id); d.Vacant() {
			out = append(out, id)
		}
	}
	return out
}

// VacantJobs lists vacant job ids in ascending order.
func VacantJobs(s Store) []int {
	var out []int
	for _, id := range s.JobIDs() {
		if j, _ := s.Job(id); j.Vacant() {
			out = append(out, id)
		}
	}
	return out
}

// CheckConsistency verifies the relationship invariants of the whole registry.
// The returned error wraps ErrInconsistent and names the first violation found.
func CheckConsistency(s Store) error {
	seen := make(map[int]int) // person -> household
	for _, hid := range s.HouseholdIDs() {
		hh, _ := s.Household(hid)
		for _, pid := range hh.PersonIDs {
			if other, dup := seen[pid]; dup {
				return fmt.Errorf("%w: person %d listed by households %d and %d", ErrInconsistent, pid, other, hid)
			}
			seen[pid] = hid
			p, ok := s.Person(pid)
			if !ok {
				return fmt.Errorf("%w: household %d lists missing person %d", ErrInconsistent, hid, pid)
			}
			if p.HouseholdID != hid {
				return fmt.Errorf("%w: person %d points to household %d, listed by %d", ErrInconsistent, pid, p.HouseholdID, hid)
			}
		}
		if hh.DwellingID != 0 {
			d, ok := s.Dwelling(hh.DwellingID)
			if !ok || d.HouseholdID != hid {
				return fmt.Errorf("%w: household %d and dwelling %d disagree", ErrInconsistent, hid, hh.DwellingID)
			}
		}
	}
	for _, pid := range s.PersonIDs() {
		if _, ok := seen[pid]; !ok {
			return fmt.Errorf("%w: person %d belongs to no household", ErrInconsistent, pid)
		}
		p, _ := s.Person(pid)
		if (p.JobID != 0) != (p.Occupation == OccupationEmployed) {
			return fmt.Errorf("%w: person %d is %s with job %d", ErrInconsistent, pid, p.Occupation, p.JobID)
		}
		if p.JobID != 0 {
			j, ok := s.Job(p.JobID)
			if !ok || j.WorkerID != pid {
				return fmt.Errorf("%w: person %d and job %d disagree", ErrInconsistent, pid, p.JobID)
			}
		}
	}
	for _, did := range s.DwellingIDs() {
		d, _ := s.Dwelling(did)
		if d.HouseholdID == 0 {
			continue
		}
		hh, ok := s.Household(d.HouseholdID)
		if !ok || hh.DwellingID != did {
			return fmt.Errorf("%w: dwelling %d and household %d disagree", ErrInconsistent, did, d.HouseholdID)
		}
	}
	for _, jid := range s.JobIDs() {
		j, _ := s.Job(jid)
		if j.WorkerID == 0 {
			continue
		}
		p, ok := s.Person(j.WorkerID)
		if !ok || p.JobID != jid {
			return fmt.Errorf("%w: job %d and person %d disagree", ErrInconsistent, jid, j.WorkerID)
		}
	}
	return nil
}
