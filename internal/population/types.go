package population

import (
	"fmt"
	"slices"
	"strings"
)

// Gender of a person.
type Gender uint8

const (
	GenderMale Gender = iota + 1
	GenderFemale
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g Gender) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Gender) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "male", "m":
		*g = GenderMale
	case "female", "f":
		*g = GenderFemale
	default:
		return fmt.Errorf("unknown gender %q", string(b))
	}
	return nil
}

// Occupation is the labor-market status of a person.
type Occupation uint8

const (
	OccupationToddler Occupation = iota + 1
	OccupationStudent
	OccupationEmployed
	OccupationUnemployed
	OccupationRetired
)

var occupationNames = map[Occupation]string{
	OccupationToddler:    "toddler",
	OccupationStudent:    "student",
	OccupationEmployed:   "employed",
	OccupationUnemployed: "unemployed",
	OccupationRetired:    "retired",
}

func (o Occupation) String() string {
	if name, ok := occupationNames[o]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (o Occupation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Occupation) UnmarshalText(b []byte) error {
	want := strings.ToLower(string(b))
	for occ, name := range occupationNames {
		if name == want {
			*o = occ
			return nil
		}
	}
	return fmt.Errorf("unknown occupation %q", string(b))
}

// Role is a person's position within the household.
type Role uint8

const (
	RoleSingle Role = iota + 1
	RoleMarried
	RoleChild
)

func (r Role) String() string {
	switch r {
	case RoleSingle:
		return "single"
	case RoleMarried:
		return "married"
	case RoleChild:
		return "child"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "single":
		*r = RoleSingle
	case "married":
		*r = RoleMarried
	case "child":
		*r = RoleChild
	default:
		return fmt.Errorf("unknown role %q", string(b))
	}
	return nil
}

// Person is one member of the synthetic population.
// HouseholdID is a back-reference; JobID is 0 when the person holds no job.
type Person struct {
	ID          int
	Age         int
	Gender      Gender
	Occupation  Occupation
	Role        Role
	HouseholdID int
	JobID       int
	Income      int
}

// Household groups persons sharing one dwelling.
// DwellingID is 0 while the household has no dwelling.
type Household struct {
	ID         int
	PersonIDs  []int
	DwellingID int
	Vehicles   int
}

// Size returns the number of household members.
func (h *Household) Size() int {
	return len(h.PersonIDs)
}

// Has reports whether the person is a member.
func (h *Household) Has(personID int) bool {
	return slices.Contains(h.PersonIDs, personID)
}

// Dwelling is a housing unit located in a zone.
// HouseholdID is 0 while vacant.
type Dwelling struct {
	ID          int
	Zone        int
	HouseholdID int
}

// Vacant reports whether no household occupies the dwelling.
func (d *Dwelling) Vacant() bool {
	return d.HouseholdID == 0
}

// Job is a work place of one job type located in a zone.
// WorkerID is 0 while vacant.
type Job struct {
	ID       int
	Zone     int
	Type     string
	WorkerID int
}

// Vacant reports whether no worker holds the job.
func (j *Job) Vacant() bool {
	return j.WorkerID == 0
}

// MemberSnapshot is the copyable part of a person used to duplicate a household.
type MemberSnapshot struct {
	Age        int
	Gender     Gender
	Occupation Occupation
	Role       Role
	Income     int
}

// HouseholdSnapshot is a detached copy of a household's composition.
// Snapshots carry no ids: instantiating one creates new persons and a new household.
type HouseholdSnapshot struct {
	Members  []MemberSnapshot
	Vehicles int
}

// Size returns the number of persons the snapshot will create.
func (s HouseholdSnapshot) Size() int {
	return len(s.Members)
}

// Clone returns a deep copy so the member slice is never shared.
func (s HouseholdSnapshot) Clone() HouseholdSnapshot {
	return HouseholdSnapshot{
		Members:  slices.Clone(s.Members),
		Vehicles: s.Vehicles,
	}
}

// Counts summarizes registry sizes.
type Counts struct {
	Households  int `json:"households"`
	Persons     int `json:"persons"`
	Dwellings   int `json:"dwellings"`
	Jobs        int `json:"jobs"`
	VacantJobs  int `json:"vacant_jobs"`
	VacantHomes int `json:"vacant_dwellings"`
	Unemployed  int `json:"unemployed"`
}
