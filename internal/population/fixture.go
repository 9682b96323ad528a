package population

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML shape of an initial synthetic population.
//
//	dwellings:
//	  - {id: 1, zone: 1}
//	jobs:
//	  - {id: 1, zone: 2, type: retl}
//	households:
//	  - id: 1
//	    dwelling: 1
//	    vehicles: 1
//	    persons:
//	      - {id: 1, age: 34, gender: female, occupation: employed, role: married, job: 1, income: 31000}
type Fixture struct {
	Dwellings  []DwellingFixture  `yaml:"dwellings"`
	Jobs       []JobFixture       `yaml:"jobs"`
	Households []HouseholdFixture `yaml:"households"`
}

// DwellingFixture describes one dwelling.
type DwellingFixture struct {
	ID   int `yaml:"id"`
	Zone int `yaml:"zone"`
}

// JobFixture describes one job. Workers are linked from the person side.
type JobFixture struct {
	ID   int    `yaml:"id"`
	Zone int    `yaml:"zone"`
	Type string `yaml:"type"`
}

// HouseholdFixture describes one household with its members.
type HouseholdFixture struct {
	ID       int             `yaml:"id"`
	Dwelling int             `yaml:"dwelling,omitempty"`
	Vehicles int             `yaml:"vehicles,omitempty"`
	Persons  []PersonFixture `yaml:"persons"`
}

// PersonFixture describes one person.
type PersonFixture struct {
	ID         int        `yaml:"id"`
	Age        int        `yaml:"age"`
	Gender     Gender     `yaml:"gender"`
	Occupation Occupation `yaml:"occupation"`
	Role       Role       `yaml:"role"`
	Job        int        `yaml:"job,omitempty"`
	Income     int        `yaml:"income,omitempty"`
}

// LoadYAMLFile reads a population fixture from disk.
func LoadYAMLFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read population %s: %w", path, err)
	}
	m, err := LoadYAML(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load population %s: %w", path, err)
	}
	return m, nil
}

// LoadYAML decodes a fixture and builds a consistent in-memory registry.
// Unknown fields are rejected so typos in fixtures fail loudly.
func LoadYAML(r io.Reader) (*Memory, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var fx Fixture
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode population: %w", err)
	}
	return fx.Build()
}

// Build materializes the fixture into a new registry and verifies consistency.
func (fx Fixture) Build() (*Memory, error) {
	m := NewMemory()
	for _, d := range fx.Dwellings {
		if err := m.AddDwelling(&Dwelling{ID: d.ID, Zone: d.Zone}); err != nil {
			return nil, err
		}
	}
	for _, j := range fx.Jobs {
		if err := m.AddJob(&Job{ID: j.ID, Zone: j.Zone, Type: j.Type}); err != nil {
			return nil, err
		}
	}
	for _, h := range fx.Households {
		hh := &Household{ID: h.ID, Vehicles: h.Vehicles}
		if err := m.AddHousehold(hh); err != nil {
			return nil, err
		}
		for _, pf := range h.Persons {
			p := &Person{
				ID:         pf.ID,
				Age:        pf.Age,
				Gender:     pf.Gender,
				Occupation: pf.Occupation,
				Role:       pf.Role,
				Income:     pf.Income,
			}
			if err := AddMember(m, hh.ID, p); err != nil {
				return nil, err
			}
			if pf.Job != 0 {
				if err := AssignJob(m, p.ID, pf.Job); err != nil {
					return nil, fmt.Errorf("person %d: %w", p.ID, err)
				}
			}
		}
		if h.Dwelling != 0 {
			if err := Occupy(m, hh.ID, h.Dwelling); err != nil {
				return nil, fmt.Errorf("household %d: %w", hh.ID, err)
			}
		}
	}
	if err := CheckConsistency(m); err != nil {
		return nil, err
	}
	return m, nil
}
