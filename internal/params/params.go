// Package params loads the rule parameters of the exemplar models from a CUE
// document.
//
// The embedded schema (schema.cue) declares every field with its constraints
// and default. A user file is unified with the schema, so it only needs to list
// the values it changes; unknown fields and out-of-range values are rejected
// before anything is decoded.
package params

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource []byte

// Params is the decoded parameter document.
type Params struct {
	Birth         Birth         `json:"birth"`
	Death         Death         `json:"death"`
	Migration     Migration     `json:"migration"`
	Move          Move          `json:"move"`
	JobChange     JobChange     `json:"jobChange"`
	Aging         Aging         `json:"aging"`
	Accessibility Accessibility `json:"accessibility"`
	Travel        Travel        `json:"travel"`
	Zones         []Zone        `json:"zones"`
	LaborMarket   LaborMarket   `json:"laborMarket"`
}

// BirthRow holds the birth rates of one age.
type BirthRow struct {
	Age     int       `json:"age"`
	Per1000 []float64 `json:"per1000"` // by children already in the household: 0, 1, 2, 3+
}

// Birth parameterizes the birth model.
type Birth struct {
	MaleShare float64    `json:"maleShare"`
	Rows      []BirthRow `json:"rows"`
}

// DeathRow holds the death rates of one age band starting at From.
type DeathRow struct {
	From   int     `json:"from"`
	Male   float64 `json:"male"`
	Female float64 `json:"female"`
}

// Death parameterizes the death model.
type Death struct {
	Rows []DeathRow `json:"rows"`
}

// Migration parameterizes the population target of the migration model.
type Migration struct {
	Targets    map[string]int `json:"targets"`
	GrowthRate float64        `json:"growthRate"`
}

// Move parameterizes household relocation.
type Move struct {
	Probability float64 `json:"probability"`
	Candidates  int     `json:"candidates"`
}

// JobChange parameterizes job seeking.
type JobChange struct {
	SearchProbability float64 `json:"searchProbability"`
	MinAge            int     `json:"minAge"`
	MaxAge            int     `json:"maxAge"`
}

// Aging parameterizes the yearly aging step.
type Aging struct {
	AdultAge      int `json:"adultAge"`
	RetirementAge int `json:"retirementAge"`
}

// Accessibility holds the coefficients of A_i = sum_j jobs_j^alpha * exp(beta * tt_ij).
type Accessibility struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Travel parameterizes the synthetic travel-time matrix.
type Travel struct {
	KmPerMinute       float64 `json:"kmPerMinute"`
	IntrazonalMinutes float64 `json:"intrazonalMinutes"`
}

// Zone is a traffic analysis zone with planar coordinates in km.
type Zone struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Region int     `json:"region"`
}

// Forecast is the expected job count of one zone and job type.
type Forecast struct {
	Zone int    `json:"zone"`
	Type string `json:"type"`
	Jobs int    `json:"jobs"`
}

// LaborMarket holds job forecasts keyed by four-digit year.
type LaborMarket struct {
	Forecasts map[string][]Forecast `json:"forecasts"`
}

// Default returns the built-in parameters.
func Default() (*Params, error) {
	return Parse(nil, "")
}

// Load reads and validates a parameter file.
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	return Parse(data, path)
}

// Parse unifies src with the schema and decodes the result.
// A nil src yields the defaults.
func Parse(src []byte, filename string) (*Params, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile params schema: %w", err)
	}

	if src != nil {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return nil, &Error{File: filename, Err: err}
		}
		v = v.Unify(user)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &Error{File: filename, Err: err}
	}

	var p Params
	if err := v.Decode(&p); err != nil {
		return nil, &Error{File: filename, Err: err}
	}
	if err := p.check(); err != nil {
		return nil, &Error{File: filename, Err: err}
	}
	return &p, nil
}

// Error reports an invalid parameter document.
type Error struct {
	File string
	Err  error
}

func (e *Error) Error() string {
	name := e.File
	if name == "" {
		name = "default params"
	}
	return fmt.Sprintf("%s: %s", name, cueerrors.Details(e.Err, nil))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// check enforces the cross-field rules CUE constraints cannot express simply.
func (p *Params) check() error {
	if len(p.Birth.Rows) == 0 {
		return fmt.Errorf("birth.rows: empty table")
	}
	for i := 1; i < len(p.Birth.Rows); i++ {
		if p.Birth.Rows[i].Age <= p.Birth.Rows[i-1].Age {
			return fmt.Errorf("birth.rows: ages must be strictly ascending (row %d)", i)
		}
	}
	if len(p.Death.Rows) == 0 || p.Death.Rows[0].From != 0 {
		return fmt.Errorf("death.rows: first band must start at age 0")
	}
	for i := 1; i < len(p.Death.Rows); i++ {
		if p.Death.Rows[i].From <= p.Death.Rows[i-1].From {
			return fmt.Errorf("death.rows: bands must be strictly ascending (row %d)", i)
		}
	}
	if p.JobChange.MinAge > p.JobChange.MaxAge {
		return fmt.Errorf("jobChange: minAge %d above maxAge %d", p.JobChange.MinAge, p.JobChange.MaxAge)
	}
	if len(p.Zones) == 0 {
		return fmt.Errorf("zones: at least one zone required")
	}
	seen := make(map[int]bool, len(p.Zones))
	for _, z := range p.Zones {
		if seen[z.ID] {
			return fmt.Errorf("zones: duplicate id %d", z.ID)
		}
		seen[z.ID] = true
	}
	for year, fs := range p.LaborMarket.Forecasts {
		for _, f := range fs {
			if !seen[f.Zone] {
				return fmt.Errorf("laborMarket.forecasts[%s]: unknown zone %d", year, f.Zone)
			}
		}
	}
	return nil
}

// BirthRate returns the per-year birth probability of a woman of the given age
// with the given number of children in her household. ok is false outside the
// table's ages.
func (b Birth) BirthRate(age, children int) (rate float64, ok bool) {
	i, found := slices.BinarySearchFunc(b.Rows, age, func(r BirthRow, age int) int { return r.Age - age })
	if !found {
		return 0, false
	}
	col := min(max(children, 0), len(b.Rows[i].Per1000)-1)
	return b.Rows[i].Per1000[col] / 1000, true
}

// AgeRange returns the youngest and oldest age with a birth rate.
func (b Birth) AgeRange() (lo, hi int) {
	if len(b.Rows) == 0 {
		return 0, -1
	}
	return b.Rows[0].Age, b.Rows[len(b.Rows)-1].Age
}

// DeathRate returns the per-year death probability for age and sex.
func (d Death) DeathRate(age int, female bool) float64 {
	i := 0
	for j, r := range d.Rows {
		if r.From > age {
			break
		}
		i = j
	}
	r := d.Rows[i]
	if female {
		return r.Female / 1000
	}
	return r.Male / 1000
}

// Target returns the explicit population target of a year, if any.
func (m Migration) Target(year int) (int, bool) {
	t, ok := m.Targets[strconv.Itoa(year)]
	return t, ok
}

// ForecastsFor returns the job forecasts of a year (nil when none).
func (l LaborMarket) ForecastsFor(year int) []Forecast {
	return l.Forecasts[strconv.Itoa(year)]
}

// ZoneIDs lists zone ids in ascending order.
func (p *Params) ZoneIDs() []int {
	ids := make([]int, 0, len(p.Zones))
	for _, z := range p.Zones {
		ids = append(ids, z.ID)
	}
	slices.Sort(ids)
	return ids
}
