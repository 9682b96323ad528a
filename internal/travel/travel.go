// Package travel provides zone-to-zone travel times and the zone accessibility
// values the location-choice models rank by.
package travel

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/microsim/internal/params"
)

// Provider is the read-only travel-time contract consumed by the models.
type Provider interface {
	// Zones lists zone ids in ascending order.
	Zones() []int
	// TravelTime returns minutes from origin to destination.
	TravelTime(origin, destination int) (float64, error)
	// Region returns the region a zone belongs to.
	Region(zone int) (int, error)
	// RegionTravelTime returns the shortest time from origin to any zone of region.
	RegionTravelTime(origin, region int) (float64, error)
}

// Matrix is a dense travel-time matrix derived from planar zone coordinates:
// straight-line distance over a constant speed, with a fixed intrazonal time.
type Matrix struct {
	zones   []int
	index   map[int]int
	regions []int
	minutes [][]float64
}

var _ Provider = (*Matrix)(nil)

// NewMatrix builds the matrix for the given zones.
func NewMatrix(zones []params.Zone, tp params.Travel) (*Matrix, error) {
	if tp.KmPerMinute <= 0 {
		return nil, fmt.Errorf("travel matrix: speed must be positive, got %v", tp.KmPerMinute)
	}
	sorted := slices.Clone(zones)
	slices.SortFunc(sorted, func(a, b params.Zone) int { return a.ID - b.ID })

	m := &Matrix{
		zones:   make([]int, len(sorted)),
		index:   make(map[int]int, len(sorted)),
		regions: make([]int, len(sorted)),
		minutes: make([][]float64, len(sorted)),
	}
	for i, z := range sorted {
		if _, dup := m.index[z.ID]; dup {
			return nil, fmt.Errorf("travel matrix: duplicate zone %d", z.ID)
		}
		m.zones[i] = z.ID
		m.index[z.ID] = i
		m.regions[i] = z.Region
	}
	for i, a := range sorted {
		m.minutes[i] = make([]float64, len(sorted))
		for j, b := range sorted {
			if i == j {
				m.minutes[i][j] = tp.IntrazonalMinutes
				continue
			}
			m.minutes[i][j] = math.Hypot(a.X-b.X, a.Y-b.Y) / tp.KmPerMinute
		}
	}
	return m, nil
}

func (m *Matrix) Zones() []int {
	return slices.Clone(m.zones)
}

func (m *Matrix) lookup(zone int) (int, error) {
	i, ok := m.index[zone]
	if !ok {
		return 0, fmt.Errorf("unknown zone %d", zone)
	}
	return i, nil
}

func (m *Matrix) TravelTime(origin, destination int) (float64, error) {
	i, err := m.lookup(origin)
	if err != nil {
		return 0, err
	}
	j, err := m.lookup(destination)
	if err != nil {
		return 0, err
	}
	return m.minutes[i][j], nil
}

func (m *Matrix) Region(zone int) (int, error) {
	i, err := m.lookup(zone)
	if err != nil {
		return 0, err
	}
	return m.regions[i], nil
}

func (m *Matrix) RegionTravelTime(origin, region int) (float64, error) {
	i, err := m.lookup(origin)
	if err != nil {
		return 0, err
	}
	best := math.Inf(1)
	for j, r := range m.regions {
		if r == region && m.minutes[i][j] < best {
			best = m.minutes[i][j]
		}
	}
	if math.IsInf(best, 1) {
		return 0, fmt.Errorf("unknown region %d", region)
	}
	return best, nil
}
