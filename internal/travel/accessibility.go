package travel

import (
	"fmt"
	"math"
	"sync"
)

// Accessibility holds one value per zone on a 0-100 scale.
//
// Values are recomputed once a year by the accessibility annual model and read
// by the relocation model during dispatch. Reads and the yearly swap are
// guarded so a reader never sees a half-written table.
type Accessibility struct {
	mu     sync.RWMutex
	values map[int]float64
}

// NewAccessibility creates an empty table; every zone reads as 0 until the first Update.
func NewAccessibility() *Accessibility {
	return &Accessibility{values: make(map[int]float64)}
}

// Of returns the accessibility of zone.
func (a *Accessibility) Of(zone int) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.values[zone]
}

// Snapshot copies the current table.
func (a *Accessibility) Snapshot() map[int]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[int]float64, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Update recomputes every zone as A_i = sum_j jobs_j^alpha * exp(beta * tt_ij)
// and rescales the result so the best zone scores 100.
func (a *Accessibility) Update(p Provider, jobsByZone map[int]int, alpha, beta float64) error {
	zones := p.Zones()
	raw := make(map[int]float64, len(zones))
	peak := 0.0
	for _, i := range zones {
		sum := 0.0
		for _, j := range zones {
			jobs := jobsByZone[j]
			if jobs == 0 {
				continue
			}
			tt, err := p.TravelTime(i, j)
			if err != nil {
				return fmt.Errorf("accessibility of zone %d: %w", i, err)
			}
			sum += math.Pow(float64(jobs), alpha) * math.Exp(beta*tt)
		}
		raw[i] = sum
		peak = math.Max(peak, sum)
	}
	if peak > 0 {
		for z, v := range raw {
			raw[z] = v / peak * 100
		}
	}

	a.mu.Lock()
	a.values = raw
	a.mu.Unlock()
	return nil
}
