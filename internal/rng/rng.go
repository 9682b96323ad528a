// Package rng provides the seeded generators and shuffles shared by the
// scheduler, the rule models and the zone-task executor.
//
// Every stochastic decision in a run draws from generators created here, so a
// run is fully determined by its master seed (plus model registration order).
package rng

import "math/rand/v2"

// New returns a PCG generator for the given seed.
// The second PCG word is derived from the seed so a single integer identifies the stream.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Shuffle permutes xs in place with one Fisher-Yates pass, walking from the
// back and swapping each slot with a uniformly chosen slot at or before it.
func Shuffle[T any](r *rand.Rand, xs []T) {
	for i := len(xs) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// Seeds draws n child seeds from the master generator, in order.
// Callers draw before dispatching parallel work so that the seed of task i
// never depends on goroutine scheduling.
func Seeds(master *rand.Rand, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = master.Uint64()
	}
	return out
}

// Sample picks up to k distinct elements of xs uniformly, preserving none of
// the input order. xs is not modified.
func Sample[T any](r *rand.Rand, xs []T, k int) []T {
	if k >= len(xs) {
		k = len(xs)
	}
	cp := make([]T, len(xs))
	copy(cp, xs)
	// Partial Fisher-Yates: only the first k slots are needed.
	for i := 0; i < k; i++ {
		j := i + r.IntN(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	return cp[:k]
}
