// Package population holds the synthetic population registries consumed by the
// simulation: households, persons, dwellings and jobs, keyed by integer id.
//
// The registries are plain CRUD stores with no transactional semantics. Callers
// must not assume isolation across calls within a simulated year; every event
// handler re-reads what it needs at dispatch time.
//
// Iteration order:
// Go map iteration is randomized, so every listing (HouseholdIDs, PersonIDs, ...)
// is returned in ascending id order. Models must iterate through these listings,
// never over the underlying maps, or reproducibility under a fixed seed is lost.
//
// Relationship invariants (checked by CheckConsistency):
//   - every person belongs to exactly one household, and the household's person
//     list contains that person
//   - a dwelling has at most one occupying household and the household points back
//   - a job has at most one worker and the worker points back
//   - a person is employed exactly when they hold a job
//
// Memory is not safe for concurrent use. The labor-market rebalancing step
// reaches the job registry only through executor.SerializedJobs.
package population
