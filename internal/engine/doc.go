// Package engine implements the annual micro-simulation scheduler.
//
// The scheduler owns the yearly loop that evolves a synthetic population by
// applying independently authored rule modules. Each simulated year runs four
// phases:
//
//  1. Prepare: every distinct event model, in registration order, proposes the
//     events it wants to happen this year. Models read the population store but
//     do not mutate it here.
//  2. Shuffle: the combined list is permuted once with the single shared seeded
//     generator, so no event type systematically wins the competition for
//     scarce dwellings and jobs.
//  3. Dispatch: events are handled one at a time by the model registered for
//     their kind. Each event is handled at most once; a handler returning false
//     is a soft failure and is never retried.
//  4. Finish: annual models run (registration order), then event models; the
//     year's counters and summaries are flushed to the results sink and the
//     event list is cleared.
//
// REPRODUCIBILITY:
//
// A run is determined by its master seed and the registration order of its
// models. Registration order fixes the order of candidate lists before the
// shuffle and the order in which models draw from the shared generator, so it
// is part of the configuration, not an implementation detail.
//
// CONCURRENCY:
//
// The loop is single-threaded. The only parallel step lives inside the
// labor-market annual model, which forks zone tasks and joins them before
// returning to the scheduler.
package engine
