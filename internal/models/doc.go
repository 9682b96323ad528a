// Package models holds the exemplar rule modules plugged into the scheduler.
//
// Event models (birth, death, migration, move, job change) propose events in
// PrepareYear and apply them in HandleEvent. Annual models (aging, labor-market
// rebalancing, accessibility) run once in the finish phase.
//
// Every handler re-checks its preconditions at dispatch time: earlier events of
// the same year may have removed the subject or taken the last vacancy. A stale
// event is answered with false and no error. A failed search for a vacancy is a
// soft failure and is also counted by name in the year counters.
package models
