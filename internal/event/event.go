// Package event defines the candidate state changes exchanged between rule
// modules and the scheduler.
//
// An Event is a tagged value: a Kind plus the minimal payload its handler needs.
// Events are speculative. Creating one does not imply a state change will occur;
// the owning model decides at dispatch time whether its precondition still holds.
//
// Events are immutable once constructed. All fields are unexported and the only
// reference-typed payload (the in-migration household snapshot) is deep-copied
// on the way in and on the way out.
package event

import (
	"fmt"
	"strings"

	"github.com/roach88/microsim/internal/population"
)

// Kind tags the variant of an Event. The scheduler's handler table is keyed by Kind.
type Kind uint8

const (
	// KindUnknown is the zero value and never registered.
	KindUnknown Kind = iota
	KindBirth
	KindDeath
	KindMigrationIn
	KindMigrationOut
	KindMove
	KindJobChange
)

var kindNames = [...]string{
	KindUnknown:      "unknown",
	KindBirth:        "birth",
	KindDeath:        "death",
	KindMigrationIn:  "migration_in",
	KindMigrationOut: "migration_out",
	KindMove:         "move",
	KindJobChange:    "job_change",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds returns every known kind except KindUnknown, in tag order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := KindBirth; int(k) < len(kindNames); k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind resolves a kind from its String form.
func ParseKind(s string) (Kind, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds() {
		if k.String() == want {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown event kind %q", s)
}

// Event is one candidate state change for the current simulated year.
type Event struct {
	kind        Kind
	personID    int
	householdID int
	migrant     *population.HouseholdSnapshot
}

// Birth proposes that the given woman gives birth this year.
func Birth(motherID int) Event {
	return Event{kind: KindBirth, personID: motherID}
}

// Death proposes that the given person dies this year.
func Death(personID int) Event {
	return Event{kind: KindDeath, personID: personID}
}

// MigrationIn proposes that a household with the given composition moves into the region.
func MigrationIn(snapshot population.HouseholdSnapshot) Event {
	snap := snapshot.Clone()
	return Event{kind: KindMigrationIn, migrant: &snap}
}

// MigrationOut proposes that the given household leaves the region.
func MigrationOut(householdID int) Event {
	return Event{kind: KindMigrationOut, householdID: householdID}
}

// Move proposes that the given household relocates to another dwelling.
func Move(householdID int) Event {
	return Event{kind: KindMove, householdID: householdID}
}

// JobChange proposes that the given person searches for a job.
func JobChange(personID int) Event {
	return Event{kind: KindJobChange, personID: personID}
}

// Kind returns the variant tag.
func (e Event) Kind() Kind { return e.kind }

// PersonID returns the subject person, 0 for household-level kinds.
func (e Event) PersonID() int { return e.personID }

// HouseholdID returns the subject household, 0 for person-level kinds and in-migration.
func (e Event) HouseholdID() int { return e.householdID }

// Migrant returns a copy of the in-migrating household composition.
// ok is false for every kind except KindMigrationIn.
func (e Event) Migrant() (snapshot population.HouseholdSnapshot, ok bool) {
	if e.migrant == nil {
		return population.HouseholdSnapshot{}, false
	}
	return e.migrant.Clone(), true
}

// String renders a stable description used in logs and dispatch traces.
func (e Event) String() string {
	switch {
	case e.migrant != nil:
		return fmt.Sprintf("%s(size=%d)", e.kind, e.migrant.Size())
	case e.householdID != 0:
		return fmt.Sprintf("%s(household=%d)", e.kind, e.householdID)
	default:
		return fmt.Sprintf("%s(person=%d)", e.kind, e.personID)
	}
}
