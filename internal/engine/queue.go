package engine

import (
	"fmt"
	"math/rand/v2"

	"github.com/roach88/microsim/internal/event"
	"github.com/roach88/microsim/internal/rng"
)

// pending is one proposed event and its position in the lifecycle.
type pending struct {
	ev    event.Event
	state event.State
}

// yearQueue is the list of events proposed for the current year.
//
// Unlike a FIFO, the whole list is known before dispatch starts: models append
// during prepare, the list is shuffled exactly once, then walked front to back.
// Nothing is ever re-enqueued, which is what makes handling at-most-once.
//
// Not safe for concurrent use; owned by the scheduler loop.
type yearQueue struct {
	items    []pending
	shuffled bool
}

func newYearQueue() *yearQueue {
	return &yearQueue{items: make([]pending, 0, 256)}
}

// add queues the events proposed by one model.
func (q *yearQueue) add(evs []event.Event) {
	for _, ev := range evs {
		q.items = append(q.items, pending{ev: ev, state: event.StateQueued})
	}
}

// shuffle permutes the whole list with one Fisher-Yates pass. A second pass in
// the same year would consume extra draws from the shared generator, so it fails.
func (q *yearQueue) shuffle(r *rand.Rand) error {
	if q.shuffled {
		return fmt.Errorf("year list of %d events shuffled twice", len(q.items))
	}
	rng.Shuffle(r, q.items)
	for i := range q.items {
		q.items[i].state = event.StateShuffled
	}
	q.shuffled = true
	return nil
}

// Len returns the number of events proposed this year.
func (q *yearQueue) Len() int {
	return len(q.items)
}

// begin moves item i to DISPATCHED. A second dispatch of the same item is a
// programming error inside the scheduler.
func (q *yearQueue) begin(i int) (event.Event, error) {
	it := &q.items[i]
	if it.state != event.StateShuffled {
		return event.Event{}, fmt.Errorf("event %s at position %d dispatched from state %s", it.ev, i, it.state)
	}
	it.state = event.StateDispatched
	return it.ev, nil
}

// settle records the handler outcome of item i.
func (q *yearQueue) settle(i int, applied bool) event.State {
	q.items[i].state = event.Outcome(applied)
	return q.items[i].state
}

// reset drops every event; events never persist across years.
func (q *yearQueue) reset() {
	clear(q.items)
	q.items = q.items[:0]
	q.shuffled = false
}
