package eventq

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripflow/pkg/logging"
)

// ErrEventNotFound is returned when an event id is not in the pending backlog.
var ErrEventNotFound = errors.New("event not found")

// DefaultCap is the per-trip backlog bound used when none is configured.
const DefaultCap = 64

type entry struct {
	ev  Event
	seq uint64
}

// Queue holds per-trip pending event backlogs. Time is always supplied by the
// caller (the engine passes simulated time), so expiry follows the trip's
// clock, not the wall.
type Queue struct {
	mu    sync.Mutex
	trips map[string][]*entry
	cap   int
	seq   uint64
}

// NewQueue creates a queue with the given per-trip backlog cap.
func NewQueue(cap int) *Queue {
	if cap < 1 {
		cap = DefaultCap
	}
	return &Queue{
		trips: make(map[string][]*entry),
		cap:   cap,
	}
}

// Enqueue adds an event to the trip's backlog and returns the stored copy
// with id, timestamps and status assigned. A pending event with the same kind
// and slot id is coalesced: the older duplicate is replaced, so repeated
// trigger checks cannot grow the backlog.
func (q *Queue) Enqueue(tripID string, ev Event, now time.Time) Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Priority == "" {
		ev.Priority = PriorityNormal
	}
	if ev.Source == "" {
		ev.Source = SourceManual
	}
	ev.CreatedAt = now
	ev.Status = StatusPending

	pending := q.pruneLocked(tripID, now)

	// Coalesce duplicates.
	for i, e := range pending {
		if e.ev.Kind == ev.Kind && e.ev.SlotID == ev.SlotID {
			logging.TraceDefault("eventq: coalescing duplicate", "trip", tripID, "kind", ev.Kind, "slot", ev.SlotID)
			pending = append(pending[:i], pending[i+1:]...)
			break
		}
	}

	// Enforce the cap by dropping the oldest entry of the lowest priority.
	if len(pending) >= q.cap {
		drop := 0
		for i, e := range pending {
			if e.ev.Priority.rank() < pending[drop].ev.Priority.rank() ||
				(e.ev.Priority.rank() == pending[drop].ev.Priority.rank() && e.seq < pending[drop].seq) {
				drop = i
			}
		}
		logging.TraceDefault("eventq: backlog full, dropping", "trip", tripID, "event", pending[drop].ev.ID)
		pending = append(pending[:drop], pending[drop+1:]...)
	}

	q.seq++
	pending = append(pending, &entry{ev: ev, seq: q.seq})
	q.trips[tripID] = pending
	return ev
}

// Poll returns up to limit pending events in delivery order, marking them
// delivered and removing them from the backlog. At-most-once: a polled event
// never reappears.
func (q *Queue) Poll(tripID string, limit int, now time.Time) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := q.orderedLocked(tripID, now)
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	out := make([]Event, 0, len(ordered))
	for _, e := range ordered {
		e.ev.Status = StatusDelivered
		out = append(out, e.ev)
		q.removeLocked(tripID, e.ev.ID)
	}
	return out
}

// Peek returns all pending events in delivery order without consuming them.
func (q *Queue) Peek(tripID string, now time.Time) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := q.orderedLocked(tripID, now)
	out := make([]Event, 0, len(ordered))
	for _, e := range ordered {
		out = append(out, e.ev)
	}
	return out
}

// Dismiss removes a pending event, marking it dismissed.
func (q *Queue) Dismiss(tripID, eventID string) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.findLocked(tripID, eventID)
	if e == nil {
		return Event{}, ErrEventNotFound
	}
	e.ev.Status = StatusDismissed
	ev := e.ev
	q.removeLocked(tripID, eventID)
	return ev, nil
}

// MarkActioned removes a pending event, marking it actioned and retaining the
// note for audit.
func (q *Queue) MarkActioned(tripID, eventID, note string) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := q.findLocked(tripID, eventID)
	if e == nil {
		return Event{}, ErrEventNotFound
	}
	e.ev.Status = StatusActioned
	e.ev.Note = note
	ev := e.ev
	q.removeLocked(tripID, eventID)
	return ev, nil
}

// Len returns the number of pending (possibly expired) events for a trip.
func (q *Queue) Len(tripID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.trips[tripID])
}

// Drop discards the trip's entire backlog. Used by session teardown.
func (q *Queue) Drop(tripID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.trips, tripID)
}

// pruneLocked removes expired events and returns the remaining backlog.
func (q *Queue) pruneLocked(tripID string, now time.Time) []*entry {
	pending := q.trips[tripID]
	kept := pending[:0]
	for _, e := range pending {
		if e.ev.Expired(now) {
			logging.TraceDefault("eventq: pruning expired", "trip", tripID, "event", e.ev.ID)
			continue
		}
		kept = append(kept, e)
	}
	q.trips[tripID] = kept
	return kept
}

// orderedLocked prunes and returns entries in delivery order: priority rank
// descending, enqueue sequence ascending.
func (q *Queue) orderedLocked(tripID string, now time.Time) []*entry {
	pending := q.pruneLocked(tripID, now)
	ordered := make([]*entry, len(pending))
	copy(ordered, pending)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].ev.Priority.rank(), ordered[j].ev.Priority.rank()
		if ri != rj {
			return ri > rj
		}
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}

func (q *Queue) findLocked(tripID, eventID string) *entry {
	for _, e := range q.trips[tripID] {
		if e.ev.ID == eventID {
			return e
		}
	}
	return nil
}

func (q *Queue) removeLocked(tripID, eventID string) {
	pending := q.trips[tripID]
	for i, e := range pending {
		if e.ev.ID == eventID {
			q.trips[tripID] = append(pending[:i], pending[i+1:]...)
			return
		}
	}
}
