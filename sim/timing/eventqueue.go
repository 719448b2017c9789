package timing

import (
	"container/heap"
	"sync"
)

type entryState int

const (
	entryPending entryState = iota
	entryCancelled
	entryPopped
)

type queueEntry struct {
	evt   Event
	seq   uint64
	state entryState
}

// EventHandle identifies a scheduled event so that it can be cancelled. The
// zero value refers to no event.
type EventHandle struct {
	entry *queueEntry
}

// Valid reports whether the handle refers to a scheduled event.
func (h EventHandle) Valid() bool {
	return h.entry != nil
}

// Event returns the event the handle refers to.
func (h EventHandle) Event() Event {
	if h.entry == nil {
		return nil
	}

	return h.entry.evt
}

// Pending reports whether the event is still waiting to be executed.
func (h EventHandle) Pending() bool {
	return h.entry != nil && h.entry.state == entryPending
}

// EventQueue is a priority queue of events ordered by time, then primary
// before secondary, then insertion order. Cancelled events stay in the heap
// and are skipped when they reach the front.
type EventQueue struct {
	sync.Mutex

	events  eventHeap
	nextSeq uint64
	live    int
}

// NewEventQueue creates and returns a newly created EventQueue
func NewEventQueue() *EventQueue {
	q := new(EventQueue)
	q.events = make([]*queueEntry, 0)
	heap.Init(&q.events)

	return q
}

// Push adds an event to the event queue
func (q *EventQueue) Push(evt Event) EventHandle {
	q.Lock()
	defer q.Unlock()

	entry := &queueEntry{evt: evt, seq: q.nextSeq}
	q.nextSeq++
	q.live++
	heap.Push(&q.events, entry)

	return EventHandle{entry: entry}
}

// Cancel marks the event inert. It returns false if the event has already
// been executed or cancelled.
func (q *EventQueue) Cancel(h EventHandle) bool {
	q.Lock()
	defer q.Unlock()

	if h.entry == nil || h.entry.state != entryPending {
		return false
	}

	h.entry.state = entryCancelled
	q.live--

	return true
}

// Pop removes and returns the next live event, or nil if there is none.
func (q *EventQueue) Pop() Event {
	q.Lock()
	defer q.Unlock()

	entry := q.front()
	if entry == nil {
		return nil
	}

	heap.Pop(&q.events)
	entry.state = entryPopped
	q.live--

	return entry.evt
}

// Peek returns the next live event without removing it, or nil if there is
// none.
func (q *EventQueue) Peek() Event {
	q.Lock()
	defer q.Unlock()

	entry := q.front()
	if entry == nil {
		return nil
	}

	return entry.evt
}

// Len returns the number of live events in the queue.
func (q *EventQueue) Len() int {
	q.Lock()
	defer q.Unlock()

	return q.live
}

// front drops cancelled entries from the top of the heap and returns the
// first live one.
func (q *EventQueue) front() *queueEntry {
	for q.events.Len() > 0 {
		top := q.events[0]
		if top.state == entryPending {
			return top
		}

		heap.Pop(&q.events)
	}

	return nil
}

type eventHeap []*queueEntry

// Len returns the length of the event queue
func (h eventHeap) Len() int {
	return len(h)
}

// Less determines the order between two events. Less returns true if the i-th
// event happens before the j-th event.
func (h eventHeap) Less(i, j int) bool {
	ti, tj := h[i].evt.Time(), h[j].evt.Time()
	if ti != tj {
		return ti < tj
	}

	si, sj := h[i].evt.IsSecondary(), h[j].evt.IsSecondary()
	if si != sj {
		return !si
	}

	return h[i].seq < h[j].seq
}

// Swap changes the position of two events in the event queue
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push adds an event into the event queue
func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*queueEntry))
}

// Pop removes and returns the next event to happen
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]

	return entry
}
