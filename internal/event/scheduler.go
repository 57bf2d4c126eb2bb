package event

import (
	"container/heap"

	"github.com/jstevens-sim/pcissd/internal/interfaces"
)

// Scheduler is a priority-ordered queue of Events, advanced by repeated
// calls to Process as the owning System's internal clock ticks forward.
//
// Ordering is a min-heap over (ExpireTime, seq): O(log n) insertion, and the
// monotonically increasing seq field gives a stable "ties fire in insertion
// order" guarantee.
type Scheduler struct {
	heap    eventHeap
	nextSeq uint64

	logger interfaces.Logger
}

// NewScheduler returns an empty scheduler. It logs nothing until SetLogger
// is called.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// SetLogger installs the logger Add traces scheduled events to, mirroring
// how transport.Layer holds a narrow collaborator handle rather than an
// owning back-pointer. A nil logger (the zero value) disables tracing.
func (s *Scheduler) SetLogger(l interfaces.Logger) {
	s.logger = l
}

// Len reports the number of events not yet dispatched, used by the
// orchestrator to feed Observer.ObserveQueueDepth.
func (s *Scheduler) Len() int {
	return len(s.heap)
}

// Add inserts e, preserving FIFO order among events with equal ExpireTime.
func (s *Scheduler) Add(e Event) {
	e.seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.heap, e)
	if s.logger != nil {
		s.logger.Debug("event scheduled", "type", e.Type, "expire_time", e.ExpireTime, "addr", e.Trans.Addr)
	}
}

// Retry reschedules e after delta additional ticks. It exists for
// collaborators that may refuse a submission and need it retried later; no
// collaborator in this module's current scope exercises it, but dropping it
// would leave System unable to honor one that does.
//
// A retried event gets a new seq, so it sorts after anything already
// scheduled for the same tick — it is treated as a fresh arrival rather
// than one that remembers its original queue position.
func (s *Scheduler) Retry(e Event, delta uint64) {
	e.ExpireTime += delta
	s.Add(e)
}

// Process dispatches every event with ExpireTime <= now, in order, calling
// dispatch for each. dispatch must be the orchestrator's handler; it may
// itself call Add, and any such newly added event is visible to this same
// Process call if its ExpireTime is also <= now.
func (s *Scheduler) Process(now uint64, dispatch func(Event)) {
	for len(s.heap) > 0 && s.heap[0].ExpireTime <= now {
		e := heap.Pop(&s.heap).(Event)
		dispatch(e)
	}
}

// eventHeap implements container/heap.Interface over Events ordered by
// (ExpireTime, seq).
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].ExpireTime != h[j].ExpireTime {
		return h[i].ExpireTime < h[j].ExpireTime
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
