// Package transport implements one serialized transport link: a
// half/full-duplex pipelined channel with independent send and return
// FIFOs, lane-scaled delay, and return-over-send priority.
package transport

import "github.com/jstevens-sim/pcissd/internal/event"

// Scheduler is the append-only handle a Layer uses to arm timed events. A
// Layer never owns its parent; it only appends to the scheduler and reads
// the current cycle, so this interface (plus ClockReader) replaces what
// would otherwise be a raw back-pointer to the orchestrator.
type Scheduler interface {
	Add(event.Event)
}

// ClockReader returns the owning System's current internal clock cycle.
type ClockReader func() uint64

// Config parameterizes a Layer. DataDelay and CommandDelay are precomputed
// tick counts (see delayTicks/layerDelays in the root package), not raw
// bytes-per-second figures.
type Config struct {
	DataDelay    uint64
	CommandDelay uint64
	NumLanes     uint64
	FullDuplex   bool

	// SendEventType/ReturnEventType are the Event.Type values this layer
	// arms when a send or return completes its delay.
	SendEventType   event.Type
	ReturnEventType event.Type
}

// Layer is one physical link: PCIe/DMI on the host side, SATA on the device
// side. It owns two FIFOs and two busy flags; Update implements its
// per-tick arbitration policy.
type Layer struct {
	cfg       Config
	scheduler Scheduler
	clock     ClockReader

	sendQueue   []event.Transaction
	returnQueue []event.Transaction

	sendBusy   bool
	returnBusy bool
}

// New constructs a Layer. scheduler and clock are held as narrow,
// append-only/read-only handles rather than an owning pointer back to the
// orchestrator.
func New(cfg Config, scheduler Scheduler, clock ClockReader) *Layer {
	return &Layer{cfg: cfg, scheduler: scheduler, clock: clock}
}

// AddSend enqueues t on the send path.
func (l *Layer) AddSend(t event.Transaction) {
	l.sendQueue = append(l.sendQueue, t)
}

// AddReturn enqueues t on the return path.
func (l *Layer) AddReturn(t event.Transaction) {
	l.returnQueue = append(l.returnQueue, t)
}

// SendDone clears the send-busy flag. Called by the orchestrator when the
// scheduled send event fires.
func (l *Layer) SendDone() { l.sendBusy = false }

// ReturnDone clears the return-busy flag. Called by the orchestrator when
// the scheduled return event fires.
func (l *Layer) ReturnDone() { l.returnBusy = false }

// SendBusy/ReturnBusy expose the busy flags for invariant checks: each is
// true iff exactly one matching event is currently scheduled.
func (l *Layer) SendBusy() bool   { return l.sendBusy }
func (l *Layer) ReturnBusy() bool { return l.returnBusy }

// SendQueueLen/ReturnQueueLen expose queue depth for metrics.
func (l *Layer) SendQueueLen() int   { return len(l.sendQueue) }
func (l *Layer) ReturnQueueLen() int { return len(l.returnQueue) }

// Update runs one tick of the layer's policy: return has strict priority
// over send, and in half-duplex mode a single in-flight event in either
// direction blocks the other direction.
func (l *Layer) Update() {
	halfDuplexBusy := !l.cfg.FullDuplex && (l.sendBusy || l.returnBusy)

	if !halfDuplexBusy && !l.returnBusy && len(l.returnQueue) > 0 {
		t := l.returnQueue[0]
		l.returnQueue = l.returnQueue[1:]
		l.startReturn(t)
	}

	halfDuplexBusy = !l.cfg.FullDuplex && (l.sendBusy || l.returnBusy)

	if !halfDuplexBusy && !l.sendBusy && len(l.sendQueue) > 0 {
		t := l.sendQueue[0]
		l.sendQueue = l.sendQueue[1:]
		l.startSend(t)
	}
}

// startSend arms the event.Type=SendEventType event for t.
func (l *Layer) startSend(t event.Transaction) {
	// A write carries data on the forward path; a read carries a short
	// command on the forward path (its payload returns later).
	base := l.cfg.CommandDelay
	if t.IsWrite {
		base = l.cfg.DataDelay
	}
	l.arm(t, base, l.cfg.SendEventType)
	l.sendBusy = true
}

// startReturn arms the event.Type=ReturnEventType event for t.
func (l *Layer) startReturn(t event.Transaction) {
	// A write's return path carries only a short completion; a read's
	// return path carries the data.
	base := l.cfg.DataDelay
	if t.IsWrite {
		base = l.cfg.CommandDelay
	}
	l.arm(t, base, l.cfg.ReturnEventType)
	l.returnBusy = true
}

func (l *Layer) arm(t event.Transaction, base uint64, ty event.Type) {
	delay := (base * uint64(t.NumSectors)) / l.cfg.NumLanes
	l.scheduler.Add(event.Event{
		Type:       ty,
		Trans:      t,
		ExpireTime: l.clock() + delay,
	})
}
