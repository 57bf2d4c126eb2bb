package pcissd

import (
	"fmt"

	"github.com/jstevens-sim/pcissd/internal/clockdomain"
	"github.com/jstevens-sim/pcissd/internal/constants"
	"github.com/jstevens-sim/pcissd/internal/event"
	"github.com/jstevens-sim/pcissd/internal/interfaces"
	"github.com/jstevens-sim/pcissd/internal/logging"
	"github.com/jstevens-sim/pcissd/internal/pending"
	"github.com/jstevens-sim/pcissd/internal/transport"
)

// CompletionFunc is the host-facing read/write completion callback shape:
// (systemID, orig_addr, cycle) -> void.
type CompletionFunc = interfaces.CompletionFunc

// DMAFunc emits one memory-simulator transaction: (is_write, addr, cycle).
type DMAFunc func(isWrite bool, addr uint64, cycle uint64)

// BackingStore is the external NAND/memory-subsystem simulator collaborator.
type BackingStore = interfaces.BackingStore

// System ties a pair of serialized transport layers to a backing store
// through a single-threaded, cooperatively scheduled event pipeline. All
// exported methods except Update are meant to be called between Update
// calls, never concurrently with one another or with Update itself.
type System struct {
	id  uint32
	cfg Config

	clock uint64

	scheduler *event.Scheduler
	layer1    *transport.Layer
	layer2    *transport.Layer

	extCrosser     *clockdomain.Crosser
	backingCrosser *clockdomain.Crosser

	backing BackingStore

	backingPending *pending.Map
	dmaPending     *pending.Map

	pendingSectors map[uint64]struct{}

	readCB, writeCB CompletionFunc

	dmaEmit       DMAFunc
	dmaMemorySize uint64

	sgBase []uint64
	sgLen  []uint64

	logger   interfaces.Logger
	observer Observer

	debugLogInterval uint64
}

// Option customizes a System at construction time.
type Option func(*System)

// WithLogger overrides the default stderr logger.
func WithLogger(l interfaces.Logger) Option {
	return func(s *System) { s.logger = l }
}

// WithObserver overrides the default no-op metrics sink.
func WithObserver(o Observer) Option {
	return func(s *System) { s.observer = o }
}

// WithDebugLogInterval changes how often (in internal-clock cycles) Update
// emits a pipeline-depth trace line. Zero disables the trace entirely.
func WithDebugLogInterval(cycles uint64) Option {
	return func(s *System) { s.debugLogInterval = cycles }
}

// New constructs a System identified by id, wired to backing as its
// NAND/memory-subsystem collaborator. backing must be non-nil; cfg is
// validated before anything else happens.
func New(id uint32, cfg Config, backing BackingStore, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backing == nil {
		return nil, NewError("New", ErrCodeInvalidParameters, "backing store is required")
	}

	s := &System{
		id:               id,
		cfg:              cfg,
		backing:          backing,
		pendingSectors:   make(map[uint64]struct{}),
		backingPending:   pending.New(),
		dmaPending:       pending.New(),
		logger:           logging.Default(),
		observer:         NoOpObserver{},
		debugLogInterval: 10_000,
	}

	s.scheduler = event.NewScheduler()

	d1, c1 := layerDelays(cfg.Layer1Type)
	d2, c2 := layerDelays(cfg.Layer2Type)
	clockRead := func() uint64 { return s.clock }

	s.layer1 = transport.New(transport.Config{
		DataDelay:       d1,
		CommandDelay:    c1,
		NumLanes:        uint64(cfg.Layer1Lanes),
		FullDuplex:      cfg.Layer1FullDuplex,
		SendEventType:   event.L1Send,
		ReturnEventType: event.L1Return,
	}, s.scheduler, clockRead)

	s.layer2 = transport.New(transport.Config{
		DataDelay:       d2,
		CommandDelay:    c2,
		NumLanes:        uint64(cfg.Layer2Lanes),
		FullDuplex:      cfg.Layer2FullDuplex,
		SendEventType:   event.L2Send,
		ReturnEventType: event.L2Return,
	}, s.scheduler, clockRead)

	s.extCrosser = clockdomain.New(cfg.InternalClock, cfg.ExternalClock, s.updateInternal)
	s.backingCrosser = clockdomain.New(cfg.BackingClock1, cfg.BackingClock2, s.backingUpdateInternal)

	backing.RegisterCompletion(s.handleBackingRead, s.handleBackingWrite)

	for _, opt := range opts {
		opt(s)
	}

	s.scheduler.SetLogger(s.logger)

	return s, nil
}

// ID returns the identifier this System was constructed with.
func (s *System) ID() uint32 { return s.id }

// CurrentCycle returns the current internal clock cycle.
func (s *System) CurrentCycle() uint64 { return s.clock }

// WillAccept reports whether the pipeline can currently take a new
// transaction. Nothing in this pipeline throttles submission, so it always
// returns true; the method exists so a caller's admission check has
// somewhere to live if a future backing store needs to push back.
func (s *System) WillAccept() bool { return true }

// RegisterCompletion installs the host-facing read/write completion
// callbacks. Either may be nil, in which case that direction's completions
// are simply dropped.
func (s *System) RegisterCompletion(readDone, writeDone CompletionFunc) {
	s.readCB = readDone
	s.writeCB = writeDone
}

// RegisterDMA enables the scatter/gather DMA side-channel by installing the
// callback used to emit memory-simulator transactions, and the host memory
// size used to bounds-check sg_base. It must be called at most once, and
// only when Config.EnableDMA is true.
func (s *System) RegisterDMA(cb DMAFunc, memorySize uint64) error {
	if !s.cfg.EnableDMA {
		return NewError("RegisterDMA", ErrCodeInvalidParameters, "DMA is not enabled in this System's Config")
	}
	if s.dmaEmit != nil {
		return NewError("RegisterDMA", ErrCodeInvalidParameters, "DMA callback already registered")
	}
	if cb == nil {
		return NewError("RegisterDMA", ErrCodeInvalidParameters, "callback must not be nil")
	}
	if memorySize == 0 {
		return NewError("RegisterDMA", ErrCodeInvalidParameters, "memorySize must be nonzero")
	}
	s.dmaEmit = cb
	s.dmaMemorySize = memorySize
	return nil
}

// AddSGEntry buffers one raw (base, length) scatter/gather pair for the next
// AddTransaction call. Entries are not validated until that call consumes
// and clears the buffer; an AddTransaction that never arrives leaves a
// stale buffer for the caller's next one, matching one submission building
// its SG list entry by entry before naming the transaction it belongs to.
func (s *System) AddSGEntry(base, length uint64) {
	s.sgBase = append(s.sgBase, base)
	s.sgLen = append(s.sgLen, length)
}

// AddTransaction submits a host I/O request of numSectors sectors starting
// at addr. It returns one *Error per scatter/gather entry the buffered list
// held that failed validation (those entries are dropped, each with a Warn
// log line, rather than failing the whole submission); the transaction itself is always
// accepted once its preconditions hold.
//
// Preconditions — an out-of-range numSectors or a sector already pending
// from an earlier in-flight transaction are both protocol violations and
// panic rather than returning an error, since neither can arise from a
// caller respecting the contract.
func (s *System) AddTransaction(isWrite bool, addr uint64, numSectors int) []*Error {
	if numSectors < MinSectors || numSectors > MaxSectors {
		protocolViolation("AddTransaction", fmt.Sprintf("num_sectors %d out of range [%d, %d]", numSectors, MinSectors, MaxSectors))
	}

	aligned := constants.SectorAlign(addr)
	if aligned != addr {
		s.logger.Info("unaligned sector arrived", "addr", addr, "aligned", aligned)
	}
	numBytes := uint64(numSectors) * SectorSize

	for off := uint64(0); off < numBytes; off += SectorSize {
		if _, busy := s.pendingSectors[aligned+off]; busy {
			protocolViolation("AddTransaction", fmt.Sprintf("sector %d already pending", aligned+off))
		}
	}

	rawBase, rawLen := s.sgBase, s.sgLen
	s.sgBase, s.sgLen = nil, nil

	var sgBase, sgLen []uint64
	var dropped []*Error
	if s.cfg.EnableDMA {
		sgBase, sgLen, dropped = s.validateSG(rawBase, rawLen)
	}

	if len(sgBase) > 0 && s.dmaEmit == nil {
		protocolViolation("AddTransaction", "transaction carries scatter/gather entries but RegisterDMA was never called")
	}

	for off := uint64(0); off < numBytes; off += SectorSize {
		s.pendingSectors[aligned+off] = struct{}{}
	}

	trans := event.Transaction{
		IsWrite:     isWrite,
		Addr:        aligned,
		OrigAddr:    addr,
		NumSectors:  numSectors,
		SGBase:      sgBase,
		SGLen:       sgLen,
		SubmitCycle: s.clock,
	}

	if isWrite && len(sgBase) > 0 {
		s.startDMA(trans)
	} else {
		s.layer1.AddSend(trans)
	}

	return dropped
}

// validateSG filters rawBase/rawLen down to the entries that pass every
// check: base within host memory, length within one transaction's worth of
// sectors, both base and length aligned to DMATxnSize, and no sub-address
// repeated from an earlier entry of this list. Entries are not checked
// against the SG lists of other in-flight transactions.
func (s *System) validateSG(rawBase, rawLen []uint64) (validBase, validLen []uint64, dropped []*Error) {
	seen := make(map[uint64]struct{})

	for i := range rawBase {
		base, length := rawBase[i], rawLen[i]

		reason := ""
		switch {
		case length == 0 || length%DMATxnSize != 0:
			reason = fmt.Sprintf("length %d is not a positive multiple of %d", length, DMATxnSize)
		case base%DMATxnSize != 0:
			reason = fmt.Sprintf("base %d is not aligned to %d", base, DMATxnSize)
		case base >= s.dmaMemorySize || base+length > s.dmaMemorySize:
			reason = fmt.Sprintf("[%d, %d) is outside host memory of size %d", base, base+length, s.dmaMemorySize)
		case length > uint64(MaxSectors)*SectorSize:
			reason = fmt.Sprintf("length %d exceeds one transaction's worth of sectors", length)
		}

		if reason != "" {
			dropped = append(dropped, NewError("AddSGEntry", ErrCodeSGInvalid, reason))
			s.logger.Warn("dropping invalid scatter/gather entry", "base", base, "length", length, "reason", reason)
			continue
		}

		n := length / DMATxnSize
		entrySubs := make([]uint64, 0, n)
		duplicate := false
		for j := uint64(0); j < n; j++ {
			sub := base + j*DMATxnSize
			if _, dup := seen[sub]; dup {
				duplicate = true
				break
			}
			entrySubs = append(entrySubs, sub)
		}
		if duplicate {
			reason = fmt.Sprintf("entry (base=%d len=%d) overlaps an earlier entry in the same list", base, length)
			dropped = append(dropped, NewError("AddSGEntry", ErrCodeSGInvalid, reason))
			s.logger.Warn("dropping invalid scatter/gather entry", "base", base, "length", length, "reason", reason)
			continue
		}

		for _, sub := range entrySubs {
			seen[sub] = struct{}{}
		}
		validBase = append(validBase, base)
		validLen = append(validLen, length)
	}

	return validBase, validLen, dropped
}

// CompleteDMA is called by the memory-simulator collaborator when one DMA
// sub-transaction finishes. isWrite must match the direction that System
// emitted for addr.
func (s *System) CompleteDMA(isWrite bool, addr uint64) {
	trans, _, done, ok := s.dmaPending.Complete(addr)
	if !ok {
		protocolViolation("CompleteDMA", fmt.Sprintf("unknown dma sub-address %d", addr))
	}
	if !done {
		return
	}
	if isWrite == trans.IsWrite {
		protocolViolation("CompleteDMA", "direction mismatch: a write transaction DMAs a read and vice versa")
	}

	if trans.IsWrite {
		s.layer1.AddSend(trans)
	} else {
		s.issueHostCallback(trans)
	}
}

// FlushBackingLog flushes the backing store's log file, if it implements
// LogFlusher. It is a no-op otherwise.
func (s *System) FlushBackingLog() error {
	if lf, ok := s.backing.(interfaces.LogFlusher); ok {
		return lf.FlushLog()
	}
	return nil
}

// Update advances the external (host-facing) clock by one tick, crossing
// into the internal clock domain zero or more times depending on
// Config.InternalClock/ExternalClock, and samples the current pipeline
// depth for the installed Observer.
func (s *System) Update() {
	s.extCrosser.Update()
	s.observer.ObserveQueueDepth(uint32(s.pipelineDepth()))
}

func (s *System) pipelineDepth() int {
	return s.scheduler.Len() +
		s.layer1.SendQueueLen() + s.layer1.ReturnQueueLen() +
		s.layer2.SendQueueLen() + s.layer2.ReturnQueueLen()
}

// updateInternal runs one internal-clock tick: layer 2 updates, then layer
// 1, then the scheduler fires every event due this tick (including any
// zero-delay event either layer just armed), then the backing-simulator
// clock domain crosses, then the clock advances.
func (s *System) updateInternal() {
	s.layer2.Update()
	s.layer1.Update()
	s.scheduler.Process(s.clock, s.dispatch)
	s.backingCrosser.Update()
	s.clock++

	if s.debugLogInterval > 0 && s.clock%s.debugLogInterval == 0 {
		s.logger.Tick(s.clock, "pipeline depth",
			"events", s.scheduler.Len(),
			"l1_send", s.layer1.SendQueueLen(), "l1_return", s.layer1.ReturnQueueLen(),
			"l2_send", s.layer2.SendQueueLen(), "l2_return", s.layer2.ReturnQueueLen())
	}
}

func (s *System) backingUpdateInternal() {
	s.backing.Update()
}

// dispatch routes one fired Event to its handler.
func (s *System) dispatch(e event.Event) {
	switch e.Type {
	case event.L1Send:
		s.layer1.SendDone()
		s.layer2.AddSend(e.Trans)
	case event.L1Return:
		s.layer1.ReturnDone()
		s.clearPendingSectors(e.Trans)
		if s.cfg.EnableDMA && !e.Trans.IsWrite && len(e.Trans.SGBase) > 0 {
			s.startDMA(e.Trans)
		} else {
			s.issueHostCallback(e.Trans)
		}
	case event.L2Send:
		s.layer2.SendDone()
		s.startBacking(e.Trans)
	case event.L2Return:
		s.layer2.ReturnDone()
		s.layer1.AddReturn(e.Trans)
	default:
		protocolViolation("dispatch", fmt.Sprintf("unknown event type %v", e.Type))
	}
}

func (s *System) clearPendingSectors(t event.Transaction) {
	numBytes := uint64(t.NumSectors) * SectorSize
	for off := uint64(0); off < numBytes; off += SectorSize {
		sec := t.Addr + off
		if _, ok := s.pendingSectors[sec]; !ok {
			protocolViolation("clearPendingSectors", fmt.Sprintf("sector %d was not marked pending", sec))
		}
		delete(s.pendingSectors, sec)
	}
}

// startDMA fans t's scatter/gather list out into memory-simulator
// sub-transactions. The DMA direction is the inverse of the host
// transaction's: an SSD write DMAs a read from host memory, an SSD read
// DMAs a write into it.
func (s *System) startDMA(t event.Transaction) {
	if !s.dmaPending.Start(t.Addr, t) {
		protocolViolation("startDMA", fmt.Sprintf("base %d already has an in-flight DMA fan-out", t.Addr))
	}
	dmaIsWrite := !t.IsWrite
	for i := range t.SGBase {
		n := t.SGLen[i] / DMATxnSize
		for j := uint64(0); j < n; j++ {
			sub := t.SGBase[i] + j*DMATxnSize
			if !s.dmaPending.AddSub(t.Addr, sub) {
				protocolViolation("startDMA", fmt.Sprintf("duplicate dma sub-address %d", sub))
			}
			s.dmaEmit(dmaIsWrite, sub, s.clock)
		}
	}
}

// startBacking fans t out into backing-store sub-transactions of
// BackingTxnSize bytes each.
func (s *System) startBacking(t event.Transaction) {
	if !s.backingPending.Start(t.Addr, t) {
		protocolViolation("startBacking", fmt.Sprintf("base %d already has an in-flight backing fan-out", t.Addr))
	}
	n := constants.BackingSubCount(t.NumSectors)
	for i := 0; i < n; i++ {
		sub := t.Addr + uint64(i)*BackingTxnSize
		if !s.backingPending.AddSub(t.Addr, sub) {
			protocolViolation("startBacking", fmt.Sprintf("duplicate backing sub-address %d", sub))
		}
		if !s.backing.AddTransaction(t.IsWrite, sub) {
			protocolViolation("startBacking", fmt.Sprintf("backing store refused sub-address %d", sub))
		}
	}
}

func (s *System) handleBackingRead(_ uint32, addr uint64, _ uint64) {
	s.handleBackingCompletion(false, addr)
}

func (s *System) handleBackingWrite(_ uint32, addr uint64, _ uint64) {
	s.handleBackingCompletion(true, addr)
}

func (s *System) handleBackingCompletion(isWrite bool, addr uint64) {
	trans, _, done, ok := s.backingPending.Complete(addr)
	if !ok {
		protocolViolation("handleBackingCompletion", fmt.Sprintf("unknown backing sub-address %d", addr))
	}
	if !done {
		return
	}
	if isWrite != trans.IsWrite {
		protocolViolation("handleBackingCompletion", "direction mismatch between backing completion and transaction")
	}
	s.layer2.AddReturn(trans)
}

// issueHostCallback fires the read or write completion callback for t and
// records its end-to-end latency with the installed Observer.
func (s *System) issueHostCallback(t event.Transaction) {
	cb := s.readCB
	if t.IsWrite {
		cb = s.writeCB
	}
	if cb != nil {
		cb(s.id, t.OrigAddr, s.clock)
	}

	latency := s.clock - t.SubmitCycle
	if t.IsWrite {
		s.observer.ObserveWrite(latency, true)
	} else {
		s.observer.ObserveRead(latency, true)
	}
}
