// Package pending implements a consolidated pending-state map: one
// base_addr -> {Transaction, set<sub_addr>} mapping plus a single reverse
// index, replacing what would otherwise be three parallel maps per
// collaborator (transactions, outstanding accesses, and a sub->base reverse
// lookup). Both the backing-store fan-out and the DMA side-channel are
// structurally identical consumers of one Map each.
package pending

import "github.com/jstevens-sim/pcissd/internal/event"

// entry is the per-base-address bookkeeping record.
type entry struct {
	trans       event.Transaction
	outstanding map[uint64]struct{}
}

// Map tracks, per base address, the Transaction that triggered a fan-out and
// the set of sub-addresses still outstanding at the collaborator, plus a
// reverse index from sub-address to base address for O(1) callback routing.
type Map struct {
	entries map[uint64]entry
	reverse map[uint64]uint64
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		entries: make(map[uint64]entry),
		reverse: make(map[uint64]uint64),
	}
}

// Start begins tracking a fan-out for base, associated with trans. It
// reports false if base is already tracked — a protocol violation the
// caller should treat as fatal.
func (m *Map) Start(base uint64, trans event.Transaction) bool {
	if _, exists := m.entries[base]; exists {
		return false
	}
	m.entries[base] = entry{trans: trans, outstanding: make(map[uint64]struct{})}
	return true
}

// AddSub records sub as an outstanding access under base, which must already
// have been Start'd. It reports false if sub is already outstanding anywhere
// (a duplicate sub-address is a caller bug, not a valid retry).
func (m *Map) AddSub(base, sub uint64) bool {
	e, ok := m.entries[base]
	if !ok {
		return false
	}
	if _, dup := m.reverse[sub]; dup {
		return false
	}
	e.outstanding[sub] = struct{}{}
	m.reverse[sub] = base
	return true
}

// Complete marks sub as finished. When it was the last outstanding
// sub-address for its base, Complete removes both map entries and returns
// the original Transaction with done=true. It reports ok=false if sub was
// never registered via AddSub — a protocol violation.
func (m *Map) Complete(sub uint64) (trans event.Transaction, base uint64, done bool, ok bool) {
	base, ok = m.reverse[sub]
	if !ok {
		return event.Transaction{}, 0, false, false
	}
	e := m.entries[base]
	delete(e.outstanding, sub)
	delete(m.reverse, sub)

	if len(e.outstanding) == 0 {
		trans = e.trans
		delete(m.entries, base)
		return trans, base, true, true
	}
	m.entries[base] = e
	return event.Transaction{}, base, false, true
}

// Has reports whether base has an in-flight fan-out.
func (m *Map) Has(base uint64) bool {
	_, ok := m.entries[base]
	return ok
}

// OutstandingCount reports how many sub-addresses remain outstanding for
// base, used by invariant checks and tests.
func (m *Map) OutstandingCount(base uint64) int {
	return len(m.entries[base].outstanding)
}

// BaseOf reports the base address a sub-address is registered under, used by
// tests to check reverse-index consistency.
func (m *Map) BaseOf(sub uint64) (uint64, bool) {
	base, ok := m.reverse[sub]
	return base, ok
}

// Len reports the number of in-flight base addresses.
func (m *Map) Len() int {
	return len(m.entries)
}
