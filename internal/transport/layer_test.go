package transport

import (
	"testing"

	"github.com/jstevens-sim/pcissd/internal/event"
)

// fakeScheduler records added events instead of dispatching them, letting
// tests assert on exactly what a Layer armed.
type fakeScheduler struct {
	events []event.Event
}

func (f *fakeScheduler) Add(e event.Event) { f.events = append(f.events, e) }

func TestLayerFullDuplexSendAndReturnConcurrent(t *testing.T) {
	sched := &fakeScheduler{}
	l := New(Config{
		DataDelay: 10, CommandDelay: 2, NumLanes: 1, FullDuplex: true,
		SendEventType: event.L1Send, ReturnEventType: event.L1Return,
	}, sched, func() uint64 { return 0 })

	l.AddSend(event.Transaction{IsWrite: true, NumSectors: 1})
	l.AddReturn(event.Transaction{IsWrite: true, NumSectors: 1})
	l.Update()

	if !l.SendBusy() || !l.ReturnBusy() {
		t.Fatal("full duplex layer should start both send and return in the same tick")
	}
	if len(sched.events) != 2 {
		t.Fatalf("got %d scheduled events, want 2", len(sched.events))
	}
}

func TestLayerHalfDuplexReturnPriority(t *testing.T) {
	sched := &fakeScheduler{}
	l := New(Config{
		DataDelay: 10, CommandDelay: 2, NumLanes: 1, FullDuplex: false,
		SendEventType: event.L1Send, ReturnEventType: event.L1Return,
	}, sched, func() uint64 { return 0 })

	l.AddSend(event.Transaction{IsWrite: true, NumSectors: 1})
	l.AddReturn(event.Transaction{IsWrite: true, NumSectors: 1})
	l.Update()

	if !l.ReturnBusy() {
		t.Fatal("return should start immediately")
	}
	if l.SendBusy() {
		t.Fatal("half duplex send must wait for return to finish")
	}
	if l.SendQueueLen() != 1 {
		t.Fatalf("send queue len = %d, want 1 (send should still be queued)", l.SendQueueLen())
	}

	l.ReturnDone()
	l.Update()
	if !l.SendBusy() {
		t.Fatal("send should start once the return completed and the channel freed up")
	}
}

func TestLayerDelayFormula(t *testing.T) {
	sched := &fakeScheduler{}
	l := New(Config{
		DataDelay: 100, CommandDelay: 10, NumLanes: 4, FullDuplex: true,
		SendEventType: event.L1Send, ReturnEventType: event.L1Return,
	}, sched, func() uint64 { return 50 })

	// Write send: data_delay * num_sectors / lanes = 100*2/4 = 50.
	l.AddSend(event.Transaction{IsWrite: true, NumSectors: 2})
	l.Update()
	if sched.events[0].ExpireTime != 50+50 {
		t.Errorf("write send expire_time = %d, want 100", sched.events[0].ExpireTime)
	}

	// Read return: data_delay * num_sectors / lanes = 100*2/4 = 50.
	sched.events = nil
	l2 := New(Config{
		DataDelay: 100, CommandDelay: 10, NumLanes: 4, FullDuplex: true,
		SendEventType: event.L1Send, ReturnEventType: event.L1Return,
	}, sched, func() uint64 { return 0 })
	l2.AddReturn(event.Transaction{IsWrite: false, NumSectors: 2})
	l2.Update()
	if sched.events[0].ExpireTime != 50 {
		t.Errorf("read return expire_time = %d, want 50", sched.events[0].ExpireTime)
	}
}

func TestLayerZeroDelayLegal(t *testing.T) {
	sched := &fakeScheduler{}
	l := New(Config{
		DataDelay: 0, CommandDelay: 0, NumLanes: 1, FullDuplex: true,
		SendEventType: event.L1Send, ReturnEventType: event.L1Return,
	}, sched, func() uint64 { return 7 })

	l.AddSend(event.Transaction{IsWrite: true, NumSectors: 5})
	l.Update()
	if sched.events[0].ExpireTime != 7 {
		t.Errorf("zero delay should expire in the same tick it was scheduled, got %d", sched.events[0].ExpireTime)
	}
}
