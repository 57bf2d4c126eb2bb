package event

import "testing"

// fakeLogger records Debug calls so tests can assert Scheduler traces events
// without pulling in the real logging package.
type fakeLogger struct {
	debugCalls int
}

func (f *fakeLogger) Debug(msg string, args ...any)          { f.debugCalls++ }
func (f *fakeLogger) Info(msg string, args ...any)           {}
func (f *fakeLogger) Warn(msg string, args ...any)           {}
func (f *fakeLogger) Tick(cycle uint64, msg string, args ...any) {}

func TestSchedulerOrdersByExpireTime(t *testing.T) {
	s := NewScheduler()
	s.Add(Event{Type: L1Send, ExpireTime: 5})
	s.Add(Event{Type: L1Return, ExpireTime: 2})
	s.Add(Event{Type: L2Send, ExpireTime: 3})

	var order []Type
	s.Process(10, func(e Event) { order = append(order, e.Type) })

	want := []Type{L1Return, L2Send, L1Send}
	if len(order) != len(want) {
		t.Fatalf("got %d dispatched events, want %d", len(order), len(want))
	}
	for i, ty := range want {
		if order[i] != ty {
			t.Errorf("order[%d] = %s, want %s", i, order[i], ty)
		}
	}
}

func TestSchedulerStableAmongTies(t *testing.T) {
	s := NewScheduler()
	s.Add(Event{Type: L1Send, ExpireTime: 0})
	s.Add(Event{Type: L1Return, ExpireTime: 0})
	s.Add(Event{Type: L2Send, ExpireTime: 0})

	var order []Type
	s.Process(0, func(e Event) { order = append(order, e.Type) })

	want := []Type{L1Send, L1Return, L2Send}
	for i, ty := range want {
		if order[i] != ty {
			t.Errorf("order[%d] = %s, want %s (insertion order must be preserved among ties)", i, order[i], ty)
		}
	}
}

func TestSchedulerProcessOnlyDispatchesExpired(t *testing.T) {
	s := NewScheduler()
	s.Add(Event{Type: L1Send, ExpireTime: 100})

	called := false
	s.Process(5, func(e Event) { called = true })
	if called {
		t.Fatal("Process dispatched an event before its expire_time")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (event should remain queued)", s.Len())
	}

	s.Process(100, func(e Event) { called = true })
	if !called {
		t.Fatal("Process did not dispatch an event at its expire_time")
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after dispatch", s.Len())
	}
}

func TestSchedulerProcessCanReenqueueAtSameTick(t *testing.T) {
	// Handling an event for a delay==0 downstream stage must be visible to
	// the same Process call: events scheduled during a tick with delay==0
	// still fire within that tick.
	s := NewScheduler()
	s.Add(Event{Type: L1Send, ExpireTime: 0})

	var order []Type
	s.Process(0, func(e Event) {
		order = append(order, e.Type)
		if e.Type == L1Send {
			s.Add(Event{Type: L2Send, ExpireTime: 0})
		}
	})

	want := []Type{L1Send, L2Send}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i, ty := range want {
		if order[i] != ty {
			t.Errorf("order[%d] = %s, want %s", i, order[i], ty)
		}
	}
}

func TestSchedulerAddLogsWhenLoggerSet(t *testing.T) {
	s := NewScheduler()
	s.Add(Event{Type: L1Send, ExpireTime: 0})

	fl := &fakeLogger{}
	s.SetLogger(fl)
	s.Add(Event{Type: L1Return, ExpireTime: 1})
	s.Retry(Event{Type: L2Send, ExpireTime: 0}, 5)

	if fl.debugCalls != 2 {
		t.Fatalf("debugCalls = %d, want 2 (one per Add after SetLogger, including the one inside Retry)", fl.debugCalls)
	}
}

func TestSchedulerRetryDelaysEvent(t *testing.T) {
	s := NewScheduler()
	s.Retry(Event{Type: L1Send, ExpireTime: 0}, 10)

	var order []Type
	s.Process(9, func(e Event) { order = append(order, e.Type) })
	if len(order) != 0 {
		t.Fatalf("retried event fired early: %v", order)
	}
	s.Process(10, func(e Event) { order = append(order, e.Type) })
	if len(order) != 1 {
		t.Fatalf("retried event did not fire at new expire_time: %v", order)
	}
}
