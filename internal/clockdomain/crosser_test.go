package clockdomain

import "testing"

func TestCrosserExactRatio(t *testing.T) {
	// 1 internal tick per 2 external ticks: f should fire once every 2 calls.
	calls := 0
	c := New(1, 2, func() { calls++ })

	c.Update()
	if calls != 0 {
		t.Fatalf("calls = %d after 1 update, want 0", calls)
	}
	c.Update()
	if calls != 1 {
		t.Fatalf("calls = %d after 2 updates, want 1", calls)
	}
}

func TestCrosserNoDriftOverManyTicks(t *testing.T) {
	// At a 2:3 ratio, over 300 outer ticks f must fire exactly 200 times,
	// not 199 or 201.
	calls := 0
	c := New(2, 3, func() { calls++ })
	for i := 0; i < 300; i++ {
		c.Update()
	}
	if calls != 200 {
		t.Fatalf("calls = %d over 300 ticks at ratio 2:3, want 200", calls)
	}
}

func TestCrosserCanFireMultipleTimesPerTick(t *testing.T) {
	// num > denom: f should fire more than once per outer tick sometimes.
	calls := 0
	c := New(3, 1, func() { calls++ })
	c.Update()
	if calls != 3 {
		t.Fatalf("calls = %d after 1 update at ratio 3:1, want 3", calls)
	}
}

func TestCrosserOneToOne(t *testing.T) {
	calls := 0
	c := New(1, 1, func() { calls++ })
	for i := 0; i < 10; i++ {
		c.Update()
	}
	if calls != 10 {
		t.Fatalf("calls = %d over 10 updates at ratio 1:1, want 10", calls)
	}
}
