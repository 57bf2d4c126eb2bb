// Package clockdomain implements the rate-matching shim that crosses
// between two clock domains running at a ratio of num:denom ticks. A System
// uses two instances: external-to-internal and internal-to-backing.
package clockdomain

// Crosser maintains a rational counter so that, over any denom-tick window
// of the outer clock, f is called exactly num times with no long-run drift.
type Crosser struct {
	num, denom uint64
	count      uint64
	f          func()
}

// New constructs a Crosser. num and denom must both be positive; f is
// invoked synchronously from Update.
func New(num, denom uint64, f func()) *Crosser {
	return &Crosser{num: num, denom: denom, f: f}
}

// Update advances the outer clock by one tick, invoking f zero or more
// times as the rational counter carries over denom.
func (c *Crosser) Update() {
	c.count += c.num
	for c.count >= c.denom {
		c.count -= c.denom
		c.f()
	}
}
