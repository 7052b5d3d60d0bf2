// Package stan issues System Trace Audit Numbers (DE11).
package stan

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MaxValue is the largest STAN; the sequence wraps to 1 after it.
const MaxValue = 999999

const dateLayout = "20060102"

// Generator hands out six-digit STANs that restart every calendar day.
// The counter increment is lock-free; only the day rollover takes the mutex.
// One Generator is created at startup and shared by every connection.
type Generator struct {
	counter atomic.Uint32

	mu       sync.Mutex
	lastDate string

	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithStart seeds the counter so the next STAN is start+1.
func WithStart(start uint32) Option {
	return func(g *Generator) {
		g.counter.Store(start)
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	g.lastDate = g.now().Format(dateLayout)
	return g
}

// Next returns the next STAN as a zero-padded six-digit string.
func (g *Generator) Next() string {
	return fmt.Sprintf("%06d", g.NextValue())
}

// NextValue returns the next STAN as a number in 1..MaxValue.
func (g *Generator) NextValue() uint32 {
	g.rollover()

	for {
		v := g.counter.Add(1)
		if v <= MaxValue {
			return v
		}
		// Past the ceiling: the first caller to swap wins 1, the rest retry.
		if g.counter.CompareAndSwap(v, 1) {
			return 1
		}
	}
}

// Current returns the last issued value without advancing.
func (g *Generator) Current() uint32 {
	return g.counter.Load()
}

// rollover resets the counter on the first call of a new day. The clock is
// read under the lock and the date only moves forward, so a caller holding a
// stale reading never resets a day that already started.
func (g *Generator) rollover() {
	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.now().Format(dateLayout)
	if today > g.lastDate {
		g.counter.Store(0)
		g.lastDate = today
	}
}
