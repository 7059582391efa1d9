package timeutil

import (
	"sync"
	"time"
)

// MockClock is a Clock that stands still until a test moves it. Sleep
// returns immediately and records the requested duration; tickers fire from
// Advance instead of wall time.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	tickers map[int]*MockTicker
	nextID  int
}

// NewMockClock creates a MockClock parked at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t, tickers: make(map[int]*MockTicker)}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps the clock to t without firing tickers.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Since returns how far the mocked now is past t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records d and returns without blocking.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
}

// Sleeps returns every recorded sleep, in call order.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Advance moves the clock forward by d, then delivers a tick to every
// registered ticker that has come due at the new time.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		t.fire(c.now)
	}
}

// NewTicker registers a ticker first due one period past the mocked now.
// Advance drives it; Stop unregisters it.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &MockTicker{
		owner:  c,
		id:     c.nextID,
		ch:     make(chan time.Time, 1),
		period: d,
		due:    c.now.Add(d),
	}
	c.tickers[t.id] = t
	return t
}

// MockTicker is the Ticker a MockClock hands out. Like time.Ticker it
// delivers into a one-slot channel and drops ticks nobody is reading.
type MockTicker struct {
	owner  *MockClock
	id     int
	ch     chan time.Time
	period time.Duration
	due    time.Time
}

// C returns the tick delivery channel.
func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop unregisters the ticker from its clock. Later Advances ignore it.
func (t *MockTicker) Stop() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	delete(t.owner.tickers, t.id)
}

// fire delivers one tick if the ticker is due at now, re-arming it one
// period out. Called with the owner's lock held.
func (t *MockTicker) fire(now time.Time) {
	if now.Before(t.due) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.due = now.Add(t.period)
}
