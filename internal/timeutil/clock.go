// Package timeutil abstracts the clock so event-time replay pacing and
// periodic maintenance can run against a controllable time source in tests.
package timeutil

import "time"

// Clock is the time source used wherever the daemon sleeps, measures or
// ticks: replay pacing, cooldown purge cycles, raw NMEA log rotation.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration

	// Sleep pauses the calling goroutine for d.
	Sleep(d time.Duration)

	// NewTicker returns a Ticker delivering ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers clock ticks at a fixed interval.
type Ticker interface {
	// C returns the tick delivery channel.
	C() <-chan time.Time

	// Stop shuts the ticker down.
	Stop()
}

// RealClock is the production Clock backed by package time.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) Sleep(d time.Duration)           { time.Sleep(d) }

// NewTicker returns a Ticker wrapping a time.Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }
