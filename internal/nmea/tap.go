package nmea

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// DefaultRetryDelay is the pause between reconnect attempts when the feed
// drops or the device cannot be opened.
const DefaultRetryDelay = 5 * time.Second

// subscriberBuffer is the per-subscriber channel depth. A receiver bursts
// several sentences per reporting cycle; the buffer absorbs short stalls on
// the consumer side before lines are dropped.
const subscriberBuffer = 64

// Stats is a point-in-time snapshot of capture activity.
type Stats struct {
	// Lines is the number of non-blank sentences captured.
	Lines uint64

	// DialErrors is the number of failed attempts to open the source.
	DialErrors uint64

	// Reconnects is the number of times an established feed was lost.
	Reconnects uint64

	// LastLine is the capture time of the most recent sentence.
	LastLine time.Time
}

// TapOptions configures a Tap.
type TapOptions struct {
	// Dial opens the capture source. Required.
	Dial DialFunc

	// RetryDelay overrides DefaultRetryDelay between reconnect attempts.
	RetryDelay time.Duration

	// Clock stamps captured lines. Defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// Tap reads sentences from a serial feed and fans them out to subscribers,
// redialling the source whenever it drops.
type Tap struct {
	dial       DialFunc
	retryDelay time.Duration
	clock      timeutil.Clock

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	closing      bool

	statsMu sync.Mutex
	stats   Stats
}

// NewTap creates a Tap from opts. It does not open the source; call Run.
func NewTap(opts TapOptions) *Tap {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Tap{
		dial:        opts.Dial,
		retryDelay:  opts.RetryDelay,
		clock:       opts.Clock,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving captured sentences. The
// returned ID identifies the channel when unsubscribing. After Close the
// returned channel is already closed so callers do not block.
func (t *Tap) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)

	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if t.closing {
		close(ch)
		return id, ch
	}
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tap) Unsubscribe(id string) {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

func (t *Tap) subscriberCount() int {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	return len(t.subscribers)
}

// Close closes all subscriber channels. It does not stop a running capture
// loop; cancel the Run context for that.
func (t *Tap) Close() error {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if t.closing {
		return nil
	}
	t.closing = true
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
	return nil
}

func (t *Tap) isClosing() bool {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	return t.closing
}

// Stats returns a snapshot of capture counters.
func (t *Tap) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

// Run dials the source and captures sentences until ctx is cancelled,
// redialling after RetryDelay whenever the open fails or the feed ends.
func (t *Tap) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.isClosing() {
			return nil
		}

		port, err := t.dial()
		if err != nil {
			t.statsMu.Lock()
			t.stats.DialErrors++
			t.statsMu.Unlock()
			monitoring.Logf("nmea: open failed: %v (retry in %s)", err, t.retryDelay)
			if !t.waitRetry(ctx) {
				return ctx.Err()
			}
			continue
		}

		err = t.capture(ctx, port)
		port.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.isClosing() {
			return nil
		}

		t.statsMu.Lock()
		t.stats.Reconnects++
		t.statsMu.Unlock()
		if err != nil {
			monitoring.Logf("nmea: feed lost: %v (retry in %s)", err, t.retryDelay)
		} else {
			monitoring.Logf("nmea: feed ended (retry in %s)", t.retryDelay)
		}
		if !t.waitRetry(ctx) {
			return ctx.Err()
		}
	}
}

// waitRetry pauses between redials. It reports false when ctx was cancelled
// during the pause.
func (t *Tap) waitRetry(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(t.retryDelay):
		return true
	}
}

// capture scans one connection for sentences and publishes them until the
// feed ends, the scanner fails, or ctx is cancelled.
func (t *Tap) capture(ctx context.Context, port Port) error {
	scan := bufio.NewScanner(port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop
	// can await lines and context cancellation at the same time. Closing
	// the port unblocks a pending Read and ends the goroutine.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			t.publish(line)
		}
	}
}

// publish records one captured sentence and fans it out. Subscribers with a
// full channel are skipped so a stalled consumer never stalls the feed.
func (t *Tap) publish(line string) {
	t.statsMu.Lock()
	t.stats.Lines++
	t.stats.LastLine = t.clock.Now()
	t.statsMu.Unlock()

	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if t.closing {
		return
	}
	for _, ch := range t.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// ServeTCP fans captured sentences out to TCP clients, one sentence per
// CRLF-terminated line. It blocks until ctx is cancelled or the listener
// fails, and closes the listener on the way out.
func (t *Tap) ServeTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go t.serveConn(ctx, conn)
	}
}

func (t *Tap) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id, ch := t.Subscribe()
	defer t.Unsubscribe(id)
	monitoring.Logf("nmea: client %s connected", conn.RemoteAddr())

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(conn, "%s\r\n", line); err != nil {
				monitoring.Logf("nmea: client %s dropped: %v", conn.RemoteAddr(), err)
				return
			}
		}
	}
}
