package nmea

import (
	"bytes"
	"errors"
	"sync"
)

// MockPort implements Port with configurable behaviour for testing. It
// serves queued data to Read calls and can simulate read errors, blocking
// feeds, and close failures.
type MockPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf bytes.Buffer

	// ReadError is returned by the next Read call if set, then cleared.
	ReadError error

	// CloseError is returned by Close if set.
	CloseError error

	// BlockReads causes Read on an empty buffer to wait for data instead
	// of returning io.EOF.
	BlockReads bool

	// Closed indicates whether Close was called.
	Closed bool

	// ReadCalls records the number of Read calls.
	ReadCalls int
}

// NewMockPort creates an empty MockPort.
func NewMockPort() *MockPort {
	p := &MockPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read serves queued data. On an empty buffer it returns io.EOF, or waits
// for a Feed or Close when BlockReads is set.
func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.Closed {
		return 0, errors.New("mock port closed")
	}

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}

	if p.BlockReads {
		for !p.Closed && p.buf.Len() == 0 {
			p.cond.Wait()
		}
		if p.Closed {
			return 0, errors.New("mock port closed")
		}
	}

	return p.buf.Read(b)
}

// Close marks the port as closed and wakes any blocked readers.
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// Feed queues raw bytes for subsequent Read calls.
func (p *MockPort) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	p.cond.Broadcast()
}

// FeedLine queues one sentence with the CRLF terminator receivers emit.
func (p *MockPort) FeedLine(line string) {
	p.Feed([]byte(line + "\r\n"))
}
