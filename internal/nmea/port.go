// Package nmea captures raw NMEA 0183 sentences from a serial-attached AIS
// receiver. Sentences are tapped verbatim; AIVDM payload decoding happens
// upstream of the CSV feeds the rest of the system ingests.
package nmea

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// Port is the minimal interface the tap needs from a serial device.
// The abstraction keeps the capture loop testable without hardware.
type Port interface {
	io.Reader
	io.Closer
}

// DialFunc opens the capture source. The tap calls it on start and again
// after every lost connection, so implementations must be safe to call
// repeatedly.
type DialFunc func() (Port, error)

// PortOptions describes the serial connection parameters for an AIS
// receiver. The zero value selects the IEC 61162-2 defaults (38400 8N1)
// used by shipborne AIS transponders.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Normalize fills IEC 61162-2 defaults for unset fields and rejects values a
// serial AIS receiver cannot use. Parity is canonicalized to its single
// letter form.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 38400
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}

	switch {
	case o.DataBits < 5 || o.DataBits > 8:
		return o, fmt.Errorf("data bits %d out of range 5-8", o.DataBits)
	case o.StopBits != 1 && o.StopBits != 2:
		return o, fmt.Errorf("stop bits %d: only 1 or 2 supported", o.StopBits)
	}

	parity, err := canonicalParity(o.Parity)
	if err != nil {
		return o, err
	}
	o.Parity = parity
	return o, nil
}

// canonicalParity maps the accepted parity spellings to a single letter.
// Empty means none.
func canonicalParity(s string) (string, error) {
	switch strings.TrimSpace(strings.ToUpper(s)) {
	case "", "N", "NONE":
		return "N", nil
	case "E", "EVEN":
		return "E", nil
	case "O", "ODD":
		return "O", nil
	}
	return "", fmt.Errorf("unknown parity %q (want N, E, or O)", s)
}

var parityModes = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

// Mode converts the options into the serial.Mode structure required by
// go.bug.st/serial when opening a port.
func (o PortOptions) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   parityModes[opts.Parity],
		// serial.StopBits is an enum, not a bit count; casting 1 would
		// select OnePointFiveStopBits.
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode, nil
}

// Open opens the serial device at path with the given options.
func Open(path string, opts PortOptions) (Port, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// Dialer returns a DialFunc bound to a serial device path and options.
func Dialer(path string, opts PortOptions) DialFunc {
	return func() (Port, error) {
		return Open(path, opts)
	}
}
