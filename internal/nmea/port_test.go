package nmea

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.BaudRate != 38400 {
		t.Errorf("expected baud rate 38400, got %d", opts.BaudRate)
	}
	if opts.DataBits != 8 {
		t.Errorf("expected 8 data bits, got %d", opts.DataBits)
	}
	if opts.StopBits != 1 {
		t.Errorf("expected 1 stop bit, got %d", opts.StopBits)
	}
	if opts.Parity != "N" {
		t.Errorf("expected parity N, got %q", opts.Parity)
	}
}

func TestPortOptions_Normalize_Invalid(t *testing.T) {
	cases := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too low", PortOptions{DataBits: 4}},
		{"data bits too high", PortOptions{DataBits: 9}},
		{"bad stop bits", PortOptions{StopBits: 3}},
		{"bad parity", PortOptions{Parity: "Q"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.opts.Normalize(); err == nil {
				t.Errorf("expected error for %+v", tc.opts)
			}
		})
	}
}

func TestPortOptions_Normalize_ParityVariations(t *testing.T) {
	aliases := map[string]string{
		"none": "N",
		"EVEN": "E",
		"odd":  "O",
		" n ":  "N",
	}
	for input, want := range aliases {
		opts, err := PortOptions{Parity: input}.Normalize()
		if err != nil {
			t.Fatalf("parity %q: unexpected error: %v", input, err)
		}
		if opts.Parity != want {
			t.Errorf("parity %q: expected %q, got %q", input, want, opts.Parity)
		}
	}
}

func TestPortOptions_Mode_Default(t *testing.T) {
	mode, err := PortOptions{}.Mode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode.BaudRate != 38400 {
		t.Errorf("expected baud rate 38400, got %d", mode.BaudRate)
	}
	if mode.StopBits != serial.OneStopBit {
		t.Errorf("expected one stop bit, got %v", mode.StopBits)
	}
	if mode.Parity != serial.NoParity {
		t.Errorf("expected no parity, got %v", mode.Parity)
	}
}

func TestPortOptions_Mode_Explicit(t *testing.T) {
	mode, err := PortOptions{BaudRate: 4800, Parity: "even", StopBits: 2}.Mode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode.BaudRate != 4800 {
		t.Errorf("expected baud rate 4800, got %d", mode.BaudRate)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("expected even parity, got %v", mode.Parity)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("expected two stop bits, got %v", mode.StopBits)
	}
}

func TestPortOptions_Mode_Invalid(t *testing.T) {
	if _, err := (PortOptions{DataBits: 3}).Mode(); err == nil {
		t.Error("expected error for invalid data bits")
	}
}
