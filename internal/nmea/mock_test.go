package nmea

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestMockPort_ReadThenEOF(t *testing.T) {
	port := NewMockPort()
	port.Feed([]byte("hello"))

	buf := make([]byte, 16)
	n, err := port.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("expected %q, got %q", "hello", string(buf[:n]))
	}

	if _, err := port.Read(buf); err != io.EOF {
		t.Errorf("expected io.EOF on drained buffer, got %v", err)
	}
	if port.ReadCalls != 2 {
		t.Errorf("expected 2 read calls, got %d", port.ReadCalls)
	}
}

func TestMockPort_ReadErrorIsOneShot(t *testing.T) {
	port := NewMockPort()
	port.Feed([]byte("data"))
	port.ReadError = errors.New("bus fault")

	buf := make([]byte, 16)
	if _, err := port.Read(buf); err == nil || err.Error() != "bus fault" {
		t.Fatalf("expected injected error, got %v", err)
	}

	n, err := port.Read(buf)
	if err != nil {
		t.Fatalf("expected error to clear, got %v", err)
	}
	if string(buf[:n]) != "data" {
		t.Errorf("expected %q, got %q", "data", string(buf[:n]))
	}
}

func TestMockPort_BlockReads(t *testing.T) {
	port := NewMockPort()
	port.BlockReads = true

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := port.Read(buf)
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		got <- string(buf[:n])
	}()

	time.Sleep(10 * time.Millisecond)
	port.FeedLine("!AIVDM,1,1,,A,13u?etPv2;0n:dDPwUM1U1Cb069D,0*24")

	select {
	case line := <-got:
		if line != "!AIVDM,1,1,,A,13u?etPv2;0n:dDPwUM1U1Cb069D,0*24\r\n" {
			t.Errorf("unexpected read result %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked read never released by Feed")
	}
}

func TestMockPort_CloseReleasesBlockedRead(t *testing.T) {
	port := NewMockPort()
	port.BlockReads = true

	done := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 16))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := port.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error from read on closed port")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked read never released by Close")
	}
	if !port.Closed {
		t.Error("expected Closed to be set")
	}
}
