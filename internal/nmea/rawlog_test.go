package nmea

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/vessel.report/internal/timeutil"
)

func TestRawLog_RotatesAtMidnightUTC(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC))

	rl, err := NewRawLog(dir, clock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rl.Close()

	if err := rl.WriteLine(sentenceA); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rl.WriteLine(sentenceB); err != nil {
		t.Fatalf("write: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if err := rl.WriteLine(sentenceC); err != nil {
		t.Fatalf("write after rotation: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	day1, err := os.ReadFile(filepath.Join(dir, "nmea-2024-03-01.log"))
	if err != nil {
		t.Fatalf("read first day: %v", err)
	}
	if string(day1) != sentenceA+"\n"+sentenceB+"\n" {
		t.Errorf("unexpected first day contents %q", day1)
	}

	day2, err := os.ReadFile(filepath.Join(dir, "nmea-2024-03-02.log"))
	if err != nil {
		t.Fatalf("read second day: %v", err)
	}
	if string(day2) != sentenceC+"\n" {
		t.Errorf("unexpected second day contents %q", day2)
	}
}

func TestRawLog_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	rl, err := NewRawLog(dir, clock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rl.WriteLine(sentenceA); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rl, err = NewRawLog(dir, clock)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := rl.WriteLine(sentenceB); err != nil {
		t.Fatalf("write after reopen: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "nmea-2024-03-01.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != sentenceA+"\n"+sentenceB+"\n" {
		t.Errorf("unexpected contents %q", data)
	}
}

func TestRawLog_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	rl, err := NewRawLog(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rl.Close()

	if err := rl.WriteLine(sentenceA); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
}
