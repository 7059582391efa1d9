package nmea

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// RawLog appends captured sentences to per-day files named
// nmea-YYYY-MM-DD.log inside a directory, rotating at UTC midnight. Files
// are opened in append mode so a restart continues the current day's file.
type RawLog struct {
	dir   string
	clock timeutil.Clock

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewRawLog creates the log directory if needed and returns a writer for
// it. A nil clock defaults to timeutil.RealClock.
func NewRawLog(dir string, clock timeutil.Clock) (*RawLog, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &RawLog{dir: dir, clock: clock}, nil
}

// WriteLine appends one sentence to the current day's file, rotating first
// if the UTC date has changed since the last write.
func (l *RawLog) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.clock.Now().UTC().Format("2006-01-02")
	if l.file == nil || day != l.day {
		if err := l.rotate(day); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(l.file, line)
	return err
}

func (l *RawLog) rotate(day string) error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	name := filepath.Join(l.dir, "nmea-"+day+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	l.file = f
	l.day = day
	monitoring.Logf("nmea: logging to %s", name)
	return nil
}

// Close closes the current file, if any.
func (l *RawLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
