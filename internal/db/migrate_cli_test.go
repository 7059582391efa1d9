package db

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureLog redirects the standard logger to a buffer for the duration of
// fn and returns what was written.
func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	fn()
	return buf.String()
}

func TestPrintMigrateHelp(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("PrintMigrateHelp panicked: %v", r)
		}
	}()
	PrintMigrateHelp()
}

func TestRunMigrateCommandHelp(t *testing.T) {
	// "help" is the only action that neither exits the process nor needs
	// the database, so it is the one full-dispatch path a test can drive.
	dbPath := filepath.Join(t.TempDir(), "help.db")

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RunMigrateCommand with help panicked: %v", r)
		}
	}()
	RunMigrateCommand([]string{"help"}, dbPath)
}

func TestMigrateActionUp(t *testing.T) {
	database := openTestDB(t)

	out := captureLog(t, func() {
		if err := runMigrateAction(database, "up", nil); err != nil {
			t.Errorf("up action failed: %v", err)
		}
	})
	if !strings.Contains(out, "schema at version") {
		t.Errorf("up action did not report the resulting version: %q", out)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version == 0 || dirty {
		t.Errorf("after up: version=%d dirty=%v, want version>0 and clean", version, dirty)
	}
}

func TestMigrateActionDown(t *testing.T) {
	database := openTestDB(t)
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	before, _, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}

	captureLog(t, func() {
		if err := runMigrateAction(database, "down", nil); err != nil {
			t.Errorf("down action failed: %v", err)
		}
	})

	after, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if after >= before || dirty {
		t.Errorf("after down: version went %d -> %d (dirty=%v), want a clean decrease", before, after, dirty)
	}
}

func TestMigrateActionStatus(t *testing.T) {
	database := openTestDB(t)
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	// status writes to stdout, not the logger
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	err := runMigrateAction(database, "status", nil)
	w.Close()
	os.Stdout = old
	if err != nil {
		t.Fatalf("status action failed: %v", err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, r)
	if !strings.Contains(buf.String(), "Migration status") {
		t.Errorf("status output missing heading: %q", buf.String())
	}
}

func TestMigrateActionVersion(t *testing.T) {
	database := openTestDB(t)

	captureLog(t, func() {
		if err := runMigrateAction(database, "version", []string{"1"}); err != nil {
			t.Errorf("version action failed: %v", err)
		}
	})

	version, _, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("schema at version %d, want 1", version)
	}
}

func TestMigrateActionBadArguments(t *testing.T) {
	database := openTestDB(t)

	// version and force both reject malformed arguments before doing any
	// work; force in particular must fail before its interactive prompt.
	for _, action := range []string{"version", "force"} {
		for _, args := range [][]string{nil, {"x"}, {"-3"}, {"1", "2"}} {
			if err := runMigrateAction(database, action, args); err == nil {
				t.Errorf("%s %v: expected an argument error", action, args)
			}
		}
	}
}
