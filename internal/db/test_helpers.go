package db

import (
	"os"
	"testing"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais"
)

// Helper functions for creating pointer values
func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

// openTestDB opens a file-backed database named after the test and registers
// cleanup of the database and its WAL sidecar files. The schema is left
// untouched; callers that want the latest schema use newTestDB.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	database, err := Open(fname)
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
		os.Remove(fname)
		os.Remove(fname + "-shm")
		os.Remove(fname + "-wal")
	})
	return database
}

// newTestDB opens a test database migrated to the latest schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	database := openTestDB(t)
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	return database
}

// testPoint builds a position report at a fixed base time plus offsetSec.
func testPoint(mmsi string, offsetSec float64, lat, lon float64) ais.Point {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return ais.Point{
		MMSI:      mmsi,
		Timestamp: base.Add(time.Duration(offsetSec * float64(time.Second))),
		Lat:       lat,
		Lon:       lon,
	}
}
