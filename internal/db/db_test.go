package db

import (
	"testing"
)

// TestPragmasApplied verifies Open configures the connection pragmas the
// write path depends on (WAL journaling, busy timeout, relaxed sync).
func TestPragmasApplied(t *testing.T) {
	db, err := Open(t.TempDir() + "/pragmas.db")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	pragmas := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"synchronous", "1"}, // NORMAL
		{"temp_store", "2"},  // MEMORY
	}
	for _, p := range pragmas {
		var got string
		if err := db.QueryRow("PRAGMA " + p.name).Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s query failed: %v", p.name, err)
		}
		if got != p.want {
			t.Errorf("PRAGMA %s = %q, want %q", p.name, got, p.want)
		}
	}
}

// TestBeginPointTxCommit verifies that committed point transactions are
// visible afterwards
func TestBeginPointTxCommit(t *testing.T) {
	db := newTestDB(t)

	tx, err := db.BeginPointTx()
	if err != nil {
		t.Fatalf("BeginPointTx failed: %v", err)
	}
	if err := tx.UpsertVesselLatest(testPoint("367000001", 0, 47.6, -122.3)); err != nil {
		t.Fatalf("UpsertVesselLatest in tx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	n, err := db.VesselCount()
	if err != nil {
		t.Fatalf("VesselCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 vessel after commit, got %d", n)
	}
}

// TestBeginPointTxRollback verifies that rolled-back writes leave no trace
func TestBeginPointTxRollback(t *testing.T) {
	db := newTestDB(t)

	tx, err := db.BeginPointTx()
	if err != nil {
		t.Fatalf("BeginPointTx failed: %v", err)
	}
	if err := tx.UpsertVesselLatest(testPoint("367000001", 0, 47.6, -122.3)); err != nil {
		t.Fatalf("UpsertVesselLatest in tx failed: %v", err)
	}
	if err := tx.InsertPosition(testPoint("367000001", 0, 47.6, -122.3)); err != nil {
		t.Fatalf("InsertPosition in tx failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	vessels, err := db.VesselCount()
	if err != nil {
		t.Fatalf("VesselCount failed: %v", err)
	}
	if vessels != 0 {
		t.Errorf("Expected 0 vessels after rollback, got %d", vessels)
	}
	positions, err := db.PositionCount()
	if err != nil {
		t.Fatalf("PositionCount failed: %v", err)
	}
	if positions != 0 {
		t.Errorf("Expected 0 positions after rollback, got %d", positions)
	}
}
