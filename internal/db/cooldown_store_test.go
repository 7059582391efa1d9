package db

import (
	"testing"
	"time"
)

var cooldownBase = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// TestAllowAlertFirstAndSuppressed verifies the basic cooldown cycle
func TestAllowAlertFirstAndSuppressed(t *testing.T) {
	db := newTestDB(t)

	ok, err := db.AllowAlert("367000001", "TELEPORT", cooldownBase, 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected first alert to be allowed")
	}

	// 60s later, still inside the 5 minute window
	ok, err = db.AllowAlert("367000001", "TELEPORT", cooldownBase.Add(time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if ok {
		t.Error("Expected alert inside cooldown window to be suppressed")
	}

	// Exactly at the window boundary the alert fires again
	ok, err = db.AllowAlert("367000001", "TELEPORT", cooldownBase.Add(5*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if !ok {
		t.Error("Expected alert at window boundary to be allowed")
	}
}

// TestAllowAlertKeysArePerMMSIAndRule verifies cooldowns do not leak across
// vessels or rule types
func TestAllowAlertKeysArePerMMSIAndRule(t *testing.T) {
	db := newTestDB(t)

	ok, err := db.AllowAlert("367000001", "TELEPORT", cooldownBase, 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected first alert allowed, got %v, %v", ok, err)
	}

	ok, err = db.AllowAlert("367000001", "TURN_RATE", cooldownBase, 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if !ok {
		t.Error("Expected different rule type to have its own cooldown")
	}

	ok, err = db.AllowAlert("367000002", "TELEPORT", cooldownBase, 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if !ok {
		t.Error("Expected different MMSI to have its own cooldown")
	}
}

// TestAllowAlertAdvancesEventClock verifies an allowed alert restarts the
// window at its own event time
func TestAllowAlertAdvancesEventClock(t *testing.T) {
	db := newTestDB(t)

	if ok, _ := db.AllowAlert("367000001", "TELEPORT", cooldownBase, 5*time.Minute); !ok {
		t.Fatal("Expected first alert allowed")
	}
	if ok, _ := db.AllowAlert("367000001", "TELEPORT", cooldownBase.Add(6*time.Minute), 5*time.Minute); !ok {
		t.Fatal("Expected alert after window allowed")
	}

	// The window now starts at +6m; +8m is only 2m later and is suppressed
	ok, err := db.AllowAlert("367000001", "TELEPORT", cooldownBase.Add(8*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if ok {
		t.Error("Expected alert 2m after the advanced clock to be suppressed")
	}
}

// TestAllowAlertOutOfOrderEvents verifies stale events cannot rewind the
// stored timestamp
func TestAllowAlertOutOfOrderEvents(t *testing.T) {
	db := newTestDB(t)

	if ok, _ := db.AllowAlert("367000001", "TELEPORT", cooldownBase.Add(10*time.Minute), 5*time.Minute); !ok {
		t.Fatal("Expected first alert allowed")
	}

	// An event from before the recorded alert is suppressed
	ok, err := db.AllowAlert("367000001", "TELEPORT", cooldownBase, 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if ok {
		t.Error("Expected stale out-of-order event to be suppressed")
	}

	// And the clock still reflects the +10m alert: +12m stays suppressed
	ok, err = db.AllowAlert("367000001", "TELEPORT", cooldownBase.Add(12*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if ok {
		t.Error("Expected clock to remain at the newest alert")
	}
}

// TestPurgeCooldowns verifies old rows are removed and fresh ones kept
func TestPurgeCooldowns(t *testing.T) {
	db := newTestDB(t)

	if ok, _ := db.AllowAlert("367000001", "TELEPORT", cooldownBase, 5*time.Minute); !ok {
		t.Fatal("Expected alert allowed")
	}
	if ok, _ := db.AllowAlert("367000002", "TELEPORT", cooldownBase.Add(8*24*time.Hour), 5*time.Minute); !ok {
		t.Fatal("Expected alert allowed")
	}

	removed, err := db.PurgeCooldowns(cooldownBase.Add(7 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("PurgeCooldowns failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 purged row, got %d", removed)
	}

	n, err := db.CooldownCount()
	if err != nil {
		t.Fatalf("CooldownCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 remaining cooldown row, got %d", n)
	}

	// The purged key starts fresh
	ok, err := db.AllowAlert("367000001", "TELEPORT", cooldownBase.Add(time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("AllowAlert failed: %v", err)
	}
	if !ok {
		t.Error("Expected purged key to allow alerts again")
	}
}
