package db

import (
	"database/sql"
	"errors"
	"time"
)

// AllowAlert checks the per-(mmsi, rule) cooldown against event time ts and,
// when the alert is allowed, advances the stored timestamp to ts. Returns
// false while a previous alert is still inside the cooldown window.
func (db *DB) AllowAlert(mmsi, ruleType string, ts time.Time, cooldown time.Duration) (bool, error) {
	return allowAlert(db.DB, mmsi, ruleType, ts, cooldown)
}

// AllowAlert is the transactional variant used by the pipeline.
func (tx *Tx) AllowAlert(mmsi, ruleType string, ts time.Time, cooldown time.Duration) (bool, error) {
	return allowAlert(tx.Tx, mmsi, ruleType, ts, cooldown)
}

func allowAlert(q dbtx, mmsi, ruleType string, ts time.Time, cooldown time.Duration) (bool, error) {
	nanos := nanosOf(ts)

	var last int64
	err := q.QueryRow(
		"SELECT last_alert_unix_nanos FROM alert_cooldowns WHERE mmsi = ? AND rule_type = ?",
		mmsi, ruleType).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		_, err := q.Exec(
			`INSERT INTO alert_cooldowns (mmsi, rule_type, last_alert_unix_nanos) VALUES (?, ?, ?)
			 ON CONFLICT(mmsi, rule_type) DO UPDATE SET
			   last_alert_unix_nanos = MAX(last_alert_unix_nanos, excluded.last_alert_unix_nanos)`,
			mmsi, ruleType, nanos)
		return err == nil, err
	}
	if err != nil {
		return false, err
	}

	if ts.Sub(timeOf(last)) < cooldown {
		return false, nil
	}

	// Guarded so a stale event replayed out of order cannot rewind the clock.
	_, err = q.Exec(
		`UPDATE alert_cooldowns SET last_alert_unix_nanos = ?
		 WHERE mmsi = ? AND rule_type = ? AND last_alert_unix_nanos < ?`,
		nanos, mmsi, ruleType, nanos)
	return err == nil, err
}

// PurgeCooldowns deletes cooldown rows whose last alert predates cutoff.
// Returns the number of rows removed.
func (db *DB) PurgeCooldowns(cutoff time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM alert_cooldowns WHERE last_alert_unix_nanos < ?", nanosOf(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CooldownCount returns the number of active cooldown rows.
func (db *DB) CooldownCount() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM alert_cooldowns").Scan(&n)
	return n, err
}
