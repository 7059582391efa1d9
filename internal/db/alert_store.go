package db

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais"
)

// DefaultAlertLimit and MaxAlertLimit bound list queries.
const (
	DefaultAlertLimit = 100
	MaxAlertLimit     = 1000
)

// AlertFilter narrows alert queries. Zero values mean "no constraint".
type AlertFilter struct {
	MMSI        string
	Type        string
	Status      string
	MinSeverity int
	MaxSeverity int
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

func (f AlertFilter) whereClause() (string, []any) {
	var conds []string
	var args []any
	if f.MMSI != "" {
		conds = append(conds, "mmsi = ?")
		args = append(args, f.MMSI)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.MinSeverity > 0 {
		conds = append(conds, "severity >= ?")
		args = append(args, f.MinSeverity)
	}
	if f.MaxSeverity > 0 {
		conds = append(conds, "severity <= ?")
		args = append(args, f.MaxSeverity)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp_unix_nanos >= ?")
		args = append(args, nanosOf(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp_unix_nanos <= ?")
		args = append(args, nanosOf(f.Until))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// InsertAlert persists a new alert and fills in its assigned id. A missing
// status is stored as "new".
func (db *DB) InsertAlert(a *ais.Alert) error { return insertAlert(db.DB, a) }

// InsertAlert is the transactional variant used by the pipeline.
func (tx *Tx) InsertAlert(a *ais.Alert) error { return insertAlert(tx.Tx, a) }

func insertAlert(q dbtx, a *ais.Alert) error {
	status := a.Status
	if status == "" {
		status = ais.StatusNew
	}
	if !ais.StatusValid(status) {
		return fmt.Errorf("invalid alert status %q", status)
	}

	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}

	res, err := q.Exec(
		`INSERT INTO alerts (timestamp_unix_nanos, mmsi, type, severity, summary, evidence, status, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nanosOf(a.Timestamp), a.MMSI, string(a.Type), a.Severity, a.Summary, string(evidence), status, a.Notes,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.Status = status
	return nil
}

const alertColumns = "id, timestamp_unix_nanos, mmsi, type, severity, summary, evidence, status, notes"

func scanAlert(scan func(dest ...any) error) (ais.Alert, error) {
	var (
		a        ais.Alert
		nanos    int64
		ruleType string
		evidence string
		notes    sql.NullString
	)
	if err := scan(&a.ID, &nanos, &a.MMSI, &ruleType, &a.Severity, &a.Summary, &evidence, &a.Status, &notes); err != nil {
		return a, err
	}
	a.Timestamp = timeOf(nanos)
	a.Type = ais.RuleType(ruleType)
	if notes.Valid {
		n := notes.String
		a.Notes = &n
	}
	if err := json.Unmarshal([]byte(evidence), &a.Evidence); err != nil {
		return a, fmt.Errorf("failed to decode evidence for alert %d: %w", a.ID, err)
	}
	return a, nil
}

// GetAlert fetches one alert by id. Returns sql.ErrNoRows if absent.
func (db *DB) GetAlert(id int64) (*ais.Alert, error) {
	row := db.QueryRow("SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row.Scan)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (db *DB) ListAlerts(f AlertFilter) ([]ais.Alert, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	if limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := f.whereClause()
	args = append(args, limit, offset)
	return db.queryAlerts(where+" ORDER BY timestamp_unix_nanos DESC, id DESC LIMIT ? OFFSET ?", args)
}

// allAlerts returns every alert matching the filter, newest first, with no
// row limit. Only the export paths use it.
func (db *DB) allAlerts(f AlertFilter) ([]ais.Alert, error) {
	where, args := f.whereClause()
	return db.queryAlerts(where+" ORDER BY timestamp_unix_nanos DESC, id DESC", args)
}

func (db *DB) queryAlerts(suffix string, args []any) ([]ais.Alert, error) {
	rows, err := db.Query("SELECT "+alertColumns+" FROM alerts"+suffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []ais.Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// CountAlerts returns the number of alerts matching the filter.
func (db *DB) CountAlerts(f AlertFilter) (int, error) {
	where, args := f.whereClause()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM alerts"+where, args...).Scan(&n)
	return n, err
}

// UpdateAlertStatus moves an alert through the triage workflow. A nil notes
// leaves existing notes untouched.
func (db *DB) UpdateAlertStatus(id int64, status string, notes *string) error {
	if !ais.StatusValid(status) {
		return fmt.Errorf("invalid alert status %q", status)
	}

	var res sql.Result
	var err error
	if notes != nil {
		res, err = db.Exec("UPDATE alerts SET status = ?, notes = ? WHERE id = ?", status, *notes, id)
	} else {
		res, err = db.Exec("UPDATE alerts SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AlertCountsByType returns alert totals grouped by rule type.
func (db *DB) AlertCountsByType(f AlertFilter) (map[string]int, error) {
	where, args := f.whereClause()
	rows, err := db.Query("SELECT type, COUNT(*) FROM alerts"+where+" GROUP BY type", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// AlertCountsByStatus returns alert totals grouped by triage status.
func (db *DB) AlertCountsByStatus(f AlertFilter) (map[string]int, error) {
	where, args := f.whereClause()
	rows, err := db.Query("SELECT status, COUNT(*) FROM alerts"+where+" GROUP BY status", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

// AlertSeverities returns the raw severity values matching the filter, for
// statistical summaries.
func (db *DB) AlertSeverities(f AlertFilter) ([]float64, error) {
	where, args := f.whereClause()
	rows, err := db.Query("SELECT severity FROM alerts"+where+" ORDER BY severity", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ExportAlertsCSV writes every alert matching the filter to w as CSV, newest
// first, evidence JSON-encoded in the last column.
func (db *DB) ExportAlertsCSV(w io.Writer, f AlertFilter) error {
	alerts, err := db.allAlerts(f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Timestamp", "MMSI", "Type", "Severity", "Status", "Summary", "Notes", "Evidence"}); err != nil {
		return err
	}
	for _, a := range alerts {
		evidence, err := json.Marshal(a.Evidence)
		if err != nil {
			return fmt.Errorf("failed to encode evidence for alert %d: %w", a.ID, err)
		}
		notes := ""
		if a.Notes != nil {
			notes = *a.Notes
		}
		row := []string{
			strconv.FormatInt(a.ID, 10),
			a.Timestamp.Format(time.RFC3339Nano),
			a.MMSI,
			string(a.Type),
			strconv.Itoa(a.Severity),
			a.Status,
			a.Summary,
			notes,
			string(evidence),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportAlertsJSON writes every alert matching the filter to w as an indented
// JSON array, newest first.
func (db *DB) ExportAlertsJSON(w io.Writer, f AlertFilter) error {
	alerts, err := db.allAlerts(f)
	if err != nil {
		return err
	}
	if alerts == nil {
		alerts = []ais.Alert{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(alerts)
}

// AlertBuckets returns per-interval alert counts over [since, until), for
// time-series charts. Interval must be positive.
func (db *DB) AlertBuckets(since, until time.Time, interval time.Duration) (map[time.Time]int, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	rows, err := db.Query(
		`SELECT timestamp_unix_nanos FROM alerts
		 WHERE timestamp_unix_nanos >= ? AND timestamp_unix_nanos < ?`,
		nanosOf(since), nanosOf(until))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make(map[time.Time]int)
	for rows.Next() {
		var nanos int64
		if err := rows.Scan(&nanos); err != nil {
			return nil, err
		}
		t := timeOf(nanos).Truncate(interval)
		buckets[t]++
	}
	return buckets, rows.Err()
}
