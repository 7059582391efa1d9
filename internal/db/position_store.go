package db

import (
	"database/sql"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais"
)

// InsertPosition appends a raw position report to the vessel_positions
// history table.
func (db *DB) InsertPosition(p ais.Point) error { return insertPosition(db.DB, p) }

// InsertPosition is the transactional variant used by the pipeline.
func (tx *Tx) InsertPosition(p ais.Point) error { return insertPosition(tx.Tx, p) }

func insertPosition(q dbtx, p ais.Point) error {
	_, err := q.Exec(
		`INSERT INTO vessel_positions (mmsi, timestamp_unix_nanos, lat, lon, sog, cog, heading)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.MMSI, nanosOf(p.Timestamp), p.Lat, p.Lon,
		nullFloat(p.SOG), nullFloat(p.COG), nullFloat(p.Heading),
	)
	return err
}

// TrackPoints returns the stored track for one vessel inside [since, until],
// oldest first. Zero time bounds are open. A non-positive limit returns the
// whole range.
func (db *DB) TrackPoints(mmsi string, since, until time.Time, limit int) ([]ais.Point, error) {
	query := `SELECT mmsi, timestamp_unix_nanos, lat, lon, sog, cog, heading
		 FROM vessel_positions WHERE mmsi = ?`
	args := []any{mmsi}
	if !since.IsZero() {
		query += " AND timestamp_unix_nanos >= ?"
		args = append(args, nanosOf(since))
	}
	if !until.IsZero() {
		query += " AND timestamp_unix_nanos <= ?"
		args = append(args, nanosOf(until))
	}
	query += " ORDER BY timestamp_unix_nanos ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []ais.Point
	for rows.Next() {
		var (
			p     ais.Point
			nanos int64
			sog   sql.NullFloat64
			cog   sql.NullFloat64
			hdg   sql.NullFloat64
		)
		if err := rows.Scan(&p.MMSI, &nanos, &p.Lat, &p.Lon, &sog, &cog, &hdg); err != nil {
			return nil, err
		}
		p.Timestamp = timeOf(nanos)
		p.SOG = floatPtrOf(sog)
		p.COG = floatPtrOf(cog)
		p.Heading = floatPtrOf(hdg)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// PositionCount returns the number of stored position rows.
func (db *DB) PositionCount() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM vessel_positions").Scan(&n)
	return n, err
}
