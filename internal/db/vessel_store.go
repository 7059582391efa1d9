package db

import (
	"database/sql"

	"github.com/banshee-data/vessel.report/internal/ais"
)

// UpsertVesselLatest records p as the latest snapshot for its MMSI. On update
// only the kinematic fields move; last_alert_severity is owned by
// RaiseVesselAlertSeverity and is left untouched.
func (db *DB) UpsertVesselLatest(p ais.Point) error { return upsertVesselLatest(db.DB, p) }

// UpsertVesselLatest is the transactional variant used by the pipeline.
func (tx *Tx) UpsertVesselLatest(p ais.Point) error { return upsertVesselLatest(tx.Tx, p) }

func upsertVesselLatest(q dbtx, p ais.Point) error {
	_, err := q.Exec(
		`INSERT INTO vessels_latest (mmsi, timestamp_unix_nanos, lat, lon, sog, cog, heading, last_alert_severity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(mmsi) DO UPDATE SET
		   timestamp_unix_nanos = excluded.timestamp_unix_nanos,
		   lat = excluded.lat,
		   lon = excluded.lon,
		   sog = excluded.sog,
		   cog = excluded.cog,
		   heading = excluded.heading`,
		p.MMSI, nanosOf(p.Timestamp), p.Lat, p.Lon,
		nullFloat(p.SOG), nullFloat(p.COG), nullFloat(p.Heading),
	)
	return err
}

// RaiseVesselAlertSeverity lifts the vessel's recorded severity to at least
// severity. It never lowers it.
func (db *DB) RaiseVesselAlertSeverity(mmsi string, severity int) error {
	return raiseVesselAlertSeverity(db.DB, mmsi, severity)
}

// RaiseVesselAlertSeverity is the transactional variant used by the pipeline.
func (tx *Tx) RaiseVesselAlertSeverity(mmsi string, severity int) error {
	return raiseVesselAlertSeverity(tx.Tx, mmsi, severity)
}

func raiseVesselAlertSeverity(q dbtx, mmsi string, severity int) error {
	_, err := q.Exec(
		"UPDATE vessels_latest SET last_alert_severity = MAX(last_alert_severity, ?) WHERE mmsi = ?",
		severity, mmsi)
	return err
}

const vesselColumns = "mmsi, timestamp_unix_nanos, lat, lon, sog, cog, heading, last_alert_severity"

func scanVessel(scan func(dest ...any) error) (ais.VesselLatest, error) {
	var (
		v     ais.VesselLatest
		nanos int64
		sog   sql.NullFloat64
		cog   sql.NullFloat64
		hdg   sql.NullFloat64
	)
	if err := scan(&v.MMSI, &nanos, &v.Lat, &v.Lon, &sog, &cog, &hdg, &v.LastAlertSeverity); err != nil {
		return v, err
	}
	v.Timestamp = timeOf(nanos)
	v.SOG = floatPtrOf(sog)
	v.COG = floatPtrOf(cog)
	v.Heading = floatPtrOf(hdg)
	return v, nil
}

// GetVesselLatest fetches one vessel snapshot. Returns sql.ErrNoRows if the
// MMSI has never been seen.
func (db *DB) GetVesselLatest(mmsi string) (*ais.VesselLatest, error) {
	row := db.QueryRow("SELECT "+vesselColumns+" FROM vessels_latest WHERE mmsi = ?", mmsi)
	v, err := scanVessel(row.Scan)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVessels returns vessel snapshots with last_alert_severity >= minSeverity,
// most recently updated first. A non-positive limit returns all vessels.
func (db *DB) ListVessels(minSeverity, limit int) ([]ais.VesselLatest, error) {
	query := "SELECT " + vesselColumns + " FROM vessels_latest WHERE last_alert_severity >= ? ORDER BY timestamp_unix_nanos DESC"
	args := []any{minSeverity}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vessels []ais.VesselLatest
	for rows.Next() {
		v, err := scanVessel(rows.Scan)
		if err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vessels, nil
}

// VesselCount returns the number of tracked vessels.
func (db *DB) VesselCount() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM vessels_latest").Scan(&n)
	return n, err
}
