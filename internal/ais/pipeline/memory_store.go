package pipeline

import (
	"fmt"
	"sync"

	"github.com/banshee-data/vessel.report/internal/ais"
)

// MemoryStore implements Store entirely in memory. It backs the headless
// analysis tools and tests, where a run's alerts are consumed immediately and
// nothing needs to survive the process.
type MemoryStore struct {
	*MemoryCooldowns

	mu        sync.Mutex
	vessels   map[string]ais.VesselLatest
	alerts    []ais.Alert
	positions []ais.Point
	nextID    int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		MemoryCooldowns: NewMemoryCooldowns(),
		vessels:         make(map[string]ais.VesselLatest),
		nextID:          1,
	}
}

// UpsertVesselLatest records p as the vessel's latest snapshot, preserving
// the recorded alert severity across updates.
func (s *MemoryStore) UpsertVesselLatest(p ais.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	severity := 0
	if v, ok := s.vessels[p.MMSI]; ok {
		severity = v.LastAlertSeverity
	}
	s.vessels[p.MMSI] = ais.VesselLatest{
		MMSI:              p.MMSI,
		Timestamp:         p.Timestamp,
		Lat:               p.Lat,
		Lon:               p.Lon,
		SOG:               p.SOG,
		COG:               p.COG,
		Heading:           p.Heading,
		LastAlertSeverity: severity,
	}
	return nil
}

// InsertPosition appends p to the position history.
func (s *MemoryStore) InsertPosition(p ais.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
	return nil
}

// InsertAlert stores a copy of the alert and assigns its id.
func (s *MemoryStore) InsertAlert(a *ais.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextID
	s.nextID++
	if a.Status == "" {
		a.Status = ais.StatusNew
	}
	s.alerts = append(s.alerts, *a)
	return nil
}

// RaiseVesselAlertSeverity lifts the vessel's severity to at least severity.
func (s *MemoryStore) RaiseVesselAlertSeverity(mmsi string, severity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vessels[mmsi]
	if !ok {
		return fmt.Errorf("unknown vessel %s", mmsi)
	}
	if severity > v.LastAlertSeverity {
		v.LastAlertSeverity = severity
		s.vessels[mmsi] = v
	}
	return nil
}

// Alerts returns a copy of all stored alerts in insertion order.
func (s *MemoryStore) Alerts() []ais.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ais.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// VesselLatest returns the stored snapshot for mmsi.
func (s *MemoryStore) VesselLatest(mmsi string) (ais.VesselLatest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vessels[mmsi]
	return v, ok
}

// VesselCount returns the number of tracked vessels.
func (s *MemoryStore) VesselCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vessels)
}

// PositionCount returns the number of recorded positions.
func (s *MemoryStore) PositionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

// Positions returns the recorded position history for mmsi in insertion
// order, or every position when mmsi is empty.
func (s *MemoryStore) Positions(mmsi string) []ais.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ais.Point, 0, len(s.positions))
	for _, p := range s.positions {
		if mmsi == "" || p.MMSI == mmsi {
			out = append(out, p)
		}
	}
	return out
}
