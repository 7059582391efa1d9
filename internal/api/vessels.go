package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/httputil"
)

// DefaultVesselLimit and MaxVesselLimit bound the vessel list endpoint.
const (
	DefaultVesselLimit = 500
	MaxVesselLimit     = 5000
)

func (s *Server) listVessels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	minSeverity := 0
	if v := r.URL.Query().Get("min_severity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			httputil.BadRequest(w, "invalid 'min_severity' parameter (want 0-100)")
			return
		}
		minSeverity = n
	}

	limit := DefaultVesselLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	if limit > MaxVesselLimit {
		limit = MaxVesselLimit
	}

	vessels, err := s.db.ListVessels(minSeverity, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list vessels: %v", err))
		return
	}
	if vessels == nil {
		vessels = []ais.VesselLatest{}
	}
	for i := range vessels {
		vessels[i].SOG = s.convertSOG(vessels[i].SOG)
	}
	httputil.WriteJSONOK(w, vessels)
}

func (s *Server) showVessel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	mmsi := r.PathValue("mmsi")
	vessel, err := s.db.GetVesselLatest(mmsi)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, fmt.Sprintf("vessel with MMSI %s not found", mmsi))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load vessel: %v", err))
		return
	}
	vessel.SOG = s.convertSOG(vessel.SOG)
	httputil.WriteJSONOK(w, vessel)
}

// trackPoint is the JSON view of one stored position report. ais.Point carries
// no serialization tags; the API controls its own output format.
type trackPoint struct {
	MMSI      string    `json:"mmsi"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	SOG       *float64  `json:"sog,omitempty"`
	COG       *float64  `json:"cog,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
}

func trackPointOf(p ais.Point) trackPoint {
	return trackPoint{
		MMSI:      p.MMSI,
		Timestamp: p.Timestamp,
		Lat:       p.Lat,
		Lon:       p.Lon,
		SOG:       p.SOG,
		COG:       p.COG,
		Heading:   p.Heading,
	}
}

func (s *Server) showVesselTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	var since, until time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'since' parameter (want RFC 3339)")
			return
		}
		since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'until' parameter (want RFC 3339)")
			return
		}
		until = t
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}

	points, err := s.db.TrackPoints(r.PathValue("mmsi"), since, until, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load track: %v", err))
		return
	}

	track := make([]trackPoint, len(points))
	for i, p := range points {
		track[i] = trackPointOf(p)
		track[i].SOG = s.convertSOG(track[i].SOG)
	}
	httputil.WriteJSONOK(w, track)
}
