// Package loader reads AIS position reports from delimited track dumps.
//
// Supported inputs are .csv (comma), .dat (tab, with comma and whitespace
// fallback) and zstd-compressed variants of either (.csv.zst, .dat.zst).
// Column names are normalised so the common aliases found in public AIS
// exports (latitude/longitude, base_date_time and friends) all map onto the
// canonical mmsi, timestamp, lat, lon, sog, cog, heading set.
package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/monitoring"
)

// DefaultChunkSize is the row batch size used by Stream when the caller
// passes a non-positive chunk size.
const DefaultChunkSize = 10000

var requiredColumns = []string{"mmsi", "timestamp", "lat", "lon"}

// Column aliases, tried in order. The canonical name always wins if the
// file already carries it.
var (
	latAliases       = []string{"latitude", "y"}
	lonAliases       = []string{"longitude", "lng", "long", "x"}
	timestampAliases = []string{"base_date_time", "datetime", "date_time", "time", "date"}
)

// Load reads every valid point from the file at path and returns them
// sorted by timestamp. Rows that fail to parse are skipped and counted in
// the second return value. A file with data rows but no valid points is an
// error; a file with only a header yields an empty slice.
func Load(path string) ([]ais.Point, int, error) {
	src, err := openData(path)
	if err != nil {
		return nil, 0, err
	}
	defer src.Close()

	rr, parser, err := newRecordSource(src, path)
	if err != nil {
		if errors.Is(err, errEmptyInput) {
			return nil, 0, fmt.Errorf("failed to read file %s: empty input", path)
		}
		return nil, 0, err
	}

	var pts []ais.Point
	rows := 0
	skipped := 0
	for {
		fields, err := rr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		rows++
		p, perr := parser.parse(fields)
		if perr != nil {
			monitoring.Logf("loader: row %d: %v, skipping", rows, perr)
			skipped++
			continue
		}
		pts = append(pts, p)
	}

	if skipped > 0 {
		monitoring.Logf("loader: skipped %d invalid rows out of %d", skipped, rows)
	}
	if rows > 0 && len(pts) == 0 {
		return nil, skipped, fmt.Errorf("no valid AIS points found in %s", path)
	}

	sort.SliceStable(pts, func(i, j int) bool {
		return pts[i].Timestamp.Before(pts[j].Timestamp)
	})
	return pts, skipped, nil
}

var errEmptyInput = errors.New("empty input")

// openData opens path, transparently decompressing .zst files.
func openData(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data file not found: %s", path)
	}
	if filepath.Ext(path) != ".zst" {
		return f, nil
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}
	return &zstReadCloser{dec: dec, f: f}, nil
}

type zstReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// recordReader yields one row of fields at a time, io.EOF at end of input.
type recordReader interface {
	Read() ([]string, error)
}

// csvRecords adapts encoding/csv for comma and tab delimited files.
type csvRecords struct{ r *csv.Reader }

func (c *csvRecords) Read() ([]string, error) { return c.r.Read() }

// fieldsRecords splits rows on runs of whitespace, for space-padded .dat
// dumps that never quote their fields.
type fieldsRecords struct{ s *bufio.Scanner }

func (f *fieldsRecords) Read() ([]string, error) {
	for f.s.Scan() {
		if fields := strings.Fields(f.s.Text()); len(fields) > 0 {
			return fields, nil
		}
	}
	if err := f.s.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// newRecordSource reads the header, resolves the delimiter and column
// layout, and returns a reader positioned at the first data row.
func newRecordSource(src io.Reader, path string) (recordReader, *rowParser, error) {
	br := bufio.NewReader(src)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	header = strings.TrimRight(header, "\r\n")
	if header == "" {
		return nil, nil, errEmptyInput
	}

	delim := detectDelimiter(path, header)

	var names []string
	var rr recordReader
	switch delim {
	case 0:
		names = strings.Fields(header)
		rr = &fieldsRecords{s: bufio.NewScanner(br)}
	default:
		names, err = splitDelimited(header, delim)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		cr := csv.NewReader(br)
		cr.Comma = delim
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		rr = &csvRecords{r: cr}
	}

	parser, err := newRowParser(names)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rr, parser, nil
}

// detectDelimiter picks the field separator. Comma files are taken at face
// value; tab-default .dat files are sniffed against the header so comma or
// space-padded variants still load.
func detectDelimiter(path string, header string) rune {
	name := strings.TrimSuffix(path, ".zst")
	if filepath.Ext(name) != ".dat" {
		return ','
	}
	if strings.ContainsRune(header, '\t') {
		return '\t'
	}
	if strings.ContainsRune(header, ',') {
		return ','
	}
	return 0
}

func splitDelimited(line string, delim rune) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = delim
	return cr.Read()
}

// rowParser maps resolved column positions onto point fields.
type rowParser struct {
	mmsi, timestamp, lat, lon int
	sog, cog, heading         int // -1 when the column is absent
}

func newRowParser(header []string) (*rowParser, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	resolve := func(canonical string, aliases []string) int {
		if i, ok := idx[canonical]; ok {
			return i
		}
		for _, a := range aliases {
			if i, ok := idx[a]; ok {
				return i
			}
		}
		return -1
	}

	p := &rowParser{
		mmsi:      resolve("mmsi", nil),
		timestamp: resolve("timestamp", timestampAliases),
		lat:       resolve("lat", latAliases),
		lon:       resolve("lon", lonAliases),
		sog:       resolve("sog", nil),
		cog:       resolve("cog", nil),
		heading:   resolve("heading", nil),
	}

	var missing []string
	for col, i := range map[string]int{"mmsi": p.mmsi, "timestamp": p.timestamp, "lat": p.lat, "lon": p.lon} {
		if i < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		found := make([]string, 0, len(idx))
		for name := range idx {
			found = append(found, name)
		}
		sort.Strings(found)
		return nil, fmt.Errorf("data file missing required columns: %v (found columns: %v)", missing, found)
	}
	return p, nil
}

func (p *rowParser) field(fields []string, i int) (string, bool) {
	if i < 0 || i >= len(fields) {
		return "", false
	}
	return fields[i], true
}

func (p *rowParser) parse(fields []string) (ais.Point, error) {
	var pt ais.Point

	raw, ok := p.field(fields, p.mmsi)
	mmsi := strings.TrimSpace(raw)
	if !ok || mmsi == "" {
		return pt, errors.New("empty MMSI")
	}

	tsRaw, ok := p.field(fields, p.timestamp)
	if !ok {
		return pt, errors.New("missing timestamp")
	}
	ts, err := parseTimestamp(tsRaw)
	if err != nil {
		return pt, err
	}

	lat, ok := safeFloat(fields, p.lat)
	lon, lok := safeFloat(fields, p.lon)
	if !ok || !lok {
		return pt, errors.New("invalid lat/lon")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return pt, fmt.Errorf("lat/lon out of range (lat=%.4f, lon=%.4f)", lat, lon)
	}

	pt = ais.Point{
		MMSI:      mmsi,
		Timestamp: ts,
		Lat:       lat,
		Lon:       lon,
	}
	if sog, ok := safeFloat(fields, p.sog); ok {
		pt.SOG = &sog
	}
	if cog, ok := safeFloat(fields, p.cog); ok && cog >= 0 && cog <= 360 {
		pt.COG = &cog
	}
	if hdg, ok := safeFloat(fields, p.heading); ok && hdg >= 0 && hdg <= 360 {
		pt.Heading = &hdg
	}
	return pt, nil
}

func safeFloat(fields []string, i int) (float64, bool) {
	if i < 0 || i >= len(fields) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Timestamp layouts tried after the epoch-seconds form, naive stamps are
// taken as UTC. The fractional-second forms also match whole seconds.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
