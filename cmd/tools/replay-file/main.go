// Command replay-file runs a recorded AIS position file through the
// detection pipeline without the HTTP surface, prints an alert summary, and
// optionally renders per-vessel speed-profile PNGs for the worst offenders.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/ais/loader"
	"github.com/banshee-data/vessel.report/internal/ais/pipeline"
	"github.com/banshee-data/vessel.report/internal/ais/replay"
	"github.com/banshee-data/vessel.report/internal/config"
	"github.com/banshee-data/vessel.report/internal/db"
	"github.com/banshee-data/vessel.report/internal/security"
)

func main() {
	file := flag.String("file", "", "AIS position file to replay (.csv, .txt, or .zst)")
	dbFile := flag.String("db", "", "Write results to this SQLite database instead of memory")
	configPath := flag.String("config", "", "Detection tuning JSON file (empty uses built-in defaults)")
	stream := flag.Bool("stream", false, "Stream the file in chunks instead of loading it whole")
	batch := flag.Int("batch", 1000, "Chunk size for -stream")
	plotDir := flag.String("plot-dir", "", "Directory for worst-offender speed-profile PNGs (empty disables)")
	top := flag.Int("top", 5, "Number of worst offenders to report")
	recordPos := flag.Bool("record-positions", false, "Persist per-point position history (implied by -plot-dir)")
	verbose := flag.Bool("v", false, "Enable diagnostic logging")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: input file is required (-file)")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(*file); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read %s: %v\n", *file, err)
		os.Exit(1)
	}

	var diag io.Writer
	if *verbose {
		diag = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, nil)

	detection := config.EmptyDetectionConfig()
	if *configPath != "" {
		var err error
		detection, err = config.LoadDetectionConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load detection config: %v", err)
		}
	}

	recordPositions := *recordPos || *plotDir != ""

	// Pick the store: a throwaway in-memory one by default, sqlite with -db.
	var store replay.Store
	var mem *pipeline.MemoryStore
	var database *db.DB
	if *dbFile != "" {
		var err error
		database, err = db.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		store = replay.DBStore{DB: database}
	} else {
		mem = pipeline.NewMemoryStore()
		store = replay.MemoryStore{Mem: mem}
	}

	pipe := pipeline.New(pipeline.Config{
		Detection:       detection,
		RecordPositions: recordPositions,
	})

	var (
		alerts    []ais.Alert
		processed int
		failed    int
	)
	processPoints := func(pts []ais.Point) error {
		for _, p := range pts {
			tx, err := store.BeginPointTx()
			if err != nil {
				return fmt.Errorf("store unavailable: %w", err)
			}
			pointAlerts, err := pipe.ProcessPoint(tx, p)
			if err == nil {
				err = tx.Commit()
			}
			if err != nil {
				tx.Rollback()
				failed++
				log.Printf("point %d (MMSI %s): %v", processed+failed, p.MMSI, err)
				continue
			}
			processed++
			alerts = append(alerts, pointAlerts...)
		}
		return nil
	}

	start := time.Now()
	var skipped int
	if *stream {
		_, n, err := loader.Stream(*file, *batch, processPoints)
		if err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		skipped = n
	} else {
		pts, n, err := loader.Load(*file)
		if err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		skipped = n
		if err := processPoints(pts); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	offenders := rankOffenders(alerts, *top)
	printSummary(*file, elapsed, processed, failed, skipped, pipe.Tracks().VesselCount(), alerts, offenders)

	if *plotDir != "" {
		points := func(mmsi string) []ais.Point {
			if mem != nil {
				return mem.Positions(mmsi)
			}
			pts, err := database.TrackPoints(mmsi, time.Time{}, time.Time{}, 0)
			if err != nil {
				log.Printf("track for %s: %v", mmsi, err)
				return nil
			}
			return pts
		}
		n, err := renderSpeedProfiles(*plotDir, offenders, points)
		if err != nil {
			log.Fatalf("Plotting failed: %v", err)
		}
		fmt.Printf("\nSpeed profiles: %s (%d files)\n", *plotDir, n)
	}
}

// offender aggregates one vessel's alert record for ranking.
type offender struct {
	MMSI        string
	Alerts      int
	MaxSeverity int
}

// rankOffenders orders vessels by alert count, then peak severity, and
// returns the top n.
func rankOffenders(alerts []ais.Alert, n int) []offender {
	byMMSI := make(map[string]*offender)
	for i := range alerts {
		o, ok := byMMSI[alerts[i].MMSI]
		if !ok {
			o = &offender{MMSI: alerts[i].MMSI}
			byMMSI[alerts[i].MMSI] = o
		}
		o.Alerts++
		if alerts[i].Severity > o.MaxSeverity {
			o.MaxSeverity = alerts[i].Severity
		}
	}

	ranked := make([]offender, 0, len(byMMSI))
	for _, o := range byMMSI {
		ranked = append(ranked, *o)
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Alerts != ranked[b].Alerts {
			return ranked[a].Alerts > ranked[b].Alerts
		}
		if ranked[a].MaxSeverity != ranked[b].MaxSeverity {
			return ranked[a].MaxSeverity > ranked[b].MaxSeverity
		}
		return ranked[a].MMSI < ranked[b].MMSI
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func printSummary(file string, elapsed time.Duration, processed, failed, skipped, vessels int, alerts []ais.Alert, offenders []offender) {
	fmt.Println("\n========== Replay Summary ==========")
	fmt.Printf("File: %s\n", file)
	fmt.Printf("Processed: %d points in %s (%d failed, %d rows skipped)\n", processed, elapsed.Round(time.Millisecond), failed, skipped)
	fmt.Printf("Vessels: %d\n", vessels)
	fmt.Printf("Alerts: %d\n", len(alerts))
	if len(alerts) == 0 {
		return
	}

	byType := make(map[string]int)
	severities := make([]float64, len(alerts))
	for i := range alerts {
		byType[string(alerts[i].Type)]++
		severities[i] = float64(alerts[i].Severity)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %s: %d\n", t, byType[t])
	}

	sort.Float64s(severities)
	mean := stat.Mean(severities, nil)
	stddev := stat.StdDev(severities, nil)
	if math.IsNaN(stddev) {
		stddev = 0
	}
	fmt.Printf("Severity: mean %.1f, stddev %.1f, p50 %.0f, p95 %.0f, max %.0f\n",
		mean, stddev,
		stat.Quantile(0.5, stat.Empirical, severities, nil),
		stat.Quantile(0.95, stat.Empirical, severities, nil),
		severities[len(severities)-1])

	fmt.Println("Worst offenders:")
	for _, o := range offenders {
		fmt.Printf("  %s  %d alerts  max severity %d\n", o.MMSI, o.Alerts, o.MaxSeverity)
	}
}

// renderSpeedProfiles writes one SOG-over-time PNG per offender. Vessels
// with no stored speed samples are skipped.
func renderSpeedProfiles(dir string, offenders []offender, points func(mmsi string) []ais.Point) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create plot dir: %w", err)
	}

	written := 0
	for _, o := range offenders {
		pts := points(o.MMSI)

		series := make(plotter.XYs, 0, len(pts))
		var t0 time.Time
		for _, p := range pts {
			if p.SOG == nil {
				continue
			}
			if t0.IsZero() {
				t0 = p.Timestamp
			}
			series = append(series, plotter.XY{
				X: p.Timestamp.Sub(t0).Minutes(),
				Y: *p.SOG,
			})
		}
		if len(series) == 0 {
			log.Printf("no speed samples for MMSI %s, skipping plot", o.MMSI)
			continue
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("MMSI %s speed profile (%d alerts)", o.MMSI, o.Alerts)
		p.X.Label.Text = "Elapsed (min)"
		p.Y.Label.Text = "SOG (kn)"

		line, err := plotter.NewLine(series)
		if err != nil {
			return written, err
		}
		line.Width = vg.Points(1)
		p.Add(line)

		name := filepath.Join(dir, fmt.Sprintf("speed_%s.png", security.SanitizeFilename(o.MMSI)))
		if err := p.Save(10*vg.Inch, 4*vg.Inch, name); err != nil {
			return written, fmt.Errorf("failed to save %s: %w", name, err)
		}
		written++
	}
	return written, nil
}
