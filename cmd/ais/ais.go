// Command ais runs the vessel.report daemon: the sqlite store, the REST API,
// the replay engine, and the cooldown purge loop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/vessel.report/internal/ais/pipeline"
	"github.com/banshee-data/vessel.report/internal/ais/replay"
	"github.com/banshee-data/vessel.report/internal/api"
	"github.com/banshee-data/vessel.report/internal/broadcast"
	"github.com/banshee-data/vessel.report/internal/config"
	"github.com/banshee-data/vessel.report/internal/db"
	"github.com/banshee-data/vessel.report/internal/timeutil"
	"github.com/banshee-data/vessel.report/internal/units"
	"github.com/banshee-data/vessel.report/internal/version"
)

var (
	dbFile        = flag.String("db", "ais.db", "Path to the SQLite database file")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	dataDir       = flag.String("data-dir", "", "Directory replay input files must live under (empty allows any readable path)")
	configPath    = flag.String("config", "", "Detection tuning JSON file (empty uses built-in defaults)")
	recordPos     = flag.Bool("record-positions", true, "Persist per-point position history during replays")
	debugLog      = flag.Bool("debug", false, "Enable diagnostic logging")
	traceLog      = flag.Bool("trace", false, "Enable per-point trace logging (implies -debug)")
	purgeInterval = flag.Duration("purge-interval", time.Hour, "How often to purge stale alert cooldowns")
	purgeMaxAge   = flag.Duration("cooldown-retention", 7*24*time.Hour, "Age past which cooldown entries are purged")
	displayUnits  = flag.String("units", units.KN, "Speed units in API responses (kn, mps, kmph, mph)")
)

func main() {
	// "ais migrate <command>" runs the migration CLI instead of the daemon.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		migrateMain(os.Args[2:])
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("invalid -units %q (want one of: %s)", *displayUnits, units.GetValidUnitsString())
	}

	var diagWriter, traceWriter io.Writer
	if *debugLog || *traceLog {
		diagWriter = os.Stderr
	}
	if *traceLog {
		traceWriter = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diagWriter, traceWriter)
	replay.SetLogWriters(os.Stderr, diagWriter)

	database, err := db.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	detection := config.EmptyDetectionConfig()
	if *configPath != "" {
		detection, err = config.LoadDetectionConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load detection config: %v", err)
		}
		log.Printf("loaded detection tuning from %s", *configPath)
	}

	hub := broadcast.NewHub()
	replayManager := replay.NewManager(replay.Options{
		Store:           replay.DBStore{DB: database},
		Hub:             hub,
		Detection:       detection,
		DataDir:         *dataDir,
		RecordPositions: *recordPos,
	})

	log.Printf("vessel.report %s (%s) serving %s on %s", version.Version, version.GitSHA, *dbFile, *listen)

	// Create a wait group for the HTTP server, purge loop, and hub log routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// purge stale cooldown entries on a timer
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipeline.RunCooldownPurge(ctx, timeutil.RealClock{}, database, *purgeInterval, *purgeMaxAge)
		log.Print("purge routine terminated")
	}()

	// mirror pipeline events into the process log; replay ticks only when
	// diagnostics are on
	wg.Add(1)
	go func() {
		defer wg.Done()
		events, cancel := hub.Subscribe(0)
		defer cancel()
		for {
			select {
			case payload, ok := <-events:
				if !ok {
					return
				}
				var envelope struct {
					Kind string `json:"kind"`
				}
				if err := json.Unmarshal(payload, &envelope); err != nil {
					continue
				}
				if envelope.Kind == broadcast.KindTick && !*debugLog && !*traceLog {
					continue
				}
				log.Printf("[Hub] %s", payload)
			case <-ctx.Done():
				log.Print("hub log routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(database, replayManager, *displayUnits).ServeMux()
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		if err := replayManager.Shutdown(shutdownCtx); err != nil {
			log.Printf("replay shutdown error: %v", err)
		}

		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Print("Graceful shutdown complete")
}

// migrateMain parses the migrate subcommand's own flags and hands the
// remaining arguments to the migration dispatcher.
func migrateMain(args []string) {
	fs := flag.NewFlagSet("ais migrate", flag.ExitOnError)
	dbPath := fs.String("db-path", "ais.db", "Path to the SQLite database file")
	fs.Usage = func() { db.PrintMigrateHelp() }
	fs.Parse(args)

	db.RunMigrateCommand(fs.Args(), *dbPath)
}
