// Command attention-tracker reads per-frame detections as JSON lines from a
// file, stdin or a serial port, tracks every subject across frames, records
// the session to SQLite and serves the live state over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/attention.report/internal/api"
	"github.com/banshee-data/attention.report/internal/config"
	"github.com/banshee-data/attention.report/internal/db"
	"github.com/banshee-data/attention.report/internal/ingest"
	"github.com/banshee-data/attention.report/internal/monitoring"
	"github.com/banshee-data/attention.report/internal/pipeline"
	"github.com/banshee-data/attention.report/internal/tracking"
	"github.com/banshee-data/attention.report/internal/tracking/debug"
	"github.com/banshee-data/attention.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to tuning JSON (built-in defaults when empty)")
	sourcePath  = flag.String("source", "-", "Detection NDJSON file, or - for stdin")
	serialPort  = flag.String("serial", "", "Read detections from this serial port instead of -source")
	baudRate    = flag.Int("baud", ingest.DefaultBaudRate, "Serial baud rate")
	dbPath      = flag.String("db", "attention.db", "SQLite session database (empty disables recording)")
	listen      = flag.String("listen", ":8080", "HTTP listen address (empty disables the API)")
	policy      = flag.String("policy", "", "Association policy override: greedy or hungarian")
	notes       = flag.String("notes", "", "Free-form notes stored with the session")
	debugMode   = flag.Bool("debug", false, "Log diagnostics and collect per-frame debug records")
	traceMode   = flag.Bool("trace", false, "Log a line per processed frame")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current())
		return
	}

	configureLogging(*debugMode, *traceMode)

	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *policy != "" {
		tuning.AssociationPolicy = policy
	}

	trackerCfg, err := tracking.TrackerConfigFromTuning(tuning)
	if err != nil {
		log.Fatalf("invalid tracker config: %v", err)
	}
	tracker := tracking.NewTracker(trackerCfg)

	src, err := openSource()
	if err != nil {
		log.Fatalf("failed to open detection source: %v", err)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionInfo := db.SessionInfo{
		Policy:          trackerCfg.Associator.Name(),
		GatingDistance:  trackerCfg.GatingDistance,
		MaxMissedFrames: trackerCfg.MaxMissedFrames,
		Notes:           *notes,
	}

	var (
		database *db.DB
		recorder *db.Recorder
	)
	if *dbPath != "" {
		if database, err = db.Open(*dbPath); err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		sessionInfo.StartedAt = time.Now()
		id, err := database.StartSession(ctx, sessionInfo)
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		recorder = db.NewRecorder(database, id)
		log.Printf("recording session %s to %s", id, database.Path())
	}

	// A reset restarts frame numbering, so recording moves to a new session.
	rotateSession := func() {
		if recorder == nil {
			return
		}
		endSession(database, recorder.SessionID())
		sessionInfo.StartedAt = time.Now()
		id, err := database.StartSession(context.Background(), sessionInfo)
		if err != nil {
			monitoring.Logf("failed to start session after reset: %v", err)
			return
		}
		recorder.SetSession(id)
		log.Printf("tracker reset, recording session %s", id)
	}

	var runner *pipeline.Runner
	var server *api.Server
	if *listen != "" {
		var store api.SessionStore
		if database != nil {
			store = database
		}
		server = api.NewServer(store, func() { runner.Reset() })
	}

	runnerCfg := pipeline.Config{
		Tracker:    tracker,
		Collector:  debug.NewCollector(*debugMode),
		Strictness: tuning.GetStrictness(),
		OnReset:    rotateSession,
	}
	if recorder != nil {
		runnerCfg.Recorder = recorder
	}
	if server != nil {
		runnerCfg.Publisher = server
	}
	if runner, err = pipeline.NewRunner(runnerCfg); err != nil {
		log.Fatalf("failed to create runner: %v", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := runner.Run(ctx, src)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("detection source failed: %v", err)
		}
		st := runner.Stats()
		log.Printf("source finished: %d frames, %d detections, %d rejected, %d bad lines",
			st.Frames, st.Detections, st.Rejected, st.DecodeErrors)
		if server == nil {
			stop()
		}
	}()

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, server, database)
		}()
	}

	wg.Wait()
	if recorder != nil {
		endSession(database, recorder.SessionID())
	}
	log.Printf("Graceful shutdown complete")
}

func configureLogging(debugMode, traceMode bool) {
	var diag, trace io.Writer
	if debugMode {
		diag = os.Stderr
	}
	if traceMode {
		trace = os.Stderr
	}
	tracking.SetLogWriters(os.Stderr, diag, trace)
	pipeline.SetLogWriters(os.Stderr, diag, trace)
	monitoring.SetVerbose(debugMode)
}

func openSource() (ingest.LineSource, error) {
	if *serialPort != "" {
		return ingest.OpenSerial(*serialPort, ingest.PortOptions{BaudRate: *baudRate}, ingest.OpenSerialPort)
	}
	return ingest.OpenFile(*sourcePath)
}

func endSession(database *db.DB, id string) {
	if err := database.EndSession(context.Background(), id, time.Now()); err != nil {
		monitoring.Logf("failed to end session %s: %v", id, err)
	}
}

func serveHTTP(ctx context.Context, server *api.Server, database *db.DB) {
	mux := server.ServeMux()
	if database != nil {
		// Admin routes are reachable only over loopback or Tailscale.
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("admin routes disabled: %v", err)
		}
	}

	srv := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	log.Printf("listening on %s", *listen)

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("HTTP server routine stopped")
}
