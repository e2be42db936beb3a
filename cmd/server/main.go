package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/broadcast"
	"github.com/cardio-live/cardiolive/internal/config"
	"github.com/cardio-live/cardiolive/internal/control"
	"github.com/cardio-live/cardiolive/internal/directory"
	"github.com/cardio-live/cardiolive/internal/feed"
	"github.com/cardio-live/cardiolive/internal/frontend"
	"github.com/cardio-live/cardiolive/internal/handoff"
	"github.com/cardio-live/cardiolive/internal/health"
	"github.com/cardio-live/cardiolive/internal/live"
	"github.com/cardio-live/cardiolive/internal/session"
	"github.com/cardio-live/cardiolive/internal/storage/sqlite"
	"github.com/cardio-live/cardiolive/internal/telemetry"
	"github.com/cardio-live/cardiolive/internal/ws"
)

func main() {
	simulate := flag.Bool("simulate", false, "Generate simulated heart-rate data")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	envPath := flag.String("env", ".env", "Path to dotenv file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load %s: %v", *envPath, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *simulate {
		cfg.Simulator.Enabled = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("Tracing shutdown: %v", err)
		}
	}()

	var (
		repo session.Repository
		db   *sqlite.Store
	)
	if cfg.Storage.Path != "" {
		db, err = sqlite.Open(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		defer db.Close()
		repo = db
		log.Printf("Sessions persisted to %s", cfg.Storage.Path)
	}

	sessionEvents := make(chan session.Event, 64)
	sessions := session.NewRegistry(repo)
	sessions.SetEvents(sessionEvents)
	if err := sessions.Load(ctx); err != nil {
		log.Fatalf("Failed to load sessions: %v", err)
	}

	var handoffStore handoff.Store
	switch cfg.Handoff.Backend {
	case config.HandoffSQLite:
		handoffStore = db
	default:
		handoffStore = handoff.NewFileStore(cfg.Handoff.Dir)
	}

	samples := live.NewRegistry()
	relay := feed.NewRelay()
	ingest := feed.NewIngestor(samples, relay, feed.Options{
		QueueSize:  cfg.Monitor.QueueSize,
		StaleAfter: cfg.Monitor.StaleAfter,
	})

	var sim *feed.Simulator
	var seed []directory.Participant
	if cfg.Simulator.Enabled {
		sim = feed.NewSimulator(ingest, cfg.Simulator.Participants, cfg.Simulator.Interval, cfg.Simulator.Seed)
		seed = sim.Participants()
	}

	dir, err := directory.Open(directory.Options{
		File:          cfg.Directory.File,
		URL:           cfg.Directory.URL,
		Token:         cfg.Directory.Token,
		LookupTimeout: cfg.Directory.LookupTimeout,
		RetryAfter:    cfg.Directory.RetryAfter,
		Seed:          seed,
	})
	if err != nil {
		log.Fatalf("Failed to open directory: %v", err)
	}

	agg := aggregate.New(sessions, samples, dir, aggregate.Options{
		DefaultAge: cfg.Monitor.DefaultAge,
		AlertHigh:  cfg.Monitor.AlertHigh,
		AlertLow:   cfg.Monitor.AlertLow,
	})
	scheduler := broadcast.NewScheduler(agg, cfg.Monitor.TickInterval)

	checker, err := health.NewChecker()
	if err != nil {
		log.Printf("Process health unavailable: %v", err)
	}

	server := ws.NewServer(ws.Deps{
		Control:   control.NewService(sessions, handoffStore),
		Ingestor:  ingest,
		Registry:  samples,
		Relay:     relay,
		Scheduler: scheduler,
		Health:    checker,
		Frontend:  frontend.Handler(),
	}, ws.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxConns:       cfg.Server.MaxConns,
	})
	scheduler.Attach(server.Views())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingest.Run(gctx)
	})
	g.Go(func() error {
		server.Run(gctx, sessionEvents)
		return nil
	})
	g.Go(func() error {
		return ws.ListenAndServe(gctx, cfg.Server.Host, cfg.Server.Port, server.Handler())
	})

	scheduler.Start(gctx)
	defer scheduler.Stop()

	if sim != nil {
		log.Printf("Starting simulator with %d participants", cfg.Simulator.Participants)
		sim.Start(gctx)
	}

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
	log.Println("Shut down cleanly")
}
