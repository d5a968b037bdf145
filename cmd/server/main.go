package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"epinet/internal/config"
	"epinet/internal/handler"
	"epinet/internal/hub"
	"epinet/internal/report"
	"epinet/internal/repository"
	"epinet/internal/repository/sqlite"
	"epinet/internal/service"
	"epinet/internal/watcher"

	"golang.org/x/sync/errgroup"
)

//go:embed web/*
var webFS embed.FS

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Config file path (default: search EPINET_CONFIG, ./epinet.yaml, user config dir)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	pace := flag.String("pace", "", "Run pace: paused, slow, normal, fast (overrides config)")
	scenarioFile := flag.String("scenario", "", "Scenario file (overrides config)")
	reportEvery := flag.Int("report", 0, "Print a text report to stdout every N steps (0 disables)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting epinet server...")

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *pace != "" {
		cfg.Pace = config.ParsePace(*pace)
	}
	if *scenarioFile != "" {
		cfg.Scenario = config.Scenario{File: *scenarioFile}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if path != "" {
		log.Printf("Config loaded: %s", path)
	}
	log.Printf("Configuration:\n%s", cfg.Summary())

	// Initialize SQLite repository
	var repo repository.Repository
	if cfg.Features.Persistence.Enabled {
		sqliteRepo, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer sqliteRepo.Close()
		repo = sqliteRepo
		log.Printf("Database opened: %s", cfg.Database.Path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := service.NewEventBus()

	simSvc, err := service.NewSimulationService(ctx, cfg.Scenario, cfg.EffectiveRun(), repo, eventBus)
	if err != nil {
		log.Fatalf("Failed to start simulation: %v", err)
	}
	if *reportEvery > 0 {
		simSvc.AddObserver(report.NewTextObserver(os.Stdout, *reportEvery))
	}

	g, gctx := errgroup.WithContext(ctx)

	simSvc.Start(gctx)
	defer simSvc.Stop()

	// Setup routes
	mux := http.NewServeMux()
	handler.NewSimulationHandler(simSvc, cfg.Features).Register(mux)

	if cfg.Features.SSEEvents.Enabled {
		sseHub := hub.New().WithInitial(func() service.Event {
			return service.Event{Type: service.EventSnapshot, Payload: simSvc.Snapshot()}
		})
		g.Go(func() error {
			sseHub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			sseHub.Forward(gctx, eventBus)
			return nil
		})
		mux.Handle("GET /events", sseHub)
	}

	if cfg.Features.HotReload.Enabled {
		if cfg.Scenario.File == "" {
			log.Printf("Hot reload enabled but no scenario file configured, skipping")
		} else {
			w := watcher.New(cfg.Scenario.File, simSvc.Reload)
			g.Go(func() error {
				if err := w.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("Scenario watcher stopped: %v", err)
				}
				return nil
			})
		}
	}

	// Static files from embedded filesystem
	webContent, err := fs.Sub(webFS, "web")
	if err != nil {
		log.Fatalf("Failed to get embedded web content: %v", err)
	}
	mux.Handle("/", http.FileServer(http.FS(webContent)))

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}
	if cfg.Features.SSEEvents.Enabled {
		// Event streams stay open far longer than any write timeout
		server.WriteTimeout = 0
	}

	g.Go(func() error {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}

	log.Println("Server stopped")
}

// loadConfig loads an explicit config file, or searches the default locations
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
