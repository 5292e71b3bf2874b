package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"section_bidding/internal/config"
	"section_bidding/internal/events"
	"section_bidding/internal/handler"
	"section_bidding/internal/service"
	"section_bidding/internal/store"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
)

type application struct {
	config         *config.Config
	logger         *log.Logger
	auctionService *service.AuctionService
	server         *http.Server
	shutdownChan   chan struct{}
	autoCloseDone  chan struct{}
	seasonDone     chan struct{}
}

func main() {
	logger := log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.AutoCloseInterval <= 0 || cfg.SeasonAdvanceInterval <= 0 {
		logger.Fatalf("Scheduler intervals must be positive durations. Check configuration.")
	}

	app := &application{
		config:        cfg,
		logger:        logger,
		shutdownChan:  make(chan struct{}),
		autoCloseDone: make(chan struct{}),
		seasonDone:    make(chan struct{}),
	}

	var catalog service.CatalogStore
	var ledger service.LedgerStore

	switch cfg.StoreDriver {
	case "memory":
		logger.Println("Using in-memory store (no persistence).")
		mem := store.NewMemoryStore()
		catalog, ledger = mem, mem
	default:
		db, err := store.ConnectDB(cfg.DBDriver, cfg.DBDataSourceName)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Printf("Error closing database: %v", err)
			}
		}()

		if err := store.RunMigrations(db, cfg.MigrationsDir); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}

		dbStore := store.NewDBStore(db, cfg.TxMaxRetries)
		catalog, ledger = dbStore, dbStore
	}

	var cache service.SectionCache
	redisClient, err := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Printf("Warning: Redis unavailable, serving reads without cache: %v", err)
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("Error closing Redis client: %v", err)
			}
		}()
		cache = store.NewRedisStore(redisClient)
	}

	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		natsConn, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			logger.Printf("Warning: NATS unavailable, events will not be published: %v", err)
		} else {
			publisher = events.NewPublisher(natsConn, logger)
			defer publisher.Close()
		}
	}

	app.auctionService = service.NewAuctionService(logger, catalog, ledger, cache, publisher, cfg)

	go app.runAutoCloseScheduler()
	go app.runSeasonScheduler()

	router := handler.SetupRoutes(logger, app.auctionService)

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     logger,
	}

	app.serve()
}

func (app *application) serve() {
	app.logger.Printf("Starting server on %s", app.server.Addr)

	errChan := make(chan error)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		app.logger.Fatalf("Server error: %v", err)
	case sig := <-quit:
		app.logger.Printf("Received signal %s. Shutting down server...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.logger.Println("Signaling schedulers to stop...")
	close(app.shutdownChan)
	for _, done := range []chan struct{}{app.autoCloseDone, app.seasonDone} {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			app.logger.Println("A scheduler did not stop in time.")
		}
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Printf("Graceful server shutdown failed: %v", err)
	} else {
		app.logger.Println("Server gracefully stopped.")
	}

	app.logger.Println("Application shut down complete.")
}

// runAutoCloseScheduler sweeps due sections on a fixed interval. Each section
// goes through the same per-section serialization as request traffic, so the
// sweep is safe to run concurrently with live bids.
func (app *application) runAutoCloseScheduler() {
	defer close(app.autoCloseDone)

	app.logger.Println("Scheduler: Running initial auto-close sweep.")
	if closed, err := app.auctionService.AutoCloseDueSections(context.Background(), time.Now()); err != nil {
		app.logger.Printf("Scheduler: Error during initial auto-close sweep: %v", err)
	} else if closed > 0 {
		app.logger.Printf("Scheduler: Auto-closed %d sections.", closed)
	}

	ticker := time.NewTicker(app.config.AutoCloseInterval)
	defer ticker.Stop()

	app.logger.Printf("Auto-close scheduler started. Will run every %s.", app.config.AutoCloseInterval.String())

	for {
		select {
		case <-ticker.C:
			if closed, err := app.auctionService.AutoCloseDueSections(context.Background(), time.Now()); err != nil {
				app.logger.Printf("Scheduler: Error during auto-close sweep: %v", err)
			} else if closed > 0 {
				app.logger.Printf("Scheduler: Auto-closed %d sections.", closed)
			}
		case <-app.shutdownChan:
			app.logger.Println("Auto-close scheduler: Received shutdown signal. Stopping...")
			return
		}
	}
}

// runSeasonScheduler advances the auction calendar on a long fixed interval.
func (app *application) runSeasonScheduler() {
	defer close(app.seasonDone)

	ticker := time.NewTicker(app.config.SeasonAdvanceInterval)
	defer ticker.Stop()

	app.logger.Printf("Season scheduler started. Will run every %s.", app.config.SeasonAdvanceInterval.String())

	for {
		select {
		case <-ticker.C:
			app.logger.Println("Scheduler: Advancing season.")
			if err := app.auctionService.AdvanceSeason(context.Background()); err != nil {
				app.logger.Printf("Scheduler: Error during season advance: %v", err)
			}
		case <-app.shutdownChan:
			app.logger.Println("Season scheduler: Received shutdown signal. Stopping...")
			return
		}
	}
}
