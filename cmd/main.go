package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"call-lab/auth"
	"call-lab/gateway"
	"call-lab/internal"
	"call-lab/moderation"
	"call-lab/observability"
	"call-lab/repositories"
	"call-lab/runtime"
	"call-lab/runtime/workers"
	"call-lab/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the gateway and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Engine state
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	filter, err := moderation.NewStatusFilter(config.CensoredWords, replacement)
	if err != nil {
		return fmt.Errorf("status filter setup failed: %w", err)
	}

	monitoring := observability.NewManager(log)
	registry := runtime.NewRegistry()
	presenceRepository := repositories.NewPresenceRepository(db, log)
	callArchive := repositories.NewCallArchive(db, log)

	presenceStore := runtime.NewPresenceStore(log, presenceRepository, filter, config.BufferSize)
	if err := presenceStore.Load(); err != nil {
		return err
	}
	coordinator := runtime.NewCoordinator(log, registry, callArchive, monitoring,
		config.RingTimeout, config.SinkTimeout)

	presenceService := services.NewPresenceService(presenceStore)
	callService := services.NewCallService(coordinator)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers under supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewPresenceFanout(log, presenceStore.Broadcasts(), registry, monitoring, config.SinkTimeout),
		workers.NewHeartbeatWorker(log, counters{registry, coordinator}, monitoring, config.HeartbeatInterval),
	)
	go sup.Run(ctx)

	// 6. HTTP servers: websocket gateway + read-only query server
	internal.StartQueryServer(log, config.QueryPort, registry, monitoring, callArchive)

	verifier := auth.NewJWTVerifier(config.AuthSecret)
	server := gateway.NewServer(log, verifier, registry, presenceService, callService,
		config.ConnectionBufferSize, config.PresenceGracePeriod)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: server.Handler()}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting gateway", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

// counters aggregates the live gauges sampled by the heartbeat worker.
type counters struct {
	registry    *runtime.Registry
	coordinator *runtime.Coordinator
}

func (c counters) ActiveConnectionCount() int { return c.registry.ActiveConnectionCount() }
func (c counters) ActiveCallCount() int       { return c.coordinator.ActiveCallCount() }
func (c counters) OnlineIdentityCount() int   { return c.registry.OnlineIdentityCount() }
