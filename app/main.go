package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftworks/dripfeed/app/api"
	"github.com/driftworks/dripfeed/app/cfg"
	"github.com/driftworks/dripfeed/app/channel"
	"github.com/driftworks/dripfeed/app/content"
	"github.com/driftworks/dripfeed/app/database"
	"github.com/driftworks/dripfeed/app/jobqueue"
	"github.com/driftworks/dripfeed/app/keypool"
	"github.com/driftworks/dripfeed/app/pipeline"
	"github.com/driftworks/dripfeed/app/slots"
	"github.com/driftworks/dripfeed/app/source"
	"github.com/driftworks/dripfeed/app/tasks"
	"github.com/driftworks/dripfeed/app/transform"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting dripfeed", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := channel.NewConfigCache(appCfg.ChannelsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load channel configurations", "error", err)
		os.Exit(1)
	}
	slog.Info("Channel configurations loaded", "count", configCache.GetConfigCount())

	channelRepo := database.NewChannelRepository(db)
	itemRepo := database.NewItemRepository(db)
	processedRepo := database.NewProcessedRepository(db)
	slotRepo := database.NewSlotRepository(db)
	keyRepo := database.NewKeyRepository(db)

	pool := keypool.NewPool(appCfg.TranscriptAPIKeys, appCfg.KeyUsageCap,
		time.Duration(appCfg.PacingInterval)*time.Second, keyRepo)
	if pool.KeyCount() == 0 {
		slog.Warn("No transcript API keys configured, transcript fetches will fail")
	}

	transcripts := content.NewTranscriptClient(appCfg.TranscriptAPIURL, pool, appCfg.UserAgent)
	fallback := content.NewFallbackExtractor(appCfg.UserAgent)
	fetcher := content.NewFetcher(transcripts, fallback)

	gemini, err := transform.NewGeminiClient(context.Background(), appCfg.GeminiAPIKey, appCfg.GeminiModel)
	if err != nil {
		slog.Error("Failed to create transform client", "error", err)
		os.Exit(1)
	}
	engine := transform.NewEngine(gemini, appCfg.MaxChunkChars,
		time.Duration(appCfg.ChunkTimeout)*time.Second,
		time.Duration(appCfg.ChunkCooldown)*time.Second)

	allocator := slots.NewAllocator(slotRepo, appCfg.MaxSlotsPerDay, appCfg.SlotHorizonDays)
	jobs := jobqueue.NewClient(appCfg.JobQueueURL, appCfg.JobQueueKey)
	monitor := source.NewMonitor(processedRepo, channelRepo, appCfg.UserAgent)

	gate := pipeline.NewGate(itemRepo, appCfg.DelayDays, appCfg.RetentionDays)
	runner := pipeline.NewRunner(gate, itemRepo, processedRepo, configCache, fetcher,
		engine, allocator, jobs, appCfg.TitleCandidates,
		time.Duration(appCfg.ItemDelaySeconds)*time.Second)

	scheduler := tasks.NewScheduler(configCache, channelRepo, monitor, gate, runner)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "interval_seconds", appCfg.SchedulerInterval)

	handler := api.NewHandler(configCache, channelRepo, itemRepo, processedRepo,
		keyRepo, allocator, gate, jobs, appCfg.SlotHorizonDays)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
