package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ai-compare-chat-go/internal/chat"
	"github.com/ai-compare-chat-go/internal/config"
	"github.com/ai-compare-chat-go/internal/handlers"
	"github.com/ai-compare-chat-go/internal/i18n"
	"github.com/ai-compare-chat-go/internal/middleware"
	"github.com/ai-compare-chat-go/internal/services/cache"
	"github.com/ai-compare-chat-go/internal/services/provider"
	"github.com/ai-compare-chat-go/internal/services/storage"
	remotesync "github.com/ai-compare-chat-go/internal/services/sync"
	"github.com/ai-compare-chat-go/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting AI comparison chat server...")

	// Initialize storage
	storageManager, err := storage.NewManager(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize cache and provider service
	cacheService := cache.NewCache(cfg, log)
	providerService := provider.NewMockGenerator(&cfg.Providers, cacheService, log)

	// Initialize remote sync
	syncService := remotesync.NewRemoteSync(&cfg.Sync, log)

	// Initialize the aggregator and adopt any persisted conversation
	welcome := localizer.Get(cfg.I18n.DefaultLanguage, cfg.Chat.WelcomeMessageID, nil)
	aggregator := chat.NewAggregator(providerService, storageManager, syncService, welcome, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aggregator.ReloadFromStore(ctx)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(cfg, log)
	identity := middleware.NewIdentity(&cfg.Auth, log)
	metrics := middleware.NewMetrics()

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize handlers and router
	chatHandler := handlers.NewChatHandler(cfg, aggregator, providerService, rateLimiter, metrics, localizer, log)

	router := mux.NewRouter()
	router.Use(identity.Middleware)
	router.Use(metrics.Instrument)
	chatHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	// Cancel context to stop background goroutines, give them time to finish
	cancel()
	time.Sleep(2 * time.Second)

	log.Info("Server stopped")
}
