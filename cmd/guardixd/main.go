package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/engine"
	"github.com/guardix/guardix/internal/health"
	"github.com/guardix/guardix/internal/notifications"
	"github.com/guardix/guardix/internal/quarantine"
	"github.com/guardix/guardix/internal/realtime"
	"github.com/guardix/guardix/internal/storage"
	"github.com/guardix/guardix/internal/webserver"
)

func main() {
	ctx := context.Background()

	// Initialize Logrus
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found. Proceeding with environment variables.")
	}

	// Load scan configuration
	scanCfg, err := engine.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load scan configuration: %v", err)
	}

	// Initialize storage
	storageCfg, err := storage.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load storage configuration: %v", err)
	}
	store, err := storage.New(storageCfg)
	if err != nil {
		logger.Fatalf("Failed to initialize %s storage: %v", storageCfg.Type, err)
	}
	defer store.Close(ctx)
	logger.Infof("%s storage initialized successfully", storageCfg.Type)

	// Initialize signature store: persisted set if present, builtin
	// otherwise, optionally extended from a signature file.
	signatures := engine.NewSignatureStore()
	sigs, err := store.GetSignatures(ctx)
	if err != nil {
		logger.Fatalf("Failed to load persisted signatures: %v", err)
	}
	if len(sigs) == 0 {
		sigs = engine.BuiltinSignatures()
		logger.Info("No persisted signature database; using builtin signatures")
	}
	if scanCfg.SignatureFile != "" {
		fileSigs, err := engine.LoadSignatureFile(scanCfg.SignatureFile)
		if err != nil {
			logger.Fatalf("Failed to load signature file: %v", err)
		}
		sigs = append(sigs, fileSigs...)
	}
	signatures.Replace(sigs)

	// Initialize quarantine
	quarantineCfg, err := quarantine.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load quarantine configuration: %v", err)
	}
	quarantineStore, err := quarantine.NewStore(quarantineCfg.Dir, store, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize quarantine: %v", err)
	}

	// Initialize notification log and optional outbound notifier
	notificationLog := notifications.NewLog()

	notificationCfg, err := notifications.LoadNotificationConfig()
	if err != nil {
		logger.Fatalf("Failed to load notification configuration: %v", err)
	}
	var notifier *notifications.Notifier
	if len(notificationCfg.ShoutrrrURLs) > 0 {
		notifier, err = notifications.NewNotifier(notificationCfg.ShoutrrrURLs)
		if err != nil {
			logger.Fatalf("Failed to initialize notifier: %v", err)
		}
		logger.Info("Notifier initialized successfully")
	} else {
		logger.Warn("No Shoutrrr URLs configured. Outbound notifications disabled.")
	}

	// Initialize scan coordinator
	coordinator := engine.NewCoordinator(signatures, logger, notificationLog, notifier)

	// Create a cancellable context for the background workers
	ctxCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start the health sampler
	sampler := health.NewSampler(healthInterval(logger), logger)
	go sampler.Run(ctxCancel)

	// Start realtime protection if watch paths are configured
	realtimeCfg, err := realtime.LoadConfig(scanCfg.MaxFileSize)
	if err != nil {
		logger.Fatalf("Failed to load realtime configuration: %v", err)
	}
	if realtimeCfg.Enabled() {
		watcher := realtime.NewWatcher(realtimeCfg, signatures, notificationLog, notifier, logger)
		go func() {
			if err := watcher.Run(ctxCancel); err != nil {
				logger.WithError(err).Error("Realtime protection failed")
			}
		}()
	} else {
		logger.Info("No watch paths configured. Realtime protection disabled.")
	}

	// Initialize and start the web server
	webServerConfig, err := webserver.NewWebserverConfig()
	if err != nil {
		logger.Fatalf("Failed to load webserver configuration: %v", err)
	}
	webServer := webserver.NewWebServer(coordinator, signatures, quarantineStore, notificationLog, sampler, store, scanCfg, webServerConfig, logger)

	server, err := webserver.StartWebServer(ctxCancel, webServer)
	if err != nil {
		logger.Fatalf("Failed to start web server: %v", err)
	}

	// Listen for OS signals to handle graceful shutdown
	sigsCh := make(chan os.Signal, 1)
	signal.Notify(sigsCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigsCh
	logger.Infof("Received signal: %s. Initiating shutdown...", sig)

	// Cancel the running scan and the background workers
	coordinator.Cancel()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Failed to gracefully shutdown the server: %v", err)
	}

	logger.Info("Shutdown complete. Exiting.")
}

func healthInterval(logger *logrus.Logger) time.Duration {
	seconds, err := strconv.Atoi(os.Getenv("HEALTH_INTERVAL_SECONDS"))
	if err != nil || seconds <= 0 {
		seconds = 10
		logger.Infof("Invalid or missing HEALTH_INTERVAL_SECONDS. Defaulting to %d seconds.", seconds)
	}
	return time.Duration(seconds) * time.Second
}
