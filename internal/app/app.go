package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mail-autoresponder-go/internal/config"
	"mail-autoresponder-go/internal/db"
	"mail-autoresponder-go/internal/filter"
	"mail-autoresponder-go/internal/handlers"
	"mail-autoresponder-go/internal/mailbox"
	"mail-autoresponder-go/internal/metrics"
	"mail-autoresponder-go/internal/models"
	"mail-autoresponder-go/internal/monitor"
	"mail-autoresponder-go/internal/repository"
	"mail-autoresponder-go/internal/responder"
	"mail-autoresponder-go/internal/sender"
	"mail-autoresponder-go/internal/server"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Mail Auto-Responder Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := repository.New(dbConn)

	settings, err := repo.GetSettings(&models.Settings{
		KeywordsEnabled:      cfg.Defaults.KeywordsEnabled,
		Keywords:             cfg.Defaults.Keywords,
		ExcludedDomains:      cfg.Defaults.ExcludedDomains,
		ManualConfirmation:   cfg.Defaults.ManualConfirmation,
		ReplyTemplate:        cfg.Defaults.ReplyTemplate,
		CheckIntervalSeconds: cfg.Defaults.CheckIntervalSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	m := metrics.NewMetrics()

	box := mailbox.NewIMAPMailbox(&cfg.IMAP)

	var deliverer sender.Sender
	switch cfg.Delivery.Transport {
	case "gmail":
		deliverer, err = sender.NewGmailSender(&cfg.Delivery.Gmail)
		if err != nil {
			return fmt.Errorf("failed to create Gmail sender: %w", err)
		}
		logrus.Info("Using Gmail API for reply delivery")
	default:
		deliverer = sender.NewSMTPSender(&cfg.Delivery.SMTP, cfg.Delivery.From)
		logrus.Info("Using SMTP for reply delivery")
	}

	msgFilter := filter.New(settings)
	autoResponder := responder.New(settings, cfg.Delivery.From, deliverer, box, repo, m)
	mon := monitor.New(settings, box, box, msgFilter, autoResponder, repo, m)

	manager := config.NewManager(settings, repo)
	manager.Subscribe(msgFilter)
	manager.Subscribe(autoResponder)
	manager.Subscribe(mon)

	h := handlers.NewHandlers(dbConn, repo, manager, autoResponder, mon)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := mon.Start(); err != nil {
		return fmt.Errorf("failed to start email monitor: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := mon.Stop(); err != nil && err != monitor.ErrNotRunning {
		logrus.Errorf("Failed to stop email monitor: %v", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := box.Close(); err != nil {
		logrus.Errorf("Failed to close mailbox: %v", err)
	}
	if err := deliverer.Close(); err != nil {
		logrus.Errorf("Failed to close sender: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
