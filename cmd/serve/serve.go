// Package serve implements the serve command, the long-running monitoring
// backend.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/swarahealth/coughwatch-go/internal/blobstore"
	"github.com/swarahealth/coughwatch-go/internal/classifier"
	"github.com/swarahealth/coughwatch-go/internal/conf"
	"github.com/swarahealth/coughwatch-go/internal/cough"
	"github.com/swarahealth/coughwatch-go/internal/datastore"
	"github.com/swarahealth/coughwatch-go/internal/device"
	"github.com/swarahealth/coughwatch-go/internal/events"
	"github.com/swarahealth/coughwatch-go/internal/httpcontroller"
	"github.com/swarahealth/coughwatch-go/internal/logging"
	"github.com/swarahealth/coughwatch-go/internal/notification"
	"github.com/swarahealth/coughwatch-go/internal/observability"
	"github.com/swarahealth/coughwatch-go/internal/security"
)

const shutdownTimeout = 10 * time.Second

// Command returns the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.ForService("serve")

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	blobs, err := blobstore.New(settings.Storage.AudioDir)
	if err != nil {
		return fmt.Errorf("failed to open audio storage: %w", err)
	}

	bus := events.NewBus(&events.Config{
		BufferSize: settings.EventBus.BufferSize,
		Workers:    settings.EventBus.Workers,
	})

	var dispatcher *classifier.Dispatcher
	if settings.Classifier.Enabled {
		client, err := classifier.NewClient(classifier.Config{
			Endpoint: settings.Classifier.Endpoint,
			Timeout:  settings.Classifier.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to configure classifier client: %w", err)
		}
		dispatcher = classifier.NewDispatcher(client, blobs,
			settings.Classifier.Queue, settings.Classifier.Workers,
			settings.Classifier.Timeout)
	}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	bus.SetMetrics(metrics)
	if dispatcher != nil {
		dispatcher.SetMetrics(metrics)
	}

	notifications := notification.NewManager(ds, bus)
	var enqueuer cough.Enqueuer
	if dispatcher != nil {
		enqueuer = dispatcher
	}
	coughs := cough.NewManager(ds, blobs, bus, enqueuer, notifications)
	devices := device.NewService(ds, bus)
	auth := security.NewAuthenticator(ds)
	if err := auth.BootstrapAdmin(context.Background(),
		settings.Security.AdminEmail,
		settings.Security.AdminUsername,
		settings.Security.AdminPassword); err != nil {
		return fmt.Errorf("failed to bootstrap admin account: %w", err)
	}
	sessions := security.NewSessionManager(
		settings.Security.SessionSecret,
		settings.Security.SessionMaxAge,
		settings.Security.RedirectToHTTPS)

	monitor := device.NewMonitor(ds, bus,
		settings.Monitor.HeartbeatStaleAfter,
		settings.Monitor.SweepInterval)
	monitor.Start(context.Background())

	server := httpcontroller.New(settings, &httpcontroller.Dependencies{
		DS:            ds,
		Coughs:        coughs,
		Devices:       devices,
		Notifications: notifications,
		Auth:          auth,
		Sessions:      sessions,
		Bus:           bus,
		Metrics:       metrics,
		Registry:      registry,
	})
	serverErr := server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	monitor.Stop()
	if dispatcher != nil {
		if err := dispatcher.Shutdown(ctx); err != nil {
			logger.Error("dispatcher shutdown failed", "error", err)
		}
	}
	if err := bus.Shutdown(ctx); err != nil {
		logger.Error("event bus shutdown failed", "error", err)
	}

	return nil
}
