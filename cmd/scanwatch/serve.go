package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hakim/scanwatch/internal/api"
	"github.com/hakim/scanwatch/internal/metrics"
	"github.com/hakim/scanwatch/internal/tasks"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan API server",
	Long: `Start the HTTP API and the background scan workers.

Scans submitted with POST /scan are queued and executed by a fixed pool of
workers. Poll GET /scan/{task_id} for the result. Stored history is available
under /scans, /latest_scan and /scan_changes.

The nmap executable must be installed; startup fails otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("address")
		if addr != "" {
			cfg.Server.Address = addr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, store, err := newService(ctx, true)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logrus.WithError(closeErr).Warn("failed to close scan history")
			}
		}()

		m := metrics.New()

		opts := []tasks.Option{tasks.WithObserver(m)}
		if cfg.Notify.WebhookURL != "" {
			opts = append(opts, tasks.WithNotifier(tasks.NewWebhook(cfg.Notify.WebhookURL)))
		}
		dispatcher := tasks.NewDispatcher(svc, tasks.Config{
			Workers:   cfg.Workers.Count,
			QueueSize: cfg.Workers.QueueSize,
			Retention: cfg.TaskRetention(),
		}, opts...)
		dispatcher.Start()

		server := api.New(api.Config{
			Address:           cfg.Server.Address,
			ReadTimeout:       cfg.ReadTimeout(),
			WriteTimeout:      cfg.WriteTimeout(),
			TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
			RateLimitEnabled:  cfg.RateLimit.Enabled,
			RateLimitRequests: cfg.RateLimit.Requests,
			RateLimitWindow:   cfg.RateLimitWindow(),
		}, svc, dispatcher, api.WithMetrics(m), api.WithHealthCheck(store))

		fmt.Printf("[*] Listening on http://%s\n", cfg.Server.Address)
		fmt.Printf("[*] Workers: %d | Queue: %d | Storage: %s\n",
			cfg.Workers.Count, cfg.Workers.QueueSize, cfg.Storage.Driver)

		serveErr := server.Start(ctx, cfg.ShutdownTimeout())
		stop()

		// HTTP is down; let running scans finish before closing the store.
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ScanTimeout()+10*time.Second)
		defer cancel()
		if err := dispatcher.Shutdown(drainCtx); err != nil {
			logrus.WithError(err).Warn("workers did not drain before the deadline")
		}

		if serveErr != nil {
			return serveErr
		}
		fmt.Println("[+] Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("address", "", "Listen address (overrides server.address)")
	rootCmd.AddCommand(serveCmd)
}
