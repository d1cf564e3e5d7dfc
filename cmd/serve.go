package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rowanhq/ticketflow/internal/api"
	"github.com/rowanhq/ticketflow/internal/approval"
	"github.com/rowanhq/ticketflow/internal/ingest"
	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/queue"
	"github.com/rowanhq/ticketflow/internal/store/sqlite"
	"github.com/rowanhq/ticketflow/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API: ticket submission and reads, approval decisions,
inbound email webhooks, dashboard stats, health, and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	db, store, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	broker, err := queue.NewRabbitMQ(queue.RabbitMQConfig{
		URL:      cfg.AMQPURL,
		Queue:    cfg.QueueName,
		DLX:      cfg.DLXName,
		Prefetch: cfg.PrefetchCount,
	})
	if err != nil {
		return err
	}
	defer broker.Close()

	registry := tools.NewRegistry(tools.Deps{
		Commerce: sqlite.NewCommerceRepository(db),
		Issues:   tools.NewGitHub(cfg.GitHubToken, cfg.GitHubRepo),
	})

	server := api.NewServer(
		store,
		ingest.NewService(store, broker),
		approval.NewService(store, registry),
		store.Health,
		broker.Health,
		cfg.MailgunWebhookKey,
	)

	addr := cfg.ListenAddr
	if flagAddr, _ := cmd.Flags().GetString("listen"); flagAddr != "" {
		addr = flagAddr
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(log.CatAPI, "api server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info(log.CatAPI, "shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	log.Info(log.CatAPI, "api server stopped")
	return nil
}
