package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rowanhq/ticketflow/internal/llm"
	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/queue"
	"github.com/rowanhq/ticketflow/internal/store/sqlite"
	"github.com/rowanhq/ticketflow/internal/tools"
	"github.com/rowanhq/ticketflow/internal/worker"
	"github.com/rowanhq/ticketflow/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a ticket processing worker",
	Long: `Consume ticket envelopes from the queue and drive the workflow,
holding a heartbeat lease and checkpointing after every step. Multiple
workers can run concurrently; the lease protocol keeps each ticket on a
single worker at a time.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().String("worker-id", "", "worker identity (overrides config)")
}

func runWorker(cmd *cobra.Command, _ []string) error {
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

	commerce := sqlite.NewCommerceRepository(db)
	client := llm.NewAnthropic(llm.AnthropicConfig{
		APIKey:     cfg.AnthropicAPIKey,
		Model:      cfg.Model,
		Timeout:    cfg.LLMTimeout(),
		MaxRetries: cfg.LLMMaxRetries,
	})

	var graph workflow.Graph
	if cfg.UseAgentWorkflow {
		registry := tools.NewRegistry(tools.Deps{
			Commerce: commerce,
			Issues:   tools.NewGitHub(cfg.GitHubToken, cfg.GitHubRepo),
		})
		graph = workflow.NewAgentGraph(client, registry)
	} else {
		graph = workflow.NewPipelineGraph(client, commerce)
	}

	workerID := cfg.WorkerID
	if flagID, _ := cmd.Flags().GetString("worker-id"); flagID != "" {
		workerID = flagID
	}

	processor := worker.NewProcessor(store, graph, worker.Config{
		WorkerID:          workerID,
		MaxRetries:        cfg.MaxRetries,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		StaleThreshold:    cfg.StaleProcessingThreshold(),
	})
	consumer := worker.NewConsumer(broker, processor, cfg.MaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info(log.CatWorker, "shutting down", "signal", sig.String())
		cancel()
	}()

	log.Info(log.CatWorker, "worker starting",
		"worker_id", workerID, "workflow", graph.Name(), "queue", cfg.QueueName)
	return consumer.Run(ctx)
}
