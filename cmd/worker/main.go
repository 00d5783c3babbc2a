package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"crmdispatch/internal/app"
	"crmdispatch/internal/config"
	"crmdispatch/internal/queue"
	"crmdispatch/internal/service"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.QueueRequired)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	consumer, err := queue.NewConsumer(a.Queue, cfg.RabbitMQ.Queue, cfg.RabbitMQ.Prefetch, dispatchHandler(a.DispatchService))
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}

	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	log.Printf("✅ Worker started, consuming from queue: %s", cfg.RabbitMQ.Queue)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down gracefully...")

	if err := consumer.Stop(); err != nil {
		log.Printf("Error stopping consumer: %v", err)
	}

	log.Println("✅ Worker stopped")
}

// dispatchHandler runs one dispatch invocation per job. Outcomes that leave
// the campaign untouched are acknowledged; only storage errors are retried.
func dispatchHandler(dispatchSvc *service.DispatchService) queue.JobHandler {
	return func(ctx context.Context, job *queue.DispatchJob) error {
		result, err := dispatchSvc.DispatchCampaign(ctx, job.CampaignID)
		if err != nil {
			return err
		}

		log.Printf("📨 Campaign %s: %s", job.CampaignID, result)
		return nil
	}
}
