package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"crmdispatch/internal/app"
	"crmdispatch/internal/config"
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

	a, err := app.New(ctx, cfg, app.QueueOptional)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}

	logger := cron.PrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(cfg.Dispatch.Tick, func() { dispatchTick(ctx, a) }); err != nil {
		log.Fatalf("Invalid DISPATCH_TICK %q: %v", cfg.Dispatch.Tick, err)
	}
	if _, err := c.AddFunc(cfg.Scoring.Cron, func() { rescore(ctx, a) }); err != nil {
		log.Fatalf("Invalid SCORING_CRON %q: %v", cfg.Scoring.Cron, err)
	}

	c.Start()
	log.Printf("⏰ Scheduler started (dispatch: %s, scoring: %s)", cfg.Dispatch.Tick, cfg.Scoring.Cron)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down gracefully...")
	cancel()
	<-c.Stop().Done()

	log.Println("✅ Scheduler stopped")
}

// dispatchTick hands every active campaign to the workers. Without a broker
// the pass runs in this process.
func dispatchTick(ctx context.Context, a *app.App) {
	if a.Publisher == nil {
		summary, err := a.DispatchService.RunPass(ctx)
		if err != nil {
			log.Printf("❌ Dispatch pass: %v", err)
		}
		if summary != nil && summary.Campaigns > 0 {
			log.Printf("📨 Dispatch pass over %d campaign(s): %v", summary.Campaigns, summary.Results)
		}
		return
	}

	ids, err := a.Campaigns.ListActiveIDs(ctx)
	if err != nil {
		log.Printf("❌ Failed to list active campaigns: %v", err)
		return
	}

	for _, id := range ids {
		if err := a.Publisher.PublishDispatch(ctx, id); err != nil {
			log.Printf("❌ Failed to enqueue campaign %s: %v", id, err)
		}
	}
}

func rescore(ctx context.Context, a *app.App) {
	summary, err := a.PriorityService.RecalculateAll(ctx)
	if err != nil {
		log.Printf("❌ Priority recalculation: %v", err)
	}
	if summary != nil {
		log.Printf("📊 Priority recalculation: %+v", *summary)
	}
}
