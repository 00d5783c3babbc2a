package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crmdispatch/internal/app"
	"crmdispatch/internal/config"
	"crmdispatch/internal/handler"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.QueueOptional)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	router := handler.NewRouter(handler.Handlers{
		Campaigns: handler.NewCampaignHandler(a.CampaignService, a.RetryService),
		Dispatch:  handler.NewDispatchHandler(a.DispatchService),
		Priority:  handler.NewPriorityHandler(a.PriorityService),
		Health:    handler.NewHealthHandler(a.HealthService),
		Metrics:   promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
	})

	port := ":" + cfg.Server.Port
	server := &http.Server{
		Addr:              port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 API Server starting on port %s", port)
		log.Printf("📍 Health check: http://localhost%s/health", port)
		log.Printf("🌍 Environment: %s", cfg.Env)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	log.Println("✅ API server stopped")
}
