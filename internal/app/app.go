// Package app wires configuration, storage, broker and services shared by
// the api, worker and scheduler binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"crmdispatch/internal/config"
	"crmdispatch/internal/metrics"
	"crmdispatch/internal/queue"
	"crmdispatch/internal/repository"
	"crmdispatch/internal/service"
	"crmdispatch/internal/throttle"
	"crmdispatch/internal/transport"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// QueueMode says how a binary depends on RabbitMQ
type QueueMode int

const (
	// QueueOptional continues without a publisher when the broker is unreachable
	QueueOptional QueueMode = iota
	// QueueRequired fails startup when the broker is unreachable
	QueueRequired
)

// App holds the wired dependencies of one process
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Queue     *queue.Connection
	Publisher *queue.Publisher

	Campaigns     repository.CampaignRepository
	Recipients    repository.RecipientRepository
	Contacts      repository.ContactRepository
	Conversations repository.ConversationRepository

	CampaignService *service.CampaignService
	RetryService    *service.RetryService
	DispatchService *service.DispatchService
	PriorityService *service.PriorityService
	HealthService   *service.HealthChecker
}

// New connects to PostgreSQL and, depending on mode, RabbitMQ, then builds the services
func New(ctx context.Context, cfg *config.Config, mode QueueMode) (*App, error) {
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("✅ Connected to database")

	a := &App{Config: cfg, DB: db}

	if err := a.connectQueue(mode); err != nil {
		db.Close()
		return nil, err
	}

	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connectQueue(mode QueueMode) error {
	conn, err := queue.NewConnection(a.Config.GetRabbitMQURL())
	if err == nil {
		a.Queue = conn
		a.Publisher, err = queue.NewPublisher(conn, a.Config.RabbitMQ.Queue, a.Config.RabbitMQ.JobTTL)
	}
	if err != nil {
		if mode == QueueRequired {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		log.Printf("⚠️  RabbitMQ unavailable, campaigns will wait for the scheduler: %v", err)
		if a.Queue != nil {
			a.Queue.Close()
			a.Queue = nil
		}
		return nil
	}

	log.Println("✅ Connected to RabbitMQ")
	return nil
}

func (a *App) build() error {
	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	client, err := NewTransport(a.Config.Transport)
	if err != nil {
		return err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	a.Campaigns = repository.NewCampaignRepository(a.DB)
	a.Recipients = repository.NewRecipientRepository(a.DB)
	a.Contacts = repository.NewContactRepository(a.DB)
	a.Conversations = repository.NewConversationRepository(a.DB)

	// a nil *queue.Publisher must stay a nil interface
	var publisher service.JobPublisher
	var broker service.BrokerChecker
	if a.Publisher != nil {
		publisher = a.Publisher
		broker = a.Queue
	}

	templateSvc := service.NewTemplateService()

	a.CampaignService = service.NewCampaignService(a.Campaigns, a.Recipients, a.Contacts, templateSvc, publisher)
	a.CampaignService.SetMetrics(a.Metrics)

	a.RetryService = service.NewRetryService(a.Campaigns, a.Recipients, templateSvc, publisher)

	a.DispatchService = service.NewDispatchService(
		a.Campaigns,
		a.Recipients,
		client,
		throttle.New(throttle.WithLocation(loc)),
		a.Metrics,
		service.DispatchConfig{
			SendTimeout: a.Config.Dispatch.SendTimeout,
			LeaseMargin: a.Config.Dispatch.LeaseMargin,
			Concurrency: a.Config.Dispatch.Concurrency,
		},
	)

	a.PriorityService = service.NewPriorityService(a.Conversations, a.Metrics, a.Config.Scoring.Concurrency)
	a.HealthService = service.NewHealthService(a.DB, broker, Version)

	log.Printf("✅ Services initialized (transport: %s, timezone: %s)", a.Config.Transport.Mode, loc)
	return nil
}

// NewTransport builds the transport client selected by TRANSPORT_MODE
func NewTransport(cfg config.TransportConfig) (transport.Client, error) {
	switch cfg.Mode {
	case config.TransportGateway:
		client, err := transport.NewGatewayClient(transport.GatewayConfig{
			BaseURL: cfg.BaseURL,
			PhoneID: cfg.PhoneID,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gateway transport: %w", err)
		}
		return client, nil
	case config.TransportSimulated, "":
		return transport.NewSimulatedClient(cfg.SuccessRate, time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Mode)
	}
}

// Close releases the broker and database connections
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			log.Printf("Error closing RabbitMQ connection: %v", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}
