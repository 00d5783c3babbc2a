package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DispatchJob asks a worker to run one dispatch invocation for a campaign
type DispatchJob struct {
	CampaignID string    `json:"campaign_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Publisher publishes dispatch jobs to RabbitMQ
type Publisher struct {
	conn      *Connection
	queueName string
	ttl       time.Duration
}

// NewPublisher declares the queue and returns a publisher.
// Jobs older than ttl are dropped by the broker; the next scheduler tick replaces them.
func NewPublisher(conn *Connection, queueName string, ttl time.Duration) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	if err := declareQueue(ch, queueName); err != nil {
		return nil, err
	}

	return &Publisher{
		conn:      conn,
		queueName: queueName,
		ttl:       ttl,
	}, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// PublishDispatch enqueues a dispatch job for the campaign
func (p *Publisher) PublishDispatch(ctx context.Context, campaignID string) error {
	body, err := json.Marshal(DispatchJob{
		CampaignID: campaignID,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch job: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	}
	if p.ttl > 0 {
		msg.Expiration = strconv.FormatInt(p.ttl.Milliseconds(), 10)
	}

	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish dispatch job: %w", err)
	}

	return nil
}
