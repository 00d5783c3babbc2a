package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobHandler processes one dispatch job
type JobHandler func(ctx context.Context, job *DispatchJob) error

// Consumer consumes dispatch jobs from RabbitMQ. When the broker closes the
// delivery channel it resubscribes through the reconnecting Connection.
type Consumer struct {
	conn       *Connection
	queueName  string
	prefetch   int
	handler    JobHandler
	subscribe  func() (<-chan amqp.Delivery, error)
	retryDelay time.Duration
	cancel     context.CancelFunc
	doneChan   chan struct{}
}

// NewConsumer declares the queue and returns a consumer
func NewConsumer(conn *Connection, queueName string, prefetch int, handler JobHandler) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if err := declareQueue(ch, queueName); err != nil {
		return nil, err
	}

	c := &Consumer{
		conn:       conn,
		queueName:  queueName,
		prefetch:   prefetch,
		handler:    handler,
		retryDelay: 2 * time.Second,
		doneChan:   make(chan struct{}),
	}
	c.subscribe = c.consume
	return c, nil
}

// Start begins consuming in a background goroutine
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.subscribe()
	if err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, msgs)

	log.Printf("📨 Consumer started, listening on queue: %s", c.queueName)
	return nil
}

func (c *Consumer) consume() (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return msgs, nil
}

func (c *Consumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer close(c.doneChan)

	for {
		select {
		case <-ctx.Done():
			log.Println("Consumer stopping...")
			return
		case d, ok := <-msgs:
			if !ok {
				log.Println("🔌 Delivery channel closed, resubscribing...")
				if msgs = c.resubscribe(ctx); msgs == nil {
					return
				}
				continue
			}
			c.handle(ctx, d)
		}
	}
}

// resubscribe retries until consuming works again or ctx is done, in which case it returns nil
func (c *Consumer) resubscribe(ctx context.Context) <-chan amqp.Delivery {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retryDelay):
		}

		msgs, err := c.subscribe()
		if err != nil {
			log.Printf("❌ Resubscribe to %s failed: %v", c.queueName, err)
			continue
		}
		log.Printf("✅ Resubscribed to queue: %s", c.queueName)
		return msgs
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	job, err := DecodeJob(d.Body)
	if err != nil {
		// a malformed body will never succeed
		log.Printf("❌ Dropping malformed job: %v", err)
		d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, job); err != nil {
		log.Printf("❌ Job for campaign %s failed: %v", job.CampaignID, err)
		d.Nack(false, !d.Redelivered)
		return
	}

	d.Ack(false)
}

// Stop stops consuming and waits for the in-flight job
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
		<-c.doneChan
	}

	log.Println("Consumer stopped")
	return nil
}

// DecodeJob parses a dispatch job body
func DecodeJob(body []byte) (*DispatchJob, error) {
	var job DispatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatch job: %w", err)
	}
	if job.CampaignID == "" {
		return nil, errors.New("dispatch job has no campaign_id")
	}
	return &job, nil
}
