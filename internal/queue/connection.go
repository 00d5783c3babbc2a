package queue

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/hashicorp/go-multierror"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is a RabbitMQ connection that redials when the broker drops it
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	mu      sync.Mutex
}

// NewConnection dials RabbitMQ and opens a channel
func NewConnection(url string) (*Connection, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url cannot be empty")
	}

	c := &Connection{url: url}
	if err := c.dial(); err != nil {
		return nil, err
	}

	log.Println("✅ Connected to RabbitMQ")
	return c, nil
}

func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

// Channel returns the open channel, redialing first if it was closed
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected() {
		return c.channel, nil
	}

	log.Println("🔌 RabbitMQ channel closed, reconnecting...")
	c.closeLocked()
	if err := c.dial(); err != nil {
		return nil, fmt.Errorf("failed to reconnect: %w", err)
	}
	log.Println("✅ Reconnected to RabbitMQ")

	return c.channel, nil
}

// Close closes channel and connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeLocked(); err != nil {
		return fmt.Errorf("errors during close: %w", err)
	}

	log.Println("RabbitMQ connection closed")
	return nil
}

func (c *Connection) closeLocked() error {
	var merr *multierror.Error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			merr = multierror.Append(merr, fmt.Errorf("failed to close channel: %w", err))
		}
		c.channel = nil
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			merr = multierror.Append(merr, fmt.Errorf("failed to close connection: %w", err))
		}
		c.conn = nil
	}

	return merr.ErrorOrNil()
}

// IsConnected reports whether both connection and channel are open
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected()
}

func (c *Connection) connected() bool {
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}
