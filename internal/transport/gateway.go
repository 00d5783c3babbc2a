package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// GatewayConfig holds the messaging provider credentials
type GatewayConfig struct {
	BaseURL string
	PhoneID string
	Token   string
	Timeout time.Duration
}

type textBody struct {
	Body string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// GatewayClient sends text messages through a WhatsApp Cloud style HTTP API
type GatewayClient struct {
	http    *resty.Client
	phoneID string
}

// NewGatewayClient creates a gateway client with the injected credentials
func NewGatewayClient(cfg GatewayConfig) (*GatewayClient, error) {
	if cfg.BaseURL == "" || cfg.PhoneID == "" || cfg.Token == "" {
		return nil, fmt.Errorf("gateway base url, phone id and token are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &GatewayClient{http: client, phoneID: cfg.PhoneID}, nil
}

// Send posts the message and returns the provider message id
func (c *GatewayClient) Send(ctx context.Context, phone, text string) (*Ack, error) {
	start := time.Now()

	var ok sendResponse
	var failed errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{
			MessagingProduct: "whatsapp",
			To:               phone,
			Type:             "text",
			Text:             textBody{Body: text},
		}).
		SetResult(&ok).
		SetError(&failed).
		Post(fmt.Sprintf("/%s/messages", c.phoneID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to send message to %s: %w", phone, err)
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		if failed.Error.Message != "" {
			return nil, fmt.Errorf("provider rejected message (%d): %s", resp.StatusCode(), failed.Error.Message)
		}
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode())
	}

	ack := &Ack{Latency: time.Since(start)}
	if len(ok.Messages) > 0 {
		ack.ProviderMessageID = ok.Messages[0].ID
	}
	return ack, nil
}
