package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

var simulatedFailures = []string{
	"invalid phone number",
	"rate limit exceeded",
	"service temporarily unavailable",
	"number not on whatsapp",
}

// SimulatedClient fakes a provider for local runs and tests
type SimulatedClient struct {
	mu          sync.Mutex
	successRate float64 // 0.0 to 1.0
	minLatency  time.Duration
	maxLatency  time.Duration
	rand        *rand.Rand
}

// NewSimulatedClient creates a simulated client.
// successRate: probability of a successful send (0.0 to 1.0)
func NewSimulatedClient(successRate float64, seed int64) *SimulatedClient {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedClient{
		successRate: clampRate(successRate),
		minLatency:  50 * time.Millisecond,
		maxLatency:  200 * time.Millisecond,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

// SetLatency changes the simulated network latency range
func (s *SimulatedClient) SetLatency(min, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max < min {
		max = min
	}
	s.minLatency, s.maxLatency = min, max
}

// SetSuccessRate updates the success rate
func (s *SimulatedClient) SetSuccessRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successRate = clampRate(rate)
}

// Send waits for the simulated latency and succeeds with the configured probability
func (s *SimulatedClient) Send(ctx context.Context, phone, text string) (*Ack, error) {
	start := time.Now()

	s.mu.Lock()
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rand.Int63n(int64(span)))
	}
	success := s.rand.Float64() < s.successRate
	reason := simulatedFailures[s.rand.Intn(len(simulatedFailures))]
	s.mu.Unlock()

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ErrTimeout
	case <-timer.C:
	}

	if !success {
		return nil, fmt.Errorf("failed to send to %s: %s", phone, reason)
	}

	return &Ack{ProviderMessageID: uuid.NewString(), Latency: time.Since(start)}, nil
}

func clampRate(rate float64) float64 {
	if rate < 0.0 {
		return 0.0
	}
	if rate > 1.0 {
		return 1.0
	}
	return rate
}
