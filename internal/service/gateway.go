package service

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// GatewayResult is the settlement outcome reported by the payment processor.
type GatewayResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Gateway abstracts the payment processor. The core treats it as an opaque,
// possibly-failing call with no retry guarantee of its own.
type Gateway interface {
	ProcessIntent(ctx context.Context, intentID string) (GatewayResult, error)
}

// MockGateway settles intents locally with a configurable success rate.
// Confirmations arrive concurrently from HTTP handlers and the gateway
// worker, and rand.Rand is not safe for concurrent use, so the generator
// is guarded by a mutex.
type MockGateway struct {
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockGateway creates a mock gateway. successRate of 1.0 always succeeds.
func NewMockGateway(successRate float64) *MockGateway {
	return &MockGateway{
		successRate: successRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *MockGateway) ProcessIntent(ctx context.Context, intentID string) (GatewayResult, error) {
	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll < g.successRate {
		return GatewayResult{Success: true}, nil
	}
	return GatewayResult{Success: false, Reason: "card declined"}, nil
}

// HTTPGateway calls a real processor over HTTP. Selected when GATEWAY_URL is
// configured.
type HTTPGateway struct {
	client *resty.Client
}

// NewHTTPGateway creates a gateway client for the given base URL.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0)
	return &HTTPGateway{client: client}
}

func (g *HTTPGateway) ProcessIntent(ctx context.Context, intentID string) (GatewayResult, error) {
	var result GatewayResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"payment_intent_id": intentID}).
		SetResult(&result).
		Post("/v1/intents/process")
	if err != nil {
		return GatewayResult{}, fmt.Errorf("gateway call failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return GatewayResult{}, fmt.Errorf("gateway returned status %d", resp.StatusCode())
	}
	return result, nil
}
