package source

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// BaseClient provides rate limiting and verbose tracing common to all
// provider clients. Embed it in a concrete client.
type BaseClient struct {
	name string

	rateLimiter *rate.Limiter

	mu      sync.RWMutex
	verbose bool
}

// BaseClientConfig holds configuration for creating a BaseClient.
type BaseClientConfig struct {
	Name string

	// RateLimit in requests per hour. 0 disables rate limiting.
	RateLimit int

	// BurstLimit is the burst size (default 10).
	BurstLimit int

	Verbose bool
}

// NewBaseClient creates a new BaseClient.
func NewBaseClient(cfg *BaseClientConfig) *BaseClient {
	bc := &BaseClient{
		name:    cfg.Name,
		verbose: cfg.Verbose,
	}

	if cfg.RateLimit > 0 {
		// Convert requests per hour to rate per second
		rps := float64(cfg.RateLimit) / 3600.0
		burst := cfg.BurstLimit
		if burst <= 0 {
			burst = 10
		}
		bc.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return bc
}

// Name returns the provider name.
func (c *BaseClient) Name() string {
	return c.name
}

// RateLimited returns true if rate limiting is enabled.
func (c *BaseClient) RateLimited() bool {
	return c.rateLimiter != nil
}

// WaitForRateLimit blocks until the rate limit allows the next request.
func (c *BaseClient) WaitForRateLimit(ctx context.Context) error {
	if c.rateLimiter == nil {
		return nil
	}

	if c.Verbose() {
		fmt.Printf("[%s] Waiting for rate limit...\n", c.name)
	}

	return c.rateLimiter.Wait(ctx)
}

// Verbose returns true if verbose mode is enabled.
func (c *BaseClient) Verbose() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verbose
}

// SetVerbose enables or disables verbose mode.
func (c *BaseClient) SetVerbose(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbose = v
}
