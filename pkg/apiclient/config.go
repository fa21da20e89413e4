package apiclient

import (
	"net/http"
	"time"
)

// Config holds request layer configuration.
type Config struct {
	// BaseURL is prefixed to every relative endpoint.
	BaseURL         string
	Timeout         time.Duration
	MaxConnsPerHost int

	// RateLimitRPS throttles outgoing requests; 0 disables throttling.
	RateLimitRPS   float64
	RateLimitBurst int

	// Breaker enables the circuit breaker when non-nil.
	Breaker *BreakerConfig

	// Transport overrides the pooled default transport.
	Transport http.RoundTripper
}

// DefaultConfig returns sensible defaults for talking to baseURL.
func DefaultConfig(baseURL string) Config {
	breaker := DefaultBreakerConfig("storefront-api")
	return Config{
		BaseURL:         baseURL,
		Timeout:         30 * time.Second,
		MaxConnsPerHost: 100,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		Breaker:         &breaker,
	}
}
