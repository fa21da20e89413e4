package apiclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval clears counts while closed; 0 never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureRatio of failed to total requests that trips the breaker.
	FailureRatio float64

	// MinRequests before the ratio is evaluated.
	MinRequests uint32
}

// DefaultBreakerConfig returns sensible defaults for a circuit breaker.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is wrapped in the NetworkError returned while the breaker
// rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// rawResponse is a fully buffered backend response.
type rawResponse struct {
	status     int
	statusLine string
	body       []byte
}

// serverFailure carries a 5xx through the breaker so it counts as a
// failure without losing the body the taxonomy needs.
type serverFailure struct {
	resp *rawResponse
}

func (e *serverFailure) Error() string {
	return fmt.Sprintf("server error %d", e.resp.status)
}

type breaker struct {
	cb *gobreaker.CircuitBreaker[*rawResponse]
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			circuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	circuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	return &breaker{cb: gobreaker.NewCircuitBreaker[*rawResponse](settings)}
}

// execute runs send through the breaker. Transport failures and 5xx
// responses count against it; a 5xx is still handed back to the caller.
func (b *breaker) execute(send func() (*rawResponse, error)) (*rawResponse, error) {
	resp, err := b.cb.Execute(func() (*rawResponse, error) {
		resp, err := send()
		if err != nil {
			return nil, err
		}
		if resp.status >= http.StatusInternalServerError {
			return nil, &serverFailure{resp: resp}
		}
		return resp, nil
	})

	var sf *serverFailure
	if errors.As(err, &sf) {
		return sf.resp, nil
	}
	return resp, err
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}
