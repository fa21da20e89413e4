// Package apiclient is the storefront's HTTP request layer.
//
// Every call resolves the endpoint against the configured base URL, attaches
// the bearer credential unless told not to, and classifies the outcome: a
// 2xx yields the raw JSON body (nil when empty) and anything else yields
// exactly one apierror taxonomy member. The layer never touches the query
// cache or the token store beyond reading the credential.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/utafrali/freshcart/pkg/apierror"
	"github.com/utafrali/freshcart/pkg/logger"
	"github.com/utafrali/freshcart/pkg/tokenstore"
	"github.com/utafrali/freshcart/pkg/tracing"
)

const (
	// CorrelationHeader carries the per-request correlation id.
	CorrelationHeader = "X-Correlation-ID"

	maxResponseBytes = 10 << 20
)

// ErrMalformedResponse is returned when a 2xx body is not valid JSON.
var ErrMalformedResponse = errors.New("malformed response body")

// Client issues JSON requests against the storefront backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     tokenstore.Store
	limiter    *rate.Limiter
	breaker    *breaker
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates a request layer. tokens may be nil, in which case no
// credential is ever attached.
func New(cfg Config, tokens tokenstore.Store, log *slog.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		httpClient: newHTTPClient(cfg),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     tokens,
		logger:     log,
		tracer:     tracing.Tracer("storefront-apiclient"),
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	if cfg.Breaker != nil {
		c.breaker = newBreaker(*cfg.Breaker, log)
	}
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BreakerState reports the circuit breaker state; closed when disabled.
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.state()
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, opts...)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, opts...)
}

// Post performs a POST request with body encoded as JSON.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body, opts...)
}

// Put performs a PUT request with body encoded as JSON.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, endpoint, body, opts...)
}

// Patch performs a PATCH request with body encoded as JSON.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, body, opts...)
}

// Do performs one request. body is ignored for GET and DELETE.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, opts ...RequestOption) (json.RawMessage, error) {
	o := newRequestOptions(opts)

	target := c.resolve(endpoint)
	if len(o.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + o.query.Encode()
	}

	var payload io.Reader = http.NoBody
	if body != nil && method != http.MethodGet && method != http.MethodDelete {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, endpoint, err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}

	for k, vs := range o.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	correlationID := logger.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	req.Header.Set(CorrelationHeader, correlationID)

	// The credential only ever travels as a bearer header.
	req.Header.Del("Authorization")
	req.Header.Del("Cookie")
	tokens := c.tokens
	if o.tokens != nil {
		tokens = o.tokens
	}
	if o.auth && tokens != nil {
		token, err := tokens.Get(ctx)
		switch {
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+token)
		case !errors.Is(err, tokenstore.ErrNoToken):
			return nil, fmt.Errorf("read credential: %w", err)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
			attribute.String("storefront.endpoint", endpoint),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	log := logger.WithContext(ctx, c.logger).With(
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.String("correlation_id", correlationID),
	)

	start := time.Now()
	resp, err := c.send(req)
	elapsed := time.Since(start)
	apiRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())

	var result json.RawMessage
	if err == nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.status))
		result, err = classify(resp, endpoint)
	} else {
		err = apierror.NewNetworkError(endpoint, err)
	}

	if err != nil {
		kind := apierror.KindOf(err)
		apiRequestsTotal.WithLabelValues(method, endpoint, kind.String()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		log.WarnContext(ctx, "api request failed",
			slog.String("kind", kind.String()),
			slog.Int("status", apierror.StatusOf(err)),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	apiRequestsTotal.WithLabelValues(method, endpoint, "success").Inc()
	log.DebugContext(ctx, "api request",
		slog.Int("status", resp.status),
		slog.Duration("duration", elapsed),
	)
	return result, nil
}

// resolve uses absolute URLs verbatim and joins anything else onto the
// base URL.
func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if endpoint == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// send issues req and buffers the response, going through the breaker when
// one is configured.
func (c *Client) send(req *http.Request) (*rawResponse, error) {
	do := func() (*rawResponse, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return &rawResponse{status: resp.StatusCode, statusLine: resp.Status, body: body}, nil
	}

	if c.breaker == nil {
		return do()
	}
	return c.breaker.execute(do)
}

func classify(resp *rawResponse, endpoint string) (json.RawMessage, error) {
	if resp.status < 200 || resp.status > 299 {
		return nil, apierror.FromResponse(resp.status, resp.statusLine, endpoint, resp.body)
	}

	body := bytes.TrimSpace(resp.body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s returned status %d: %w", endpoint, resp.status, ErrMalformedResponse)
	}
	return json.RawMessage(body), nil
}

// Decode unmarshals a success body into T. An empty body yields the zero
// value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}
