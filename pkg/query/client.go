// Package query is a keyed, in-memory query cache for read operations.
//
// Each entry remembers the last data and error of a fetch function together
// with its caching policy. Fresh data is served without a round trip;
// stale or missing data is fetched again, identical concurrent fetches
// share one call, and failures are retried per the entry's RetryFunc.
// Invalidate marks entries stale by key prefix. While Run is active the
// client also performs interval refetches, background refetches after
// invalidation and retention eviction.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/freshcart/pkg/logger"
)

// FetchFunc loads the data of one entry.
type FetchFunc func(ctx context.Context) (any, error)

// Status is the lifecycle of an entry.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// State is a snapshot of one entry.
type State struct {
	Data        any
	HasData     bool
	Err         error
	Status      Status
	UpdatedAt   time.Time
	Stale       bool
	Invalidated bool
	Fetching    bool
}

type entry struct {
	key         Key
	data        any
	hasData     bool
	err         error
	updatedAt   time.Time
	invalidated bool
	inflight    int
	fetcher     FetchFunc
	opts        Options
	lastUsed    time.Time
	lastFetch   time.Time

	// gen changes whenever the entry is written, invalidated or removed
	// outside a fetch. A fetch started under an older gen must not record
	// its result. Generations are unique across the client.
	gen uint64
}

func (e *entry) fetching() bool {
	return e.inflight > 0
}

func (e *entry) stale(now time.Time) bool {
	if !e.hasData || e.invalidated {
		return true
	}
	return now.Sub(e.updatedAt) >= e.opts.StaleTime
}

func (e *entry) status() Status {
	switch {
	case e.err != nil && !e.fetching():
		return StatusError
	case e.hasData:
		return StatusSuccess
	default:
		return StatusPending
	}
}

// Client holds the cache. The zero value is not usable; call NewClient.
type Client struct {
	mu       sync.Mutex
	entries  map[string]*entry
	group    singleflight.Group
	defaults Options
	now      func() time.Time
	tick     time.Duration
	logger   *slog.Logger
	seq      uint64 // last generation handed out, guarded by mu

	bgMu  sync.Mutex
	bgCtx context.Context
	bgWG  sync.WaitGroup
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDefaults sets the policy used for entries created by SetData.
func WithDefaults(opts Options) ClientOption {
	return func(c *Client) { c.defaults = opts }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithTickInterval sets how often Run checks intervals and retention.
func WithTickInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.tick = d
		}
	}
}

// NewClient creates an empty cache.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		entries:  make(map[string]*entry),
		defaults: DefaultOptions(),
		now:      time.Now,
		tick:     30 * time.Second,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Defaults returns the default policy.
func (c *Client) Defaults() Options {
	return c.defaults
}

// entryLocked returns the entry for key, creating it. c.mu must be held.
func (c *Client) entryLocked(key Key, opts Options) *entry {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...), opts: opts, gen: c.nextGenLocked()}
		c.entries[id] = e
		cacheEntries.Inc()
	}
	return e
}

func (c *Client) nextGenLocked() uint64 {
	c.seq++
	return c.seq
}

// Fetch returns the data under key, calling fn when it is missing or
// stale. The entry adopts fn and opts for later background refetches.
func (c *Client) Fetch(ctx context.Context, key Key, opts Options, fn FetchFunc) (any, error) {
	c.mu.Lock()
	now := c.now()
	e := c.entryLocked(key, opts)
	e.fetcher = fn
	e.opts = opts
	e.lastUsed = now
	if !e.stale(now) {
		data := e.data
		c.mu.Unlock()
		cacheHitsTotal.WithLabelValues(key.String()).Inc()
		return data, nil
	}
	c.mu.Unlock()

	cacheMissesTotal.WithLabelValues(key.String()).Inc()
	return c.fetch(ctx, e)
}

// Fetch is the typed form of Client.Fetch.
func Fetch[T any](ctx context.Context, c *Client, key Key, opts Options, fn func(context.Context) (T, error)) (T, error) {
	v, err := c.Fetch(ctx, key, opts, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](key, v)
}

func cast[T any](key Key, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query %s holds %T, not %T", key, v, zero)
	}
	return t, nil
}

// errSuperseded marks a fetch whose entry was written, invalidated or
// removed while it ran.
var errSuperseded = errors.New("query fetch superseded")

// fetch runs the entry's fetcher once for all concurrent callers of the
// same generation and records the outcome. When the generation moves on
// during the call the outcome is dropped: the caller gets the entry's data
// if it is fresh again, otherwise the fetch starts over.
func (c *Client) fetch(ctx context.Context, e *entry) (any, error) {
	for {
		c.mu.Lock()
		gen := e.gen
		c.mu.Unlock()

		v, err, _ := c.group.Do(e.key.id()+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
			return c.fetchGen(ctx, e, gen)
		})
		if !errors.Is(err, errSuperseded) {
			return v, err
		}

		c.mu.Lock()
		if c.entries[e.key.id()] != e {
			// Removed while fetching; continue on the live entry.
			live := c.entryLocked(e.key, e.opts)
			if live.fetcher == nil {
				live.fetcher = e.fetcher
			}
			live.lastUsed = c.now()
			e = live
		}
		if !e.stale(c.now()) {
			data := e.data
			c.mu.Unlock()
			return data, nil
		}
		c.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (c *Client) fetchGen(ctx context.Context, e *entry, gen uint64) (any, error) {
	c.mu.Lock()
	fn, opts, key := e.fetcher, e.opts, e.key
	e.inflight++
	e.lastFetch = c.now()
	c.mu.Unlock()

	data, err := c.retry(ctx, key, opts, fn)

	c.mu.Lock()
	defer c.mu.Unlock()
	e.inflight--
	if e.gen != gen {
		c.logger.Debug("query fetch result dropped", slog.String("key", key.String()))
		return nil, errSuperseded
	}
	if err != nil {
		e.err = err
		return nil, err
	}
	e.data, e.hasData, e.err = data, true, nil
	e.updatedAt = c.now()
	e.invalidated = false
	return data, nil
}

// retry calls fn until it succeeds or the retry policy gives up.
func (c *Client) retry(ctx context.Context, key Key, opts Options, fn FetchFunc) (any, error) {
	failures := 0
	operation := func() (any, error) {
		data, err := fn(ctx)
		if err == nil {
			fetchesTotal.WithLabelValues(key.String(), "success").Inc()
			return data, nil
		}
		fetchesTotal.WithLabelValues(key.String(), "error").Inc()

		retry := opts.Retry != nil && opts.Retry(failures, err)
		failures++
		if !retry {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(opts.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithContext(ctx, c.logger).WarnContext(ctx, "query fetch failed, retrying",
				slog.String("key", key.String()),
				slog.Int("failures", failures),
				slog.Duration("next", next),
				slog.String("error", err.Error()),
			)
		}),
	)
}

// SetData writes data under key as if a fetch had just returned it.
func (c *Client) SetData(key Key, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e := c.entryLocked(key, c.defaults)
	e.gen = c.nextGenLocked()
	e.data, e.hasData, e.err = data, true, nil
	e.updatedAt = now
	e.lastUsed = now
	e.invalidated = false
}

// GetData reads the cached data under key without fetching.
func (c *Client) GetData(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// GetData is the typed form of Client.GetData.
func GetData[T any](c *Client, key Key) (T, bool) {
	v, ok := c.GetData(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, err := cast[T](key, v)
	return t, err == nil
}

// State returns a snapshot of the entry under key.
func (c *Client) State(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return State{}, false
	}
	return State{
		Data:        e.data,
		HasData:     e.hasData,
		Err:         e.err,
		Status:      e.status(),
		UpdatedAt:   e.updatedAt,
		Stale:       e.stale(c.now()),
		Invalidated: e.invalidated,
		Fetching:    e.fetching(),
	}, true
}

// Invalidate marks every entry under prefix stale. The next Fetch goes to
// the network; while Run is active entries that have a fetcher are also
// refetched in the background.
func (c *Client) Invalidate(prefix Key) int {
	c.mu.Lock()
	var refetch []*entry
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.gen = c.nextGenLocked()
		n++
		if e.fetcher != nil {
			refetch = append(refetch, e)
		}
	}
	c.mu.Unlock()

	for _, e := range refetch {
		c.background(e, "invalidate")
	}
	return n
}

// Remove drops every entry under prefix.
func (c *Client) Remove(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.gen = c.nextGenLocked()
			delete(c.entries, id)
			n++
		}
	}
	cacheEntries.Sub(float64(n))
	return n
}

// Len returns the number of entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Focus refetches stale entries that opted into RefetchOnFocus and waits
// for them. It returns the first fetch error.
func (c *Client) Focus(ctx context.Context) error {
	return c.refetchStale(ctx, func(o Options) bool { return o.RefetchOnFocus })
}

// Reconnect refetches stale entries that opted into RefetchOnReconnect.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.refetchStale(ctx, func(o Options) bool { return o.RefetchOnReconnect })
}

func (c *Client) refetchStale(ctx context.Context, optedIn func(Options) bool) error {
	c.mu.Lock()
	now := c.now()
	var due []*entry
	for _, e := range c.entries {
		if e.fetcher != nil && optedIn(e.opts) && e.stale(now) {
			due = append(due, e)
		}
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, e := range due {
		g.Go(func() error {
			_, err := c.fetch(ctx, e)
			return err
		})
	}
	return g.Wait()
}

// Run performs interval refetches and retention eviction until ctx ends,
// and enables background refetch on Invalidate. It waits for background
// fetches before returning.
func (c *Client) Run(ctx context.Context) error {
	c.bgMu.Lock()
	c.bgCtx = ctx
	c.bgMu.Unlock()

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.bgMu.Lock()
			c.bgCtx = nil
			c.bgMu.Unlock()
			c.bgWG.Wait()
			return nil
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts idle entries and starts due interval refetches.
func (c *Client) sweep() {
	c.mu.Lock()
	now := c.now()
	var due []*entry
	evicted := 0
	for id, e := range c.entries {
		if e.fetching() {
			continue
		}
		if e.opts.GCTime > 0 && now.Sub(e.lastUsed) >= e.opts.GCTime {
			delete(c.entries, id)
			evicted++
			continue
		}
		if e.fetcher != nil && e.opts.RefetchInterval > 0 && now.Sub(e.lastFetch) >= e.opts.RefetchInterval {
			due = append(due, e)
		}
	}
	cacheEntries.Sub(float64(evicted))
	c.mu.Unlock()

	if evicted > 0 {
		c.logger.Debug("query cache evicted idle entries", slog.Int("count", evicted))
	}
	for _, e := range due {
		c.background(e, "interval")
	}
}

// background refetches e if Run is active.
func (c *Client) background(e *entry, reason string) {
	c.bgMu.Lock()
	ctx := c.bgCtx
	if ctx == nil {
		c.bgMu.Unlock()
		return
	}
	c.bgWG.Add(1)
	c.bgMu.Unlock()

	go func() {
		defer c.bgWG.Done()
		if _, err := c.fetch(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithContext(ctx, c.logger).WarnContext(ctx, "background refetch failed",
				slog.String("key", e.key.String()),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
		}
	}()
}
