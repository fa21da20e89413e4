// Package session holds the storefront's resource operations: the
// session-user and category queries, and the authentication mutations that
// keep the credential and the cached user in step.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/utafrali/freshcart/pkg/apiclient"
	"github.com/utafrali/freshcart/pkg/apierror"
	"github.com/utafrali/freshcart/pkg/logger"
	"github.com/utafrali/freshcart/pkg/query"
	"github.com/utafrali/freshcart/pkg/tokenstore"
	"github.com/utafrali/freshcart/pkg/validator"
)

// API is the subset of the request layer the resource operations use.
type API interface {
	Get(ctx context.Context, endpoint string, opts ...apiclient.RequestOption) (json.RawMessage, error)
	Post(ctx context.Context, endpoint string, body any, opts ...apiclient.RequestOption) (json.RawMessage, error)
}

// UserKeys are the cache keys of the user resource.
var UserKeys = struct {
	All Key
	Me  func() Key
}{
	All: Key{"user"},
	Me:  func() Key { return Key{"user", "me"} },
}

// CategoryKeys are the cache keys of the category resource.
var CategoryKeys = struct {
	All  Key
	List func() Key
}{
	All:  Key{"categories"},
	List: func() Key { return Key{"categories", "categories"} },
}

// Key is a query cache key.
type Key = query.Key

// Context carries everything the resource operations share: the request
// layer, the credential slot, the query cache and the logger. Build one per
// application session (or per test).
type Context struct {
	API    API
	Tokens tokenstore.Store
	Cache  *query.Client
	Logger *slog.Logger

	// Query is the caching policy of both queries. Auth failures are never
	// retried whatever its Retry says.
	Query query.Options
}

// New creates a Context whose query policy is the cache's defaults.
func New(api API, tokens tokenstore.Store, cache *query.Client, log *slog.Logger) *Context {
	if log == nil {
		log = logger.Nop()
	}
	opts := cache.Defaults()
	opts.Retry = RetryUnlessAuth(opts.Retry)
	return &Context{
		API:    api,
		Tokens: tokens,
		Cache:  cache,
		Logger: log,
		Query:  opts,
	}
}

// RetryUnlessAuth wraps next so an AuthError is never retried; a stale or
// missing credential will not start working on the next attempt.
func RetryUnlessAuth(next query.RetryFunc) query.RetryFunc {
	return func(failureCount int, err error) bool {
		if apierror.IsAuth(err) {
			return false
		}
		return next != nil && next(failureCount, err)
	}
}

// validateInput checks v before it is sent and reports failures in the
// same shape as a 422 from endpoint.
func validateInput(endpoint string, v any) error {
	err := validator.Validate(v)
	if err == nil {
		return nil
	}
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return apierror.NewValidationError(endpoint, ve.Fields(), nil)
	}
	return err
}
