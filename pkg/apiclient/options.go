package apiclient

import (
	"net/http"
	"net/url"

	"github.com/utafrali/freshcart/pkg/tokenstore"
)

// RequestOption customizes a single call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	auth    bool
	headers http.Header
	query   url.Values
	tokens  tokenstore.Store
}

func newRequestOptions(opts []RequestOption) requestOptions {
	o := requestOptions{auth: true, headers: http.Header{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithoutAuth sends the request without the bearer credential.
func WithoutAuth() RequestOption {
	return WithAuth(false)
}

// WithAuth sets whether the bearer credential is attached. Default true.
func WithAuth(required bool) RequestOption {
	return func(o *requestOptions) { o.auth = required }
}

// WithCredentials reads the bearer credential from tokens instead of the
// client's own store, e.g. a per-request cookie store.
func WithCredentials(tokens tokenstore.Store) RequestOption {
	return func(o *requestOptions) { o.tokens = tokens }
}

// WithHeader adds a request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) { o.headers.Add(key, value) }
}

// WithQuery appends query parameters to the URL.
func WithQuery(values url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range values {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}
