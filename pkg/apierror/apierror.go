// Package apierror is the closed error taxonomy of the storefront client.
//
// Every failed backend call surfaces as exactly one of NetworkError,
// AuthError, ValidationError or APIError. Each type unwraps to a sentinel
// so callers can use errors.Is, and KindOf gives an exhaustive switch.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched by errors.Is.
var (
	ErrNetwork       = errors.New("network unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("conflict")
	ErrServer        = errors.New("server error")
	ErrRequestFailed = errors.New("request failed")
)

// DefaultNetworkMessage is used when a NetworkError is built without one.
const DefaultNetworkMessage = "Network request failed. Please check your connection."

// Kind identifies a taxonomy member.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth
	KindValidation
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// StatusCoder is implemented by the taxonomy members that come from an
// HTTP response.
type StatusCoder interface {
	error
	StatusCode() int
}

// NetworkError means no HTTP response was received.
type NetworkError struct {
	Endpoint string
	Message  string
	Err      error
}

// NewNetworkError builds a NetworkError. cause may be nil.
func NewNetworkError(endpoint string, cause error) *NetworkError {
	return &NetworkError{Endpoint: endpoint, Message: DefaultNetworkMessage, Err: cause}
}

func (e *NetworkError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultNetworkMessage
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Endpoint, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, msg)
}

// Unwrap exposes both ErrNetwork and the transport cause.
func (e *NetworkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetwork}
	}
	return []error{ErrNetwork, e.Err}
}

// AuthError is a 401 from the backend.
type AuthError struct {
	Endpoint string
	Payload  json.RawMessage
}

// NewAuthError builds an AuthError.
func NewAuthError(endpoint string, payload json.RawMessage) *AuthError {
	return &AuthError{Endpoint: endpoint, Payload: payload}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %d Unauthorized", e.Endpoint, http.StatusUnauthorized)
}

func (e *AuthError) Unwrap() error   { return ErrUnauthorized }
func (e *AuthError) StatusCode() int { return http.StatusUnauthorized }

// ValidationError is a 422 from the backend, or a local input check that
// failed before any request was sent.
type ValidationError struct {
	Endpoint string
	Fields   map[string][]string
	Payload  json.RawMessage
}

// NewValidationError builds a ValidationError; nil fields become an empty map.
func NewValidationError(endpoint string, fields map[string][]string, payload json.RawMessage) *ValidationError {
	if fields == nil {
		fields = map[string][]string{}
	}
	return &ValidationError{Endpoint: endpoint, Fields: fields, Payload: payload}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d Validation failed", e.Endpoint, http.StatusUnprocessableEntity)
}

func (e *ValidationError) Unwrap() error   { return ErrInvalidInput }
func (e *ValidationError) StatusCode() int { return http.StatusUnprocessableEntity }

// APIError is any other non-2xx response.
type APIError struct {
	Status   int
	Message  string
	Endpoint string
	Payload  json.RawMessage
}

// NewAPIError builds an APIError.
func NewAPIError(status int, message, endpoint string, payload json.RawMessage) *APIError {
	return &APIError{Status: status, Message: message, Endpoint: endpoint, Payload: payload}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusConflict:
		return ErrConflict
	case e.Status >= 500:
		return ErrServer
	default:
		return ErrRequestFailed
	}
}

// KindOf reports which taxonomy member err is, looking through wrapping.
func KindOf(err error) Kind {
	var (
		valErr  *ValidationError
		authErr *AuthError
		netErr  *NetworkError
		apiErr  *APIError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &valErr):
		return KindValidation
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &apiErr):
		return KindAPI
	default:
		return KindUnknown
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
