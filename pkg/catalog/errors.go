package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/bookshelf-web/pkg/cache"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass groups failures by how the client reacts to them.
type ErrorClass string

const (
	// ErrorClassClient is a 4xx answer. Not retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer is a 5xx answer.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork is a transport failure.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode is a response body that could not be parsed. Not retried.
	ErrorClassDecode ErrorClass = "decode"
)

// UpstreamError is a non-2xx answer from the origin or an unreadable body.
type UpstreamError struct {
	StatusCode int
	URL        string
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d) for %s: %v", e.ErrorClass, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d) for %s", e.ErrorClass, e.StatusCode, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 from the origin.
func IsNotFound(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound
}

// classify maps an error from a fetch attempt to its class.
func classify(err error) ErrorClass {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.ErrorClass
	}
	var failure *cache.FetchFailure
	if errors.As(err, &failure) && !errors.Is(err, context.Canceled) {
		return ErrorClassNetwork
	}
	return ""
}

// classForStatus classifies a non-2xx status code.
func classForStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
