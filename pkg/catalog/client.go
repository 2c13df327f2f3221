// Package catalog reads books from the origin through the managed fetcher.
//
// Page handlers use the Client; it decodes origin JSON into Book values and
// turns non-2xx answers into *UpstreamError. Server errors and transport
// failures are retried with backoff; 4xx answers are returned immediately.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/bookshelf-web/pkg/cache"
	"github.com/Sternrassler/bookshelf-web/pkg/logging"
	"github.com/rs/zerolog"
)

// maxBodySize caps how much of an origin response is read.
const maxBodySize = 10 << 20

// Fetcher is the managed origin access. *cache.Manager implements it.
type Fetcher interface {
	FetchManaged(ctx context.Context, rawURL string, opts *cache.FetchOptions) (*http.Response, error)
	Key(endpoint string) string
}

// Config holds client configuration.
type Config struct {
	Retry RetryConfig
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{Retry: DefaultRetryConfig()}
}

// Client reads catalog data.
type Client struct {
	fetcher Fetcher
	retry   RetryConfig
	logger  zerolog.Logger
}

// NewClient creates a catalog client.
func NewClient(fetcher Fetcher, cfg Config) *Client {
	return &Client{
		fetcher: fetcher,
		retry:   cfg.Retry,
		logger:  logging.NewLogger("catalog"),
	}
}

// ListBooks returns every book in the catalog.
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var books []Book
	if err := c.getJSON(ctx, cache.BookListEndpoint, &books); err != nil {
		return nil, err
	}
	if books == nil {
		books = []Book{}
	}
	return books, nil
}

// GetBook returns a single book. A missing book yields an error for which
// IsNotFound is true.
func (c *Client) GetBook(ctx context.Context, bookID string) (*Book, error) {
	var book Book
	if err := c.getJSON(ctx, cache.BookEndpoint(bookID), &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// DownloadURL returns the file link of a book.
func (c *Client) DownloadURL(ctx context.Context, bookID string) (string, error) {
	book, err := c.GetBook(ctx, bookID)
	if err != nil {
		return "", err
	}
	if book.File == "" {
		return "", &UpstreamError{
			StatusCode: http.StatusNotFound,
			URL:        c.fetcher.Key(cache.BookEndpoint(bookID)),
			ErrorClass: ErrorClassClient,
			Err:        fmt.Errorf("book %s has no file", bookID),
		}
	}
	return book.File, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	rawURL := c.fetcher.Key(endpoint)

	return c.retryWithBackoff(ctx, func() error {
		resp, err := c.fetcher.FetchManaged(ctx, rawURL, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return &UpstreamError{
				StatusCode: resp.StatusCode,
				URL:        rawURL,
				ErrorClass: ErrorClassNetwork,
				Err:        fmt.Errorf("read body: %w", err),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn().
				Str("url", rawURL).
				Int("status", resp.StatusCode).
				Msg("Origin returned an error status")
			return &UpstreamError{
				StatusCode: resp.StatusCode,
				URL:        rawURL,
				ErrorClass: classForStatus(resp.StatusCode),
			}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return &UpstreamError{
				StatusCode: resp.StatusCode,
				URL:        rawURL,
				ErrorClass: ErrorClassDecode,
				Err:        fmt.Errorf("decode: %w", err),
			}
		}
		return nil
	})
}
