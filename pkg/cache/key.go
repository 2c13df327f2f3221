package cache

import (
	"net/url"
	"strings"
)

// Origin endpoints the front end knows about.
const (
	BookListEndpoint = "/books"
	booksPrefix      = "/books/"
	authorsPrefix    = "/authors/"

	// LastUpdatedSuffix is appended to an endpoint to probe its freshness.
	LastUpdatedSuffix = "/last-updated"
)

// BookEndpoint returns the detail endpoint of a book.
func BookEndpoint(bookID string) string {
	return booksPrefix + url.PathEscape(bookID)
}

// AuthorEndpoint returns the endpoint of an author.
func AuthorEndpoint(authorID string) string {
	return authorsPrefix + url.PathEscape(authorID)
}

// NormalizeOrigin trims trailing slashes so keys are built by plain concatenation.
func NormalizeOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}

// KeyFor builds the ledger key (fully-qualified URL) of an endpoint.
//
// Example:
//
//	KeyFor("https://api.example.com", "/books/42") // https://api.example.com/books/42
func KeyFor(origin, endpoint string) string {
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return origin + endpoint
}

// EndpointOf strips the origin from a key. Keys outside the origin are
// returned unchanged.
func EndpointOf(origin, key string) string {
	if origin == "" {
		return key
	}
	return strings.TrimPrefix(key, origin)
}
