package cache

import (
	"fmt"
)

// FetchFailure is returned by FetchManaged when the origin could not be
// reached at all. Non-2xx responses are not failures; they are returned as
// responses.
type FetchFailure struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchFailure) Unwrap() error {
	return e.Err
}
