package swapi

import (
	"errors"
	"fmt"
)

// ErrPageLimit is returned when a collection keeps announcing a next page
// beyond the configured page ceiling.
var ErrPageLimit = errors.New("page limit reached")

// StatusError reports a non-2xx response from the catalog.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalog returned status %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("catalog returned status %d for %s: %s", e.StatusCode, e.URL, e.Body)
}
