package geocode

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/locametry/internal/resilience"
)

var (
	// ErrEmptyQuery is returned by Search for a blank query.
	ErrEmptyQuery = eris.New("geocode: empty search query")
	// ErrNotFound is returned by Reverse when the service has no address
	// for the coordinates.
	ErrNotFound = eris.New("geocode: no address found")
	// ErrCacheDisabled is returned by Cache.Clear when no store is configured.
	ErrCacheDisabled = eris.New("geocode: cache is disabled")
)

// ExternalServiceError reports a failed call to the geocoding service:
// a transport failure, a non-2xx status or an undecodable body.
type ExternalServiceError struct {
	Op         string // "reverse" or "search"
	StatusCode int    // 0 for transport failures
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("geocode: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("geocode: %s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Transient reports whether the failure may clear on a later attempt.
// The client never retries on its own.
func (e *ExternalServiceError) Transient() bool {
	if e.StatusCode != 0 {
		return resilience.IsTransientHTTPStatus(e.StatusCode)
	}
	return resilience.IsTransient(e.Err)
}
