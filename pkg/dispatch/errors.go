package dispatch

import "errors"

var (
	// ErrInvalidRequest marks client-fixable request problems (HTTP 400).
	ErrInvalidRequest = errors.New("invalid request")
	// ErrConfiguration marks missing or unusable operator configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuth marks a failed credential exchange or signing step.
	ErrAuth = errors.New("auth error")
	// ErrDelivery marks a single rejected delivery. It is never fatal to a batch.
	ErrDelivery = errors.New("delivery error")
	// ErrDirectory marks a failed directory read.
	ErrDirectory = errors.New("directory error")
	// ErrNotFound is returned by a Directory when a user does not exist.
	ErrNotFound = errors.New("not found")
)

// IsOperatorError reports whether err should abort a request as a server-side
// failure the operator must fix.
func IsOperatorError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrAuth)
}
