package asana

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a non-2xx response from the Asana API.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("asana api error %d: %s", e.StatusCode, e.Body)
}

// IsAuth reports whether err means the credentials are invalid or expired.
// Auth failures are fatal for the whole run.
func IsAuth(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsTransient reports whether err is worth retrying: rate limiting or a
// server-side failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Network-level errors (no HTTP response at all) are transient too.
	return err != nil
}
