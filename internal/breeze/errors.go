package breeze

import (
	"fmt"
	"net/http"
)

// maxErrorBody bounds the provider response excerpt kept on APIError.
const maxErrorBody = 512

// APIError is returned when Breeze answers with a non-2xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Body is a truncated excerpt of the response body. It is meant for
	// operator logs and must not be shown to buyers.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("breeze: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether retrying the request later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       string(body),
	}
}
