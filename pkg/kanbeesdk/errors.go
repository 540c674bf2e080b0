package kanbeesdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes shared by the REST and realtime surfaces.
const (
	ErrorCodeUnauthenticated   = "unauthenticated"
	ErrorCodeForbidden         = "forbidden"
	ErrorCodeNotFound          = "not_found"
	ErrorCodeConflict          = "conflict"
	ErrorCodeInvalidInput      = "invalid_input"
	ErrorCodeSyncFault         = "sync_fault"
	ErrorCodeServerError       = "server_error"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
)

// APIError is a failed call. StatusCode is zero for realtime replies.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Is matches on Code so errors.Is(err, ErrNotFound) works for any
// not_found response.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthenticated = &APIError{Code: ErrorCodeUnauthenticated}
	ErrForbidden       = &APIError{Code: ErrorCodeForbidden}
	ErrNotFound        = &APIError{Code: ErrorCodeNotFound}
	ErrConflict        = &APIError{Code: ErrorCodeConflict}
	ErrInvalidInput    = &APIError{Code: ErrorCodeInvalidInput}
	ErrSyncFault       = &APIError{Code: ErrorCodeSyncFault}
	ErrRateLimited     = &APIError{Code: ErrorCodeRateLimitExceeded}
)

func parseErrorResponse(resp *http.Response, body []byte) error {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: er.Error, Description: er.ErrorDescription}
	}
	return &APIError{StatusCode: resp.StatusCode, Code: ErrorCodeServerError, Description: http.StatusText(resp.StatusCode)}
}
