package httpx

import (
	"fmt"
	"net/http"
)

// APIError is a failure bound for the wire: an HTTP status plus the stable
// error code clients branch on.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Description)
}

// Write renders e as an ErrorResponse.
func (e APIError) Write(w http.ResponseWriter) {
	WriteError(w, e.Status, e.Code, e.Description)
}
