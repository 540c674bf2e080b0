package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

var statusByCode = map[string]int{
	service.CodeUnauthenticated: http.StatusUnauthorized,
	service.CodeForbidden:       http.StatusForbidden,
	service.CodeNotFound:        http.StatusNotFound,
	service.CodeConflict:        http.StatusConflict,
	service.CodeInvalidInput:    http.StatusBadRequest,
	service.CodeSyncFault:       http.StatusInternalServerError,
	service.CodeServerError:     http.StatusInternalServerError,
}

// apiError maps a service outcome onto its HTTP form.
func apiError(err error) httpx.APIError {
	code := service.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return httpx.APIError{Status: status, Code: code, Description: service.Message(err)}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apiError(err)
	log := slogx.FromContext(r.Context())

	var fault *service.SyncFault
	switch {
	case errors.As(err, &fault):
		log.Error("synchronization fault", slog.Any("fault", fault))
	case e.Status >= http.StatusInternalServerError:
		log.Error("request failed", slog.Any("error", err))
	default:
		log.Debug("request rejected", slog.String("code", e.Code), slog.Any("error", err))
	}

	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	e.Write(w)
}

func writeBadRequest(w http.ResponseWriter, desc string) {
	httpx.WriteError(w, http.StatusBadRequest, service.CodeInvalidInput, desc)
}
