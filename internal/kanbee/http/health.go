package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
)

// Pinger is anything /readyz can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 2 * time.Second

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Always 200 while the process is serving.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	kanbeesdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, kanbeesdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the database, the signing key and the cache.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	kanbeesdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	kanbeesdk.HealthResponse	"a dependency is not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, db, cache Pinger, keys *jwtx.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := &kanbeesdk.HealthChecks{Database: "ok", Signer: "ok", Cache: "ok"}
		status, code := "ok", http.StatusOK
		degrade := func(field *string, msg string) {
			*field = "error: " + msg
			status, code = "degraded", http.StatusServiceUnavailable
		}

		if err := db.Ping(ctx); err != nil {
			degrade(&checks.Database, err.Error())
		}
		if !keys.IsReady() {
			degrade(&checks.Signer, "no keys loaded")
		}
		if err := cache.Ping(ctx); err != nil {
			degrade(&checks.Cache, err.Error())
		}

		httpx.WriteJSON(w, code, kanbeesdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

// JWKSHandler exposes the public keys access tokens are signed with.
//
//	@Summary	Get JWKS
//	@Tags		well-known
//	@Produce	json
//	@Success	200	{object}	kanbeesdk.JWKSResponse
//	@Router		/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, kanbeesdk.JWKSResponse(keys.PublicJWKS()))
	}
}
