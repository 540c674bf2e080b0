package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/coordinator"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"

	_ "github.com/aussiebroadwan/kanbee/api/kanbee" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store Pinger
	cache Pinger

	AuthService    *service.AuthService
	SessionService *service.SessionService
	UserService    *service.UserService
	QuoteService   *service.QuoteService
	Coordinator    *coordinator.Coordinator
	Metrics        *metrics.Metrics

	// Gateway serves GET /v1/ws when set.
	Gateway http.Handler

	Cookie    httpx.RefreshCookie
	ClientURL string

	AuthLimit   httpx.RateLimitConfig
	APILimit    httpx.RateLimitConfig
	PublicLimit httpx.RateLimitConfig
}

func NewRouter(keys *jwtx.KeyManager, buildVersion string, st, cache Pinger, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		cache:        cache,
		logger:       logger,
		AuthLimit:    httpx.AuthLimit,
		APILimit:     httpx.APILimit,
		PublicLimit:  httpx.PublicLimit,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerProjects()
	r.registerQuotes()
	r.registerRealtime()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Kanbee API
//	@version		0.1.0
//	@description	Collaborative kanban boards. Boards change over the realtime gateway at /v1/ws (subprotocol kanbee.v1); this API covers accounts, sessions and the same project operations over REST.
//	@description
//	@description				Access tokens are EdDSA signed JWTs verifiable with the JWKS endpoint. Refresh tokens travel only in an HttpOnly cookie.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/kanbee
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// secured requires an access token and limits by user.
func (r *Router) secured(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.keys.Verifier),
		httpx.RateLimitByUser(r.APILimit),
	)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Auth:      r.AuthService,
		Sessions:  r.SessionService,
		Users:     r.UserService,
		Cookie:    r.Cookie,
		ClientURL: r.ClientURL,
	}

	// Credential endpoints: strict, keyed by address plus the email tried.
	r.Mux.Handle("POST /v1/auth/sign-in",
		httpx.Chain(http.HandlerFunc(h.HandleSignIn), httpx.RateLimitByIPAndEmail(r.AuthLimit)))
	r.Mux.Handle("POST /v1/auth/sign-up",
		httpx.Chain(http.HandlerFunc(h.HandleSignUp), httpx.RateLimitByIP(r.AuthLimit)))

	// Cookie driven session endpoints.
	sessionLimit := httpx.RateLimitByIP(r.APILimit)
	r.Mux.Handle("GET /v1/auth/am-i-auth", httpx.Chain(http.HandlerFunc(h.HandleAmIAuth), sessionLimit))
	r.Mux.Handle("GET /v1/auth/init", httpx.Chain(http.HandlerFunc(h.HandleInit), sessionLimit))
	r.Mux.Handle("POST /v1/auth/refresh-tokens", httpx.Chain(http.HandlerFunc(h.HandleRefresh), sessionLimit))
	r.Mux.Handle("POST /v1/auth/logout", httpx.Chain(http.HandlerFunc(h.HandleLogout), sessionLimit))

	// Federated login.
	r.Mux.Handle("GET /v1/auth/providers",
		httpx.Chain(http.HandlerFunc(h.HandleProviders), httpx.RateLimitByIP(r.PublicLimit)))
	r.Mux.Handle("GET /v1/auth/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleProviderLogin), httpx.RateLimitByIP(r.AuthLimit)))
	r.Mux.Handle("GET /v1/auth/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.HandleProviderCallback), httpx.RateLimitByIP(r.AuthLimit)))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Users: r.UserService, Coord: r.Coordinator}

	r.Mux.Handle("GET /v1/users/me", r.secured(h.HandleMe))
	r.Mux.Handle("GET /v1/users/search", r.secured(h.HandleSearch))
	r.Mux.Handle("POST /v1/users/members", r.secured(h.HandleMembers))
	r.Mux.Handle("GET /v1/users/{idOrEmail}", r.secured(h.HandleGet))
	r.Mux.Handle("PATCH /v1/users/{id}", r.secured(h.HandleUpdate))
	r.Mux.Handle("DELETE /v1/users/{id}", r.secured(h.HandleDelete))
	r.Mux.Handle("POST /v1/users/{id}/timer", r.secured(h.HandleTimer))
	r.Mux.Handle("POST /v1/users/{id}/exclusions/accept", r.secured(h.HandleAcceptExclusion))
}

func (r *Router) registerProjects() {
	h := &ProjectsHandler{Coord: r.Coordinator}

	r.Mux.Handle("GET /v1/projects", r.secured(h.HandleList))
	r.Mux.Handle("POST /v1/projects", r.secured(h.HandleCreate))
	r.Mux.Handle("GET /v1/projects/{id}", r.secured(h.HandleGet))
	r.Mux.Handle("DELETE /v1/projects/{id}", r.secured(h.HandleDelete))
	r.Mux.Handle("PUT /v1/projects/{id}/kanban", r.secured(h.HandleUpdateKanban))
	r.Mux.Handle("GET /v1/projects/{id}/members", r.secured(h.HandleMembers))
	r.Mux.Handle("DELETE /v1/projects/{id}/members/{userId}", r.secured(h.HandleRemoveMember))
	r.Mux.Handle("POST /v1/projects/{id}/invites", r.secured(h.HandleInvite))
	r.Mux.Handle("POST /v1/projects/{id}/invites/accept", r.secured(h.HandleAcceptInvite))
	r.Mux.Handle("POST /v1/projects/{id}/invites/ignore", r.secured(h.HandleIgnoreInvite))
}

func (r *Router) registerQuotes() {
	h := &QuotesHandler{Quotes: r.QuoteService}

	r.Mux.Handle("POST /v1/quotes", r.secured(h.HandleCreate))
	r.Mux.Handle("GET /v1/quotes/random",
		httpx.Chain(http.HandlerFunc(h.HandleRandom), httpx.RateLimitByIP(r.PublicLimit)))
}

func (r *Router) registerRealtime() {
	if r.Gateway == nil {
		return
	}
	// The gateway authenticates itself so browsers can pass the token as a
	// query parameter.
	r.Mux.Handle("GET /v1/ws", httpx.Chain(r.Gateway, httpx.RateLimitByIP(r.APILimit)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion), httpx.RateLimitByIP(r.PublicLimit)))
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache, r.keys), httpx.RateLimitByIP(r.PublicLimit)))
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys.KeySet), httpx.RateLimitByIP(r.PublicLimit)))
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
