package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
)

const (
	stateCookieName = "_my-bee-state"
	stateCookieTTL  = 10 * time.Minute
)

// AuthHandler serves the cookie based session surface and federated login.
type AuthHandler struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
	Users    *service.UserService
	Cookie   httpx.RefreshCookie

	// ClientURL is where the browser lands after a federated login.
	ClientURL string
}

func tokenResponse(access string, expiresAt time.Time) kanbeesdk.TokenResponse {
	return kanbeesdk.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   max(int(time.Until(expiresAt).Seconds()), 0),
		ExpiresAt:   expiresAt,
	}
}

func (h *AuthHandler) startSession(w http.ResponseWriter, pair domain.TokenPair) kanbeesdk.TokenResponse {
	h.Cookie.Set(w, pair.RefreshToken, pair.RefreshExpiresAt)
	return tokenResponse(pair.AccessToken, pair.AccessExpiresAt)
}

// HandleSignUp registers a local account and signs it in.
//
//	@Summary		Sign up
//	@Description	Creates a local account and starts a session. The refresh token is set as an HttpOnly cookie.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		kanbeesdk.SignUpRequest		true	"Account details"
//	@Success		201		{object}	kanbeesdk.TokenResponse
//	@Failure		400		{object}	kanbeesdk.ErrorResponse	"Invalid email, password or username"
//	@Failure		409		{object}	kanbeesdk.ErrorResponse	"Email already registered"
//	@Router			/v1/auth/sign-up [post].
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.SignUpRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	ctx := r.Context()
	u, err := h.Auth.SignUp(ctx, service.SignUpInput{Email: req.Email, Password: req.Password, Username: req.Username})
	if err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := h.Sessions.Issue(ctx, u, httpx.DeviceID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.startSession(w, pair))
}

// HandleSignIn checks a password and starts a session.
//
//	@Summary		Sign in
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		kanbeesdk.SignInRequest	true	"Credentials"
//	@Success		200		{object}	kanbeesdk.TokenResponse
//	@Failure		401		{object}	kanbeesdk.ErrorResponse	"Wrong email or password"
//	@Failure		429		{object}	kanbeesdk.ErrorResponse	"Too many attempts"
//	@Router			/v1/auth/sign-in [post].
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.SignInRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	pair, err := h.Auth.SignIn(r.Context(), req.Email, req.Password, httpx.DeviceID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.startSession(w, pair))
}

// HandleAmIAuth mints an access token from the refresh cookie without
// rotating it.
//
//	@Summary		Check session
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	kanbeesdk.TokenResponse
//	@Failure		401	{object}	kanbeesdk.ErrorResponse	"No live session"
//	@Router			/v1/auth/am-i-auth [get].
func (h *AuthHandler) HandleAmIAuth(w http.ResponseWriter, r *http.Request) {
	access, exp, err := h.Sessions.Peek(r.Context(), h.Cookie.Read(r), httpx.DeviceID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(access, exp))
}

// HandleInit rotates the session and returns the signed-in user. A dead
// session clears the cookie.
//
//	@Summary		Initialise client
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	kanbeesdk.InitResponse
//	@Failure		401	{object}	kanbeesdk.ErrorResponse	"No live session"
//	@Router			/v1/auth/init [get].
func (h *AuthHandler) HandleInit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pair, err := h.Sessions.Rotate(ctx, h.Cookie.Read(r), httpx.DeviceID(r))
	if err != nil {
		h.Cookie.Clear(w)
		writeError(w, r, err)
		return
	}

	claims, err := h.Sessions.Authenticate(pair.AccessToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.Cookie.Clear(w)
			err = service.ErrSessionExpired
		}
		writeError(w, r, err)
		return
	}

	u.Normalize()
	httpx.WriteJSON(w, http.StatusOK, struct {
		User  domain.User             `json:"user"`
		Token kanbeesdk.TokenResponse `json:"token"`
	}{u, h.startSession(w, pair)})
}

// HandleRefresh rotates the refresh cookie.
//
//	@Summary		Refresh tokens
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	kanbeesdk.TokenResponse
//	@Failure		401	{object}	kanbeesdk.ErrorResponse	"Refresh token unknown, expired or already used"
//	@Router			/v1/auth/refresh-tokens [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.Sessions.Rotate(r.Context(), h.Cookie.Read(r), httpx.DeviceID(r))
	if err != nil {
		h.Cookie.Clear(w)
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.startSession(w, pair))
}

// HandleLogout revokes the session and clears the cookie.
//
//	@Summary	Log out
//	@Tags		Auth
//	@Success	204
//	@Router		/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Revoke(r.Context(), h.Cookie.Read(r)); err != nil {
		slogx.FromContext(r.Context()).Warn("revoke session failed", "err", err)
	}
	h.Cookie.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleProviders lists the configured federated login providers.
//
//	@Summary	List login providers
//	@Tags		Auth
//	@Produce	json
//	@Success	200	{object}	kanbeesdk.ProvidersResponse
//	@Router		/v1/auth/providers [get].
func (h *AuthHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if h.Auth.Providers != nil {
		names = h.Auth.Providers.Names()
	}
	httpx.WriteJSON(w, http.StatusOK, kanbeesdk.ProvidersResponse{Providers: names})
}

// HandleProviderLogin redirects the browser to the provider's consent page.
//
//	@Summary	Start federated login
//	@Tags		Auth
//	@Param		provider	path	string	true	"google or github"
//	@Success	302
//	@Failure	404	{object}	kanbeesdk.ErrorResponse	"Provider not configured"
//	@Router		/v1/auth/{provider} [get].
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		writeError(w, r, err)
		return
	}

	target, err := h.Auth.ProviderURL(r.PathValue("provider"), state)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stateCookie(h.Cookie).Set(w, state, time.Now().Add(stateCookieTTL))
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleProviderCallback completes a federated login and sends the browser
// back to the client application.
//
//	@Summary	Federated login callback
//	@Tags		Auth
//	@Param		provider	path	string	true	"google or github"
//	@Param		code		query	string	true	"Authorization code"
//	@Param		state		query	string	true	"State issued by the login redirect"
//	@Success	302
//	@Failure	401	{object}	kanbeesdk.ErrorResponse	"State mismatch or exchange failed"
//	@Router		/v1/auth/{provider}/callback [get].
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	sc := stateCookie(h.Cookie)
	want := sc.Read(r)
	sc.Clear(w)

	q := r.URL.Query()
	got := q.Get("state")
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		writeError(w, r, service.ErrUnauthenticated)
		return
	}
	if q.Get("code") == "" {
		writeBadRequest(w, "missing authorization code")
		return
	}

	pair, err := h.Auth.ProviderSignIn(r.Context(), r.PathValue("provider"), q.Get("code"), httpx.DeviceID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookie.Set(w, pair.RefreshToken, pair.RefreshExpiresAt)

	target := h.ClientURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func stateCookie(c httpx.RefreshCookie) httpx.RefreshCookie {
	return httpx.RefreshCookie{Name: stateCookieName, Path: "/v1/auth", Secure: c.Secure}
}
