package kanbeesdk

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// RefreshCookieName is the server's default refresh cookie.
const RefreshCookieName = "_my-bee"

// Client talks to one kanbee deployment. Its cookie jar holds the refresh
// cookie, so one Client is one device.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// UserAgent identifies the device sessions are bound to.
	UserAgent string
}

func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent: "kanbeesdk/1",
	}
}

// SignUp registers an account and signs it in.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	var tok TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/sign-up", req, &tok, http.StatusCreated); err != nil {
		return nil, err
	}
	return newSession(c, tok), nil
}

// SignIn starts a session with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var tok TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/sign-in", SignInRequest{Email: email, Password: password}, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, tok), nil
}

// Refresh rotates the refresh cookie and returns a new access token.
func (c *Client) Refresh(ctx context.Context) (*TokenResponse, error) {
	var tok TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/refresh-tokens", nil, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return &tok, nil
}

// AmIAuth mints an access token from the refresh cookie without rotating it.
func (c *Client) AmIAuth(ctx context.Context) (*TokenResponse, error) {
	var tok TokenResponse
	if err := c.getJSON(ctx, "/v1/auth/am-i-auth", "", &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Init rotates the refresh cookie and returns the signed-in user. The
// server clears the cookie when the session is gone.
func (c *Client) Init(ctx context.Context) (*Session, *User, error) {
	var out InitResponse
	if err := c.getJSON(ctx, "/v1/auth/init", "", &out); err != nil {
		return nil, nil, err
	}
	return newSession(c, out.Token), &out.User, nil
}

// Logout revokes the session behind the refresh cookie.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", "", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Providers lists the federated login providers.
func (c *Client) Providers(ctx context.Context) ([]string, error) {
	var out ProvidersResponse
	if err := c.getJSON(ctx, "/v1/auth/providers", "", &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

// RandomQuote needs no session.
func (c *Client) RandomQuote(ctx context.Context) (*QuoteOfTheDay, error) {
	var out QuoteOfTheDay
	if err := c.getJSON(ctx, "/v1/quotes/random", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/livez", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReadiness checks if the service and its dependencies are ready.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/readyz", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJWKS fetches the access token verification keys.
func (c *Client) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	var out JWKSResponse
	if err := c.getJSON(ctx, "/.well-known/jwks.json", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
