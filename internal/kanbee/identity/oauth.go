package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Default profile endpoints.
const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubAPIURL      = "https://api.github.com"
)

// Config configures one OAuth2 provider. Endpoint and API base are
// overridable so tests can point them at a local server.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	Endpoint oauth2.Endpoint
	APIBase  string
}

// OAuthProvider runs the authorization code flow and then asks the provider
// API for the signed-in user's profile.
type OAuthProvider struct {
	name    domain.Provider
	oauth   *oauth2.Config
	apiBase string
	profile func(ctx context.Context, c *http.Client, apiBase string) (Profile, error)
}

// NewGoogle returns a Google provider. A zero Endpoint uses Google's.
func NewGoogle(cfg Config) *OAuthProvider {
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = endpoints.Google
	}
	if cfg.APIBase == "" {
		cfg.APIBase = googleUserInfoURL
	}
	return newOAuthProvider(domain.ProviderGoogle, cfg, []string{"openid", "email", "profile"}, googleProfile)
}

// NewGitHub returns a GitHub provider. A zero Endpoint uses GitHub's.
func NewGitHub(cfg Config) *OAuthProvider {
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = endpoints.GitHub
	}
	if cfg.APIBase == "" {
		cfg.APIBase = githubAPIURL
	}
	return newOAuthProvider(domain.ProviderGitHub, cfg, []string{"read:user", "user:email"}, githubProfile)
}

func newOAuthProvider(
	name domain.Provider,
	cfg Config,
	scopes []string,
	profile func(context.Context, *http.Client, string) (Profile, error),
) *OAuthProvider {
	return &OAuthProvider{
		name: name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       scopes,
		},
		apiBase: cfg.APIBase,
		profile: profile,
	}
}

func (p *OAuthProvider) Name() domain.Provider { return p.name }

func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *OAuthProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	prof, err := p.profile(ctx, p.oauth.Client(ctx, tok), p.apiBase)
	if err != nil {
		return Profile{}, err
	}
	prof.Provider = p.name
	if err := prof.Validate(); err != nil {
		return Profile{}, err
	}
	return prof, nil
}

func googleProfile(ctx context.Context, c *http.Client, userInfoURL string) (Profile, error) {
	var body struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, c, userInfoURL, &body); err != nil {
		return Profile{}, err
	}
	return Profile{Email: body.Email, Username: body.Name, Avatar: body.Picture}, nil
}

func githubProfile(ctx context.Context, c *http.Client, apiBase string) (Profile, error) {
	var user struct {
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, c, apiBase+"/user", &user); err != nil {
		return Profile{}, err
	}

	prof := Profile{Email: user.Email, Username: user.Name, Avatar: user.AvatarURL}
	if prof.Username == "" {
		prof.Username = user.Login
	}

	// Private emails are only listed on /user/emails.
	if prof.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, c, apiBase+"/user/emails", &emails); err != nil {
			return Profile{}, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				prof.Email = e.Email
				break
			}
		}
	}
	return prof, nil
}

func getJSON(ctx context.Context, c *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrExchange, url, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrExchange, url, err)
	}
	return nil
}
