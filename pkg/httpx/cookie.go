package httpx

import (
	"net/http"
	"time"
)

// RefreshCookie describes how the refresh token cookie is written.
type RefreshCookie struct {
	Name   string
	Path   string
	Secure bool
}

// Set writes token with an absolute expiry.
func (c RefreshCookie) Set(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     c.path(),
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the cookie on the client.
func (c RefreshCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     c.path(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the cookie value, or "" when absent.
func (c RefreshCookie) Read(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c RefreshCookie) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}
