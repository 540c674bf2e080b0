// Package identity exchanges OAuth2 authorization codes with external
// identity providers for a normalized user profile.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
)

var (
	ErrUnknownProvider = errors.New("identity: unknown provider")
	ErrExchange        = errors.New("identity: code exchange failed")
	ErrProfile         = errors.New("identity: incomplete profile")
)

// Profile is everything the service needs from a provider.
type Profile struct {
	Email    string
	Username string
	Avatar   string
	Provider domain.Provider
}

// Validate requires an email; the username falls back to the email's local part.
func (p *Profile) Validate() error {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Email == "" {
		return fmt.Errorf("%w: missing email", ErrProfile)
	}
	if strings.TrimSpace(p.Username) == "" {
		p.Username, _, _ = strings.Cut(p.Email, "@")
	}
	return nil
}

// Provider is one federated login backend.
type Provider interface {
	Name() domain.Provider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Profile, error)
}

// Registry looks providers up by their lowercase slug ("google", "github").
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[Slug(p.Name())] = p
		}
	}
	return r
}

func (r *Registry) Get(slug string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(slug)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, slug)
	}
	return p, nil
}

// Names lists configured provider slugs, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func Slug(p domain.Provider) string { return strings.ToLower(string(p)) }
