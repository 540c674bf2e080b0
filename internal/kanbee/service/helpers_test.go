package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/memory"
	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "kanbee-test"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	store      *memory.Store
	cache      *cache.Memory
	clock      *clock
	users      *service.UserService
	sessions   *service.SessionService
	membership *service.MembershipService
	quotes     *service.QuoteService
	auth       *service.AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(testIssuer)
	require.NoError(t, err)

	clk := &clock{now: time.Now().UTC()}
	st := memory.NewStore()
	c := cache.NewMemory(clk.Now)

	users := &service.UserService{
		Store:      st,
		Cache:      c,
		Hasher:     cryptox.PasswordHasher{Pepper: "pepper"},
		SessionTTL: time.Hour,
		Now:        clk.Now,
	}
	sessions := &service.SessionService{
		Store:      st,
		Users:      users,
		Keys:       km,
		Issuer:     testIssuer,
		SessionTTL: 24 * time.Hour,
		Now:        clk.Now,
	}

	return &env{
		store:      st,
		cache:      c,
		clock:      clk,
		users:      users,
		sessions:   sessions,
		membership: &service.MembershipService{Now: clk.Now},
		quotes:     &service.QuoteService{Store: st, Cache: c, Users: users, TTL: time.Hour, Now: clk.Now},
		auth:       &service.AuthService{Users: users, Sessions: sessions},
	}
}

func (e *env) register(t *testing.T, email, username string) domain.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), service.SignUpInput{Email: email, Password: "secret1", Username: username})
	require.NoError(t, err)
	return u
}

func (e *env) tx(t *testing.T, fn func(tx store.Tx) error) error {
	t.Helper()
	return service.InTx(context.Background(), e.store, "test", fn)
}

func (e *env) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := e.store.Users().GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *env) project(t *testing.T, id string) domain.Project {
	t.Helper()
	p, err := e.store.Projects().GetProjectByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
