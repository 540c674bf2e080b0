package coordinator_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/coordinator"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/memory"
	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
	"github.com/stretchr/testify/require"
)

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
	store   *memory.Store
	cache   *cache.Memory
	clock   *clock
	router  *realtime.Router
	metrics *metrics.Metrics
	users   *service.UserService
	coord   *coordinator.Coordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithStore(t, nil)
}

// newEnvWithStore lets the coordinator run against a wrapped store while
// accounts are still created directly in the memory driver.
func newEnvWithStore(t *testing.T, wrap func(*memory.Store) store.Store) *env {
	t.Helper()

	clk := &clock{now: time.Now().UTC()}
	st := memory.NewStore()
	c := cache.NewMemory(clk.Now)
	m := metrics.New()
	router := realtime.NewRouter(slogx.Discard(), m)

	users := &service.UserService{
		Store:      st,
		Cache:      c,
		Hasher:     cryptox.PasswordHasher{Pepper: "pepper"},
		SessionTTL: time.Hour,
		Now:        clk.Now,
	}

	var coordStore store.Store = st
	if wrap != nil {
		coordStore = wrap(st)
	}

	return &env{
		store:   st,
		cache:   c,
		clock:   clk,
		router:  router,
		metrics: m,
		users:   users,
		coord: &coordinator.Coordinator{
			Store:      coordStore,
			Cache:      c,
			Users:      users,
			Membership: &service.MembershipService{Now: clk.Now},
			Bus:        router,
			Metrics:    m,
		},
	}
}

// member is a registered user with one live connection.
type member struct {
	user  domain.User
	conn  *realtime.Client
	actor service.Actor
}

func (e *env) join(t *testing.T, email, username string) member {
	t.Helper()

	u, err := e.users.Register(context.Background(), service.SignUpInput{Email: email, Password: "secret1", Username: username})
	require.NoError(t, err)

	conn := realtime.NewClient("conn-"+username, u.ID, u.RoleNames(), 256)
	conn.Email = u.Email
	e.router.Register(conn)
	t.Cleanup(func() { e.router.Unregister(conn) })

	return member{
		user:  u,
		conn:  conn,
		actor: service.Actor{UserID: u.ID, Email: u.Email, Roles: u.RoleNames(), ConnID: conn.ID},
	}
}

func (e *env) storedUser(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := e.store.Users().GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *env) storedProject(t *testing.T, id string) domain.Project {
	t.Helper()
	p, err := e.store.Projects().GetProjectByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

type push struct {
	Event string          `json:"event"`
	Scope string          `json:"scope"`
	Data  json.RawMessage `json:"data"`
}

// pushes drains everything queued for c.
func pushes(t *testing.T, c *realtime.Client) []push {
	t.Helper()

	var out []push
	for {
		select {
		case f := <-c.Send():
			var p push
			require.NoError(t, json.Unmarshal(f.Data, &p))
			out = append(out, p)
		default:
			return out
		}
	}
}

func events(ps []push) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Event
	}
	return out
}
