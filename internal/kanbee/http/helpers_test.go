package http_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/cache"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/coordinator"
	kanbeehttp "github.com/aussiebroadwan/kanbee/internal/kanbee/http"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/store/drivers/memory"
	"github.com/aussiebroadwan/kanbee/pkg/cryptox"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "kanbee-test"

type server struct {
	URL     string
	store   *memory.Store
	cache   *cache.Memory
	bus     *realtime.Router
	metrics *metrics.Metrics
}

func newServer(t *testing.T) *server {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(testIssuer)
	require.NoError(t, err)

	st := memory.NewStore()
	c := cache.NewMemory(nil)
	m := metrics.New()
	bus := realtime.NewRouter(slogx.Discard(), m)

	users := &service.UserService{
		Store:      st,
		Cache:      c,
		Hasher:     cryptox.PasswordHasher{Pepper: "pepper"},
		SessionTTL: time.Hour,
	}
	sessions := &service.SessionService{Store: st, Users: users, Keys: km, Issuer: testIssuer, Metrics: m}
	coord := &coordinator.Coordinator{
		Store:      st,
		Cache:      c,
		Users:      users,
		Membership: &service.MembershipService{},
		Bus:        bus,
		Metrics:    m,
	}

	r := kanbeehttp.NewRouter(km, "test", st, c, slogx.Discard())
	r.AuthService = &service.AuthService{Users: users, Sessions: sessions}
	r.SessionService = sessions
	r.UserService = users
	r.QuoteService = &service.QuoteService{Store: st, Cache: c, Users: users}
	r.Coordinator = coord
	r.Metrics = m
	r.Cookie = httpx.RefreshCookie{Name: kanbeesdk.RefreshCookieName}
	r.ClientURL = "http://app.local/"
	r.Gateway = realtime.NewGateway(realtime.GatewayConfig{}, bus, sessions, coord)
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &server{URL: srv.URL, store: st, cache: c, bus: bus, metrics: m}
}

// signUp registers a fresh account on its own device.
func (s *server) signUp(t *testing.T, email, username string) (*kanbeesdk.Client, *kanbeesdk.Session, *kanbeesdk.User) {
	t.Helper()
	ctx := context.Background()

	client := kanbeesdk.NewClient(s.URL)
	client.UserAgent = "device-" + username

	sess, err := client.SignUp(ctx, kanbeesdk.SignUpRequest{Email: email, Password: "secret1", Username: username})
	require.NoError(t, err)

	me, err := sess.Me(ctx)
	require.NoError(t, err)
	return client, sess, me
}
