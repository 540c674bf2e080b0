package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *Router {
	return NewRouter(slogx.Discard(), metrics.New())
}

func drain(c *Client) []Push {
	var out []Push
	for {
		select {
		case f := <-c.Send():
			var p Push
			if err := json.Unmarshal(f.Data, &p); err == nil {
				out = append(out, p)
			}
		default:
			return out
		}
	}
}

func TestRouterScopes(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	alice1 := NewClient("a1", "alice", nil, 8)
	alice2 := NewClient("a2", "alice", nil, 8)
	bob := NewClient("b1", "bob", nil, 8)
	for _, c := range []*Client{alice1, alice2, bob} {
		r.Register(c)
	}

	t.Run("user scope reaches every connection of the user", func(t *testing.T) {
		r.EmitToUser("alice", EventGetInvite, map[string]string{"title": "Sprint"})

		require.Len(t, drain(alice1), 1)
		require.Len(t, drain(alice2), 1)
		require.Empty(t, drain(bob))
	})

	t.Run("project scope skips the excluded connection", func(t *testing.T) {
		r.Subscribe("a1", ProjectScope("p1"))
		r.Subscribe("b1", ProjectScope("p1"))
		require.Equal(t, 2, r.Subscribers(ProjectScope("p1")))

		r.EmitToProject("p1", EventUpdateProject, map[string]string{"id": "p1"}, "a1")

		require.Empty(t, drain(alice1))
		got := drain(bob)
		require.Len(t, got, 1)
		require.Equal(t, EventUpdateProject, got[0].Event)
		require.Equal(t, "project:p1", got[0].Scope)
	})

	t.Run("all reaches the initiator too", func(t *testing.T) {
		r.EmitToAll(EventUpdateProject, nil)

		require.Len(t, drain(alice1), 1)
		require.Len(t, drain(alice2), 1)
		require.Len(t, drain(bob), 1)
	})
}

func TestRouterUserSubscriptions(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	a1 := NewClient("a1", "alice", nil, 8)
	a2 := NewClient("a2", "alice", nil, 8)
	r.Register(a1)
	r.Register(a2)

	r.SubscribeUser("alice", ProjectScope("p"))
	require.True(t, r.IsSubscribed("a1", ProjectScope("p")))
	require.True(t, r.IsSubscribed("a2", ProjectScope("p")))

	r.UnsubscribeUser("alice", ProjectScope("p"))
	require.False(t, r.IsSubscribed("a1", ProjectScope("p")))
	require.Zero(t, r.Subscribers(ProjectScope("p")))

	r.EmitToProject("p", EventUpdateProject, nil, "")
	require.Empty(t, drain(a1))
}

func TestRouterDropScopeAndUnregister(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	c := NewClient("c", "u", nil, 8)
	r.Register(c)
	r.Subscribe("c", ProjectScope("p"))

	r.DropScope(ProjectScope("p"))
	require.False(t, r.IsSubscribed("c", ProjectScope("p")))

	r.Unregister(c)
	r.Unregister(c)
	require.Zero(t, r.Subscribers(Scope{Kind: ScopeAll}))
	require.Zero(t, r.Subscribers(UserScope("u")))

	r.Subscribe("c", ProjectScope("p"))
	require.False(t, r.IsSubscribed("c", ProjectScope("p")), "unknown connections are ignored")
}

func TestRouterOverflowDisconnects(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	r := NewRouter(slogx.Discard(), m)
	slow := NewClient("slow", "u", nil, 2)
	r.Register(slow)

	for i := 0; i < 3; i++ {
		r.EmitToUser("u", EventUpdateProject, i)
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client should be closed")
	}
	require.Equal(t, "send queue overflow", slow.Reason())
	require.False(t, slow.Enqueue(Frame{}))

	n, err := testutil.GatherAndCount(m.Registry(), "kanbee_realtime_events_dropped_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRouterPreservesEmitOrder(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	c := NewClient("c", "u", nil, 128)
	r.Register(c)
	r.Subscribe("c", ProjectScope("p"))

	for i := 0; i < 100; i++ {
		r.EmitToProject("p", EventUpdateProject, i, "")
	}

	got := drain(c)
	require.Len(t, got, 100)
	for i, p := range got {
		require.EqualValues(t, i, p.Data)
	}
}

func TestRouterConcurrentUse(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClient(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i%4), nil, 1024)
			r.Register(c)
			r.Subscribe(c.ID, ProjectScope("p"))
			for j := 0; j < 20; j++ {
				r.EmitToProject("p", EventUpdateProject, j, c.ID)
			}
			r.Unregister(c)
		}(i)
	}
	wg.Wait()

	require.Zero(t, r.Subscribers(Scope{Kind: ScopeAll}))
	require.Zero(t, r.Subscribers(ProjectScope("p")))
}

func TestRouterCloseAll(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	a := NewClient("a1", "alice", nil, 8)
	b := NewClient("b1", "bob", nil, 8)
	r.Register(a)
	r.Register(b)

	require.Equal(t, 2, r.CloseAll(ReasonShutdown))
	for _, c := range []*Client{a, b} {
		<-c.Done()
		require.Equal(t, ReasonShutdown, c.Reason())
	}
}
