package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.CacheOp("get", metrics.ResultHit)
		m.EventDelivered("updateProject")
		m.EventDropped("updateProject")
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.SyncFault("createProject")
		m.SessionRotation("ok")
	})
	require.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.CacheOp("get", metrics.ResultMiss)
	m.CacheOp("get", metrics.ResultMiss)
	m.SyncFault("removeProject")
	m.ConnectionOpened()

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `kanbee_cache_operations_total{op="get",result="miss"} 2`))
	require.True(t, strings.Contains(text, `kanbee_sync_faults_total{op="removeProject"} 1`))
	require.True(t, strings.Contains(text, "kanbee_realtime_connections 1"))
	require.True(t, strings.Contains(text, "go_goroutines"))
}

func TestGatherCount(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.SessionRotation("ok")
	m.SessionRotation("expired")

	n, err := testutil.GatherAndCount(m.Registry(), "kanbee_session_rotations_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
