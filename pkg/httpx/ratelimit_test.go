package httpx_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func TestIPKeyExtractor(t *testing.T) {
	t.Parallel()

	t.Run("RemoteAddr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(fromIP("192.168.1.1")))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := fromIP("192.168.1.1")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("falls back to X-Real-IP", func(t *testing.T) {
		req := fromIP("192.168.1.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	t.Parallel()

	ex := httpx.JSONFieldKeyExtractor("email")

	t.Run("reads field and restores body", func(t *testing.T) {
		body := `{"email":" Bee@Kanbee.dev ","password":"x"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

		require.Equal(t, "bee@kanbee.dev", ex(req))

		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(raw))
	})

	t.Run("non JSON body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("email=x"))
		require.Empty(t, ex(req))
	})

	t.Run("non string field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":3}`))
		require.Empty(t, ex(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	t.Parallel()

	ex := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.JSONFieldKeyExtractor("email"))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c"}`))
	req.RemoteAddr = "10.0.0.1:1"
	require.Equal(t, "10.0.0.1:a@b.c", ex(req))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.RemoteAddr = "10.0.0.1:1"
	require.Equal(t, "10.0.0.1", ex(req), "empty parts are skipped")
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	cfg := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}

	t.Run("blocks over burst with headers", func(t *testing.T) {
		h := httpx.RateLimitByIP(cfg)(okHandler)

		require.Equal(t, http.StatusOK, serve(h, fromIP("192.168.1.1")).Code)
		require.Equal(t, http.StatusOK, serve(h, fromIP("192.168.1.1")).Code)

		rec := serve(h, fromIP("192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("keys are independent", func(t *testing.T) {
		h := httpx.RateLimitByIP(cfg)(okHandler)

		for range 2 {
			serve(h, fromIP("192.168.1.1"))
		}
		require.Equal(t, http.StatusTooManyRequests, serve(h, fromIP("192.168.1.1")).Code)
		require.Equal(t, http.StatusOK, serve(h, fromIP("192.168.1.2")).Code)
	})

	t.Run("empty key bypasses", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1},
			func(*http.Request) string { return "" })(okHandler)

		for range 3 {
			require.Equal(t, http.StatusOK, serve(h, fromIP("192.168.1.1")).Code)
		}
	})

	t.Run("by ip and email", func(t *testing.T) {
		h := httpx.RateLimitByIPAndEmail(cfg)(okHandler)
		signIn := func(email string) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"`+email+`"}`))
			req.RemoteAddr = "10.1.1.1:1"
			return req
		}

		for range 2 {
			require.Equal(t, http.StatusOK, serve(h, signIn("alice@x")).Code)
		}
		require.Equal(t, http.StatusTooManyRequests, serve(h, signIn("alice@x")).Code)
		require.Equal(t, http.StatusOK, serve(h, signIn("bob@x")).Code)
	})
}

func TestRateLimitProfiles(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]httpx.RateLimitConfig{
		"auth":   httpx.AuthLimit,
		"api":    httpx.APILimit,
		"public": httpx.PublicLimit,
	} {
		t.Run(name, func(t *testing.T) {
			require.Positive(t, cfg.RequestsPerWindow)
			require.Positive(t, cfg.Window)
			require.Positive(t, cfg.Burst)
		})
	}
	require.Less(t, httpx.AuthLimit.RequestsPerWindow, httpx.APILimit.RequestsPerWindow)
	require.Less(t, httpx.APILimit.RequestsPerWindow, httpx.PublicLimit.RequestsPerWindow)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	t.Run("defaults", func(t *testing.T) {
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("KANBEE_TEST", def))
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("RATELIMIT_KANBEE_TEST_REQUESTS", "200")
		t.Setenv("RATELIMIT_KANBEE_TEST_WINDOW_SEC", "30")
		t.Setenv("RATELIMIT_KANBEE_TEST_BURST", "250")

		got := httpx.ParseRateLimitFromEnv("KANBEE_TEST", def)
		require.Equal(t, httpx.RateLimitConfig{RequestsPerWindow: 200, Window: 30 * time.Second, Burst: 250}, got)
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		t.Setenv("RATELIMIT_KANBEE_TEST_REQUESTS", "invalid")
		t.Setenv("RATELIMIT_KANBEE_TEST_WINDOW_SEC", "-10")
		t.Setenv("RATELIMIT_KANBEE_TEST_BURST", "0")

		require.Equal(t, def, httpx.ParseRateLimitFromEnv("KANBEE_TEST", def))
	})
}

func BenchmarkRateLimitMiddleware(b *testing.B) {
	h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1_000_000, Window: time.Minute, Burst: 1000})(okHandler)
	req := fromIP("192.168.1.1")

	for b.Loop() {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
