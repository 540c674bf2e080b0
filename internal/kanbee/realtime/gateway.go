package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/idx"
	"github.com/aussiebroadwan/kanbee/pkg/jwtx"
	"github.com/aussiebroadwan/kanbee/pkg/slogx"
	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

// ReasonShutdown is the close reason sent when the server is stopping.
const ReasonShutdown = "server shutting down"

const (
	maxFrameBytes = 1 << 20 // boards travel whole

	defaultWriteTimeout     = 5 * time.Second
	defaultReadIdle         = 2 * time.Minute
	defaultHeartbeatEvery   = 25 * time.Second
	defaultHeartbeatTimeout = 5 * time.Second
	defaultRateEvents       = 120
	defaultRateWindow       = 10 * time.Second

	maxPingFailures = 3
	closeGrace      = time.Second
)

// Dispatcher executes one inbound request on behalf of a connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, c *Client, req Request) (any, error)
}

// Authenticator turns a bearer access token into verified claims.
type Authenticator interface {
	Authenticate(token string) (jwtx.Claims, error)
}

// GatewayConfig tunes the websocket gateway. Zero values take defaults.
type GatewayConfig struct {
	// AllowedOrigins lists full origins ("https://app.kanbee.dev") or "*".
	// Requests without an Origin header (non-browser clients) are allowed
	// unless OriginRequired is set.
	AllowedOrigins []string
	OriginRequired bool

	SendQueue        int
	RateEvents       int
	RateWindow       time.Duration
	WriteTimeout     time.Duration
	ReadIdleTimeout  time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
}

func (c *GatewayConfig) applyDefaults() {
	if c.SendQueue <= 0 {
		c.SendQueue = DefaultSendQueue
	}
	if c.RateEvents <= 0 {
		c.RateEvents = defaultRateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = defaultReadIdle
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = defaultHeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

// Gateway upgrades authenticated HTTP requests to websocket connections,
// registers them with the Router and feeds their requests to a Dispatcher.
type Gateway struct {
	cfg            GatewayConfig
	originPatterns []string

	router *Router
	auth   Authenticator
	disp   Dispatcher
}

func NewGateway(cfg GatewayConfig, router *Router, auth Authenticator, disp Dispatcher) *Gateway {
	cfg.applyDefaults()
	return &Gateway{
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		router:         router,
		auth:           auth,
		disp:           disp,
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("access_token")
	}
	claims, err := g.auth.Authenticate(token)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, service.CodeUnauthenticated, "a valid access token is required")
		return
	}

	log := slogx.FromContext(r.Context())
	if err := g.checkOrigin(r); err != nil {
		log.Info("ws rejected", "reason", "origin", "origin", r.Header.Get("Origin"), "error", err)
		httpx.WriteError(w, http.StatusForbidden, service.CodeForbidden, "origin not allowed")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		log.Info("ws accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if conn.Subprotocol() != Subprotocol {
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol "+Subprotocol+" required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(idx.New().String(), claims.UserID(), claims.Roles, g.cfg.SendQueue)
	client.Email = claims.Email
	log = log.With("conn_id", client.ID, "user_id", client.UserID)
	ctx, cancel := context.WithCancel(slogx.WithContext(r.Context(), log))
	defer cancel()

	g.router.Register(client)
	defer g.router.Unregister(client)
	log.Info("ws connected")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		g.writeLoop(ctx, conn, client)
	}()
	go func() {
		defer wg.Done()
		g.heartbeat(ctx, conn, client)
	}()

	g.readLoop(ctx, conn, client)

	client.Close()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(closeGrace):
	}

	if client.Reason() == "closed" {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	log.Info("ws disconnected", "reason", client.Reason())
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	log := slogx.FromContext(ctx)
	limiter := rate.NewLimiter(rate.Every(g.cfg.RateWindow/time.Duration(g.cfg.RateEvents)), g.cfg.RateEvents)

	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		typ, data, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			if !isClosedErr(err) {
				log.Info("ws read failed", "error", err)
			}
			return
		}

		select {
		case <-client.Done():
			return
		default:
		}

		if !limiter.Allow() {
			g.reply(client, Reply{Event: EventError, Error: &ErrorReply{Code: "rate_limit_exceeded", Message: "too many events"}})
			client.CloseWithReason("rate limited")
			return
		}

		if typ != websocket.MessageText {
			g.reply(client, Reply{Event: EventError, Error: &ErrorReply{Code: service.CodeInvalidInput, Message: "text frames only"}})
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.Event) == "" {
			g.reply(client, Reply{Event: EventError, Error: &ErrorReply{Code: service.CodeInvalidInput, Message: "malformed request"}})
			continue
		}

		g.handle(ctx, client, req)
	}
}

func (g *Gateway) handle(ctx context.Context, client *Client, req Request) {
	ctx = slogx.With(ctx, "event", req.Event, "req_id", req.ID)
	start := time.Now()

	out, err := g.disp.Dispatch(ctx, client, req)
	if err != nil {
		code := service.Code(err)
		var sf *service.SyncFault
		switch {
		case errors.As(err, &sf):
			slogx.FromContext(ctx).Error("ws request sync fault", "fault", sf)
		case code == service.CodeServerError:
			slogx.FromContext(ctx).Error("ws request failed", "error", err)
		default:
			slogx.FromContext(ctx).Debug("ws request rejected", "code", code, "error", err)
		}
		g.reply(client, Reply{ID: req.ID, Event: req.Event, Error: &ErrorReply{Code: code, Message: service.Message(err)}})
		return
	}

	slogx.FromContext(ctx).Debug("ws request", "duration_ms", time.Since(start).Milliseconds())
	g.reply(client, Reply{ID: req.ID, Event: req.Event, Data: out})
}

func (g *Gateway) reply(client *Client, rep Reply) {
	data, err := json.Marshal(rep)
	if err != nil {
		data, _ = json.Marshal(Reply{ID: rep.ID, Event: rep.Event, Error: &ErrorReply{Code: service.CodeServerError, Message: "internal error"}})
	}
	client.Enqueue(Frame{Event: rep.Event, Data: data})
}

func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			g.flush(ctx, conn, client)
			switch reason := client.Reason(); reason {
			case "closed":
			case ReasonShutdown:
				_ = conn.Close(websocket.StatusGoingAway, reason)
			default:
				_ = conn.Close(websocket.StatusPolicyViolation, reason)
			}
			return
		case f := <-client.Send():
			if err := g.write(ctx, conn, f); err != nil {
				slogx.FromContext(ctx).Info("ws write failed", "error", err)
				client.CloseWithReason("write failed")
				_ = conn.CloseNow()
				return
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, f Frame) error {
	wctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, f.Data)
}

// flush writes whatever is already queued so a final error reply reaches
// the peer before the close frame. An overflowing client gets nothing more.
func (g *Gateway) flush(ctx context.Context, conn *websocket.Conn, client *Client) {
	if client.Reason() == "send queue overflow" {
		return
	}
	for {
		select {
		case f := <-client.Send():
			if err := g.write(ctx, conn, f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client) {
	t := time.NewTicker(g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			slogx.FromContext(ctx).Info("ws ping failed", "failures", failures, "error", err)
			if failures >= maxPingFailures {
				client.CloseWithReason("heartbeat failed")
				_ = conn.CloseNow()
				return
			}
		}
	}
}

func isClosedErr(err error) bool {
	return websocket.CloseStatus(err) != -1 ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF)
}

func (g *Gateway) checkOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	host := hostOf(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(a, origin) || (host != "" && host == hostOf(a)) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originPatterns derives websocket.Accept host patterns from the allow list
// so both checks agree.
func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" {
			return []string{"*"}
		}
		if h := hostOf(a); h != "" && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}

func hostOf(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(s)
}
