package kanbeesdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// Subprotocol is required by the gateway.
const Subprotocol = "kanbee.v1"

// ErrConnClosed is returned by calls on a closed Conn.
var ErrConnClosed = errors.New("kanbeesdk: connection closed")

// Push is a server initiated event.
type Push struct {
	Event string          `json:"event"`
	Scope string          `json:"scope"`
	Data  json.RawMessage `json:"data"`
}

type frame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Scope string          `json:"scope,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Conn is a realtime connection. Call is safe for concurrent use.
type Conn struct {
	ws     *websocket.Conn
	nextID atomic.Uint64
	pushes chan Push

	mu      sync.Mutex
	pending map[string]chan frame
	err     error
	done    chan struct{}
}

// Dial opens the realtime gateway with the session's access token.
func (s *Session) Dial(ctx context.Context) (*Conn, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}

	// The handshake is bounded by ctx; a client timeout would also cut the
	// upgraded connection.
	hc := *s.client.HTTPClient
	hc.Timeout = 0

	u := "ws" + strings.TrimPrefix(s.client.BaseURL, "http") + "/v1/ws"
	ws, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPClient:   &hc,
		Subprotocols: []string{Subprotocol},
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + token},
			"User-Agent":    {s.client.UserAgent},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	ws.SetReadLimit(1 << 20)

	c := &Conn{
		ws:      ws,
		pushes:  make(chan Push, 64),
		pending: make(map[string]chan frame),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Pushes delivers server events until the connection ends, then closes.
func (c *Conn) Pushes() <-chan Push { return c.pushes }

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call sends event with data and decodes the reply's data into out, which
// may be nil. Error replies are returned as *APIError.
func (c *Conn) Call(ctx context.Context, event string, data, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	reply := make(chan frame, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg, err := json.Marshal(frame{ID: id, Event: event, Data: raw})
	if err != nil {
		return err
	}
	if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnClosed
	case f := <-reply:
		if f.Error != nil {
			return &APIError{Code: f.Error.Code, Description: f.Error.Message}
		}
		if out == nil || len(f.Data) == 0 {
			return nil
		}
		return json.Unmarshal(f.Data, out)
	}
}

// Close ends the connection normally.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Conn) readLoop() {
	defer close(c.pushes)
	defer close(c.done)

	for {
		_, data, err := c.ws.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		if f.ID != "" {
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
			continue
		}
		if f.Scope != "" {
			c.pushes <- Push{Event: f.Event, Scope: f.Scope, Data: f.Data}
		}
	}
}
