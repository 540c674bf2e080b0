package realtime

import (
	"slices"
	"sync"
)

// DefaultSendQueue is the per-connection outbound buffer.
const DefaultSendQueue = 256

// Frame is one encoded outbound message plus the event name for metrics.
type Frame struct {
	Event string
	Data  []byte
}

// Client is one authenticated connection. The send queue is bounded; a
// client that cannot keep up is closed rather than silently skipped, so a
// connected client never misses an event without knowing.
type Client struct {
	ID     string
	UserID string
	Email  string
	Roles  []string

	send chan Frame

	closeOnce sync.Once
	done      chan struct{}
	reason    string
}

func NewClient(id, userID string, roles []string, queue int) *Client {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Roles:  slices.Clone(roles),
		send:   make(chan Frame, queue),
		done:   make(chan struct{}),
	}
}

// Enqueue queues f without blocking. A full queue closes the client and
// reports false.
func (c *Client) Enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- f:
		return true
	default:
		c.CloseWithReason("send queue overflow")
		return false
	}
}

// Send is drained by the connection writer. It is never closed.
func (c *Client) Send() <-chan Frame { return c.send }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() { c.CloseWithReason("closed") }

// CloseWithReason is idempotent; the first reason wins.
func (c *Client) CloseWithReason(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Reason is the close reason. Only meaningful once Done is closed.
func (c *Client) Reason() string {
	<-c.done
	return c.reason
}
