package client

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
)

type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu      sync.Mutex
	written [][]byte

	// beforeWrite runs at the start of every WriteMessage
	beforeWrite func()
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-c.inbound:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.beforeWrite != nil {
		c.beforeWrite()
	}
	select {
	case <-c.closed:
		return errors.New("use of closed network connection")
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// deliver pushes one inbound frame as the server would.
func (c *fakeConn) deliver(t *testing.T, message chat.Message) {
	t.Helper()
	data, err := json.Marshal(message)
	require.NoError(t, err)
	c.inbound <- data
}

// hangUp simulates the peer closing the channel.
func (c *fakeConn) hangUp() {
	close(c.inbound)
}

func (c *fakeConn) frames() []chat.OutboundFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.OutboundFrame, 0, len(c.written))
	for _, data := range c.written {
		var frame chat.OutboundFrame
		_ = json.Unmarshal(data, &frame)
		out = append(out, frame)
	}
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	failures int
	urls     []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// waitConn waits until the i-th connection has been dialed.
func (d *fakeDialer) waitConn(t *testing.T, i int) *fakeConn {
	t.Helper()
	require.Eventually(t, func() bool { return d.count() > i }, time.Second, 5*time.Millisecond)
	return d.conn(i)
}

type fakeHistory struct {
	mu       sync.Mutex
	messages []chat.Message
	err      error
	gate     chan struct{}
	calls    atomic.Int32
}

func (h *fakeHistory) Fetch(ctx context.Context) ([]chat.Message, error) {
	h.calls.Add(1)
	if h.gate != nil {
		select {
		case <-h.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return append([]chat.Message(nil), h.messages...), nil
}

func (h *fakeHistory) set(messages []chat.Message, err error) {
	h.mu.Lock()
	h.messages = messages
	h.err = err
	h.mu.Unlock()
}

type fakeAuth struct {
	logins atomic.Int32
}

func (a *fakeAuth) Login(_ context.Context, creds Credentials) error {
	a.logins.Add(1)
	if creds.Password != "secret" {
		return &chat.AuthRejectedError{Status: 400, Detail: "invalid username or password"}
	}
	return nil
}

func (a *fakeAuth) Register(_ context.Context, creds Credentials) error {
	if creds.Username == "taken" {
		return &chat.AuthRejectedError{Status: 400, Detail: "user already exists"}
	}
	return nil
}

var (
	t1 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Minute)
	t3 = t2.Add(time.Minute)
)

func msg(author, body string, at time.Time) chat.Message {
	return chat.Message{Author: author, Body: body, Timestamp: at}
}

// waitEvent drains events until one of kind arrives.
func waitEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Kind == kind {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event kind %d", kind)
			return Event{}
		}
	}
}

func fastPolicy(maxRetries int) ReconnectPolicy {
	return ReconnectPolicy{MaxRetries: maxRetries, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}
