package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

// Conn is the subset of *websocket.Conn the controller needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a channel to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return conn, nil
}

type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Controller owns at most one live channel.
//
// Open and Close must be called from the owning goroutine; the reader goroutine
// started by Open only reports frames and transport failures.
type Controller struct {
	url    string
	dialer Dialer

	mu       sync.Mutex
	state    State
	conn     Conn
	id       string
	readDone chan struct{}

	writeMu sync.Mutex
}

func NewController(url string, dialer Dialer) *Controller {
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	return &Controller{url: url, dialer: dialer, state: StateClosed}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID identifies the current channel in logs; empty while closed.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Open dials the channel and starts delivering inbound frames to onMessage, one at a
// time and in arrival order. onClose is invoked at most once, only when the transport
// fails or the peer closes; a local Close never triggers it.
func (c *Controller) Open(ctx context.Context, onMessage func(chat.Message), onClose func(error)) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return chat.ErrAlreadyOpen
	}
	c.state = StateOpening
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return err
	}

	id := xid.New().String()
	readDone := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.id = id
	c.readDone = readDone
	c.state = StateOpen
	c.mu.Unlock()

	log.Debug().Str("component", "client").Str("channel_id", id).Str("url", c.url).Msg("channel open")

	go c.readLoop(conn, id, readDone, onMessage, onClose)
	return nil
}

func (c *Controller) readLoop(conn Conn, id string, done chan struct{}, onMessage func(chat.Message), onClose func(error)) {
	defer close(done)
	for {
		var message chat.Message
		err := utils.ReadFrame(conn, &message)
		if errors.Is(err, utils.ErrMalformedFrame) {
			log.Warn().Err(err).Str("component", "client").Str("channel_id", id).Msg("dropping malformed frame")
			continue
		}
		if err == nil {
			if onMessage != nil {
				onMessage(message)
			}
			continue
		}

		// Whoever takes the connection out of the controller closes it.
		if !c.release(conn) {
			return
		}
		log.Warn().Err(err).Str("component", "client").Str("channel_id", id).Msg("channel closed by transport")
		if onClose != nil {
			onClose(errors.Wrap(chat.ErrChannelClosedUnexpectedly, err.Error()))
		}
		return
	}
}

// release moves the controller to Closed if conn is still the current connection and
// closes it. It reports whether this call did the release.
func (c *Controller) release(conn Conn) bool {
	c.mu.Lock()
	if c.conn != conn || conn == nil {
		c.mu.Unlock()
		return false
	}
	c.conn = nil
	c.id = ""
	c.state = StateClosed
	c.mu.Unlock()

	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Str("component", "client").Msg("close channel")
	}
	return true
}

// Send writes one outbound frame. Nothing is queued when the channel is not open.
func (c *Controller) Send(frame chat.OutboundFrame) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateOpen || conn == nil {
		return chat.ErrChannelNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := utils.WriteFrame(conn, frame); err != nil {
		// the channel was released while we were writing
		c.mu.Lock()
		released := c.conn != conn
		c.mu.Unlock()
		if released {
			return errors.Wrap(chat.ErrChannelNotOpen, err.Error())
		}
		return errors.Wrap(err, "send frame")
	}
	return nil
}

// Close releases the channel and waits for the reader to stop. Closing an already
// closed controller is a no-op. It must not be called from onMessage.
func (c *Controller) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.readDone
	c.mu.Unlock()

	if conn != nil && c.release(conn) {
		log.Debug().Str("component", "client").Msg("channel closed")
	}
	if done != nil {
		<-done
	}
	return nil
}
