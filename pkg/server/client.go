package server

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

const (
	clientBuffer = 32
	writeWait    = 10 * time.Second
)

type Client struct {
	ID            string
	conn          *websocket.Conn
	BroadcastChan chan []byte
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:            xid.New().String(),
		conn:          conn,
		BroadcastChan: make(chan []byte, clientBuffer),
	}
}

// Listen is the client's write pump. It returns, closing the socket, once the
// hub closes BroadcastChan.
func (c *Client) Listen() {
	defer c.conn.Close()
	for msg := range c.BroadcastChan {
		if err := c.SendMessage(msg); err != nil {
			log.Warn().Err(err).Str("component", "client").Str("client", c.ID).Msg("failed to send message")
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (c *Client) SendMessage(msg []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}
