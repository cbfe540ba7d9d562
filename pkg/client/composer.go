package client

import (
	"strings"
	"sync"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
)

// Sender writes one outbound frame to the live channel.
type Sender interface {
	Send(frame chat.OutboundFrame) error
}

// Composer validates outgoing messages and hands them to the channel. It keeps the
// pending input so a failed send can be retried without retyping.
type Composer struct {
	sender Sender

	mu    sync.Mutex
	input string
}

func NewComposer(sender Sender) *Composer {
	return &Composer{sender: sender}
}

// Compose sends body as author. The server assigns the timestamp and echoes the
// message back through the channel; nothing is added to the transcript here.
func (c *Composer) Compose(author, body string) error {
	if strings.TrimSpace(body) == "" {
		return chat.ErrEmptyMessage
	}
	return c.sender.Send(chat.OutboundFrame{Username: author, Message: body})
}

func (c *Composer) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Submit composes the pending input and clears it on success only.
func (c *Composer) Submit(author string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Compose(author, c.input); err != nil {
		return err
	}
	c.input = ""
	return nil
}
