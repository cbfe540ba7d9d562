package server

import (
	"time"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
)

// StoredMessage is a message as the server keeps it. Clients never see the ID.
type StoredMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (m StoredMessage) Wire() chat.Message {
	return chat.Message{Author: m.Username, Body: m.Message, Timestamp: m.CreatedAt}
}

type LoginInput struct {
	Username string `json:"username" validate:"required,max=64"`
	// bcrypt only looks at the first 72 bytes
	Password string `json:"password" validate:"required,max=72"`
}
