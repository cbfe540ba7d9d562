package server

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

var validate = validator.New()

var ErrInvalidMessage = errors.New("username and message are required")

// Chat is the broadcast hub: every posted message is stored, then fanned out to
// every connected client, the author included.
type Chat struct {
	Store         Store
	BroadcastChan chan []byte

	mu      sync.RWMutex
	Clients map[string]*Client
	now     func() time.Time
}

func NewChat(store Store) *Chat {
	return &Chat{
		Store:         store,
		BroadcastChan: make(chan []byte, 64),
		Clients:       map[string]*Client{},
		now:           time.Now,
	}
}

// ListenToBroadcast fans frames out until ctx is done. A client whose buffer is
// full is dropped rather than allowed to stall the others.
func (hub *Chat) ListenToBroadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			hub.closeAll()
			return
		case msg := <-hub.BroadcastChan:
			var slow []*Client
			hub.mu.RLock()
			for _, client := range hub.Clients {
				select {
				case client.BroadcastChan <- msg:
				default:
					slow = append(slow, client)
				}
			}
			hub.mu.RUnlock()
			for _, client := range slow {
				log.Warn().Str("component", "chat").Str("client", client.ID).Msg("client too slow, dropping")
				hub.Leave(client)
			}
		}
	}
}

// Join registers a websocket peer and starts its write pump.
func (hub *Chat) Join(conn *websocket.Conn) *Client {
	client := NewClient(conn)
	hub.mu.Lock()
	hub.Clients[client.ID] = client
	connected := len(hub.Clients)
	hub.mu.Unlock()

	go client.Listen()
	log.Info().Str("component", "chat").Str("client", client.ID).Str("addr", conn.RemoteAddr().String()).
		Int("connected", connected).Msg("client connected")
	return client
}

func (hub *Chat) Leave(client *Client) {
	hub.mu.Lock()
	_, ok := hub.Clients[client.ID]
	if ok {
		delete(hub.Clients, client.ID)
		close(client.BroadcastChan)
	}
	hub.mu.Unlock()
	if ok {
		log.Info().Str("component", "chat").Str("client", client.ID).Msg("client disconnected")
	}
}

func (hub *Chat) Connected() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.Clients)
}

func (hub *Chat) closeAll() {
	hub.mu.RLock()
	clients := lo.Values(hub.Clients)
	hub.mu.RUnlock()
	for _, client := range clients {
		hub.Leave(client)
	}
}

// HandleConnection serves one peer until it hangs up. Frames that do not decode
// or fail validation are logged and skipped.
func (hub *Chat) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	client := hub.Join(conn)
	defer hub.Leave(client)
	for {
		var frame chat.OutboundFrame
		err := utils.ReadFrame(conn, &frame)
		if errors.Is(err, utils.ErrMalformedFrame) {
			log.Warn().Err(err).Str("component", "chat").Str("client", client.ID).Msg("skipping malformed frame")
			continue
		}
		if err != nil {
			return
		}
		if _, err := hub.Post(ctx, frame); err != nil {
			log.Warn().Err(err).Str("component", "chat").Str("client", client.ID).Msg("rejected frame")
		}
	}
}

// Post stamps a message with the receive time, stores it and broadcasts it.
func (hub *Chat) Post(ctx context.Context, frame chat.OutboundFrame) (chat.Message, error) {
	if err := validate.Struct(frame); err != nil {
		return chat.Message{}, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	stored := StoredMessage{
		ID:        xid.New().String(),
		Username:  frame.Username,
		Message:   frame.Message,
		CreatedAt: hub.now().UTC(),
	}
	if err := hub.Store.AppendMessage(ctx, stored); err != nil {
		return chat.Message{}, err
	}
	message := stored.Wire()
	utils.BroadcastFrame(hub.BroadcastChan, message)
	return message, nil
}

// History returns the stored messages in wire form, oldest first.
func (hub *Chat) History(ctx context.Context) ([]chat.Message, error) {
	stored, err := hub.Store.Messages(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(stored, func(m StoredMessage, _ int) chat.Message {
		return m.Wire()
	}), nil
}
