package client

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/session"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

type Effect int

const (
	EffectNoop Effect = iota
	EffectOpenChannel
	EffectCloseChannel
)

func (e Effect) String() string {
	switch e {
	case EffectOpenChannel:
		return "open-channel"
	case EffectCloseChannel:
		return "close-channel"
	default:
		return "noop"
	}
}

// OnIdentityChange maps an identity transition to the channel effects it requires.
func OnIdentityChange(previous, next string) []Effect {
	switch {
	case previous == next:
		return []Effect{EffectNoop}
	case previous == "":
		return []Effect{EffectOpenChannel}
	case next == "":
		return []Effect{EffectCloseChannel}
	default:
		return []Effect{EffectCloseChannel, EffectOpenChannel}
	}
}

type EventKind int

const (
	EventSessionChanged EventKind = iota
	EventChannelOpened
	EventTranscriptChanged
	EventFetchFailed
	EventReconnecting
	EventChannelClosed
)

// Event is an observable signal for the presentation layer.
type Event struct {
	Kind     EventKind
	Username string
	Attempt  int
	Delay    time.Duration
	Err      error
}

type Config struct {
	ServerURL   string
	Store       session.Store
	Auth        Authenticator
	History     HistoryFetcher
	Dialer      Dialer
	Reconnect   ReconnectPolicy
	EventBuffer int
}

type liveSession struct {
	epoch  uint64
	cancel context.CancelFunc
	done   chan struct{}
	// ended is set once the supervisor has given up on the channel
	ended atomic.Bool
}

// Engine keeps one participant's transcript in sync with the server.
//
// Identity changes drive the channel: establishing an identity opens a supervised
// channel and triggers the backfill, clearing it closes the channel and empties the
// transcript. Inbound frames and the backfill result are applied one at a time.
type Engine struct {
	identity   *session.Identity
	auth       Authenticator
	history    HistoryFetcher
	controller *Controller
	transcript *Transcript
	composer   *Composer
	policy     ReconnectPolicy
	events     chan Event

	baseCtx context.Context

	mu   sync.Mutex
	live *liveSession

	epoch atomic.Uint64
	cbMu  sync.Mutex

	emitMu sync.Mutex
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: session store is nil")
	}
	channelURL, err := utils.ChannelURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	if cfg.Auth == nil {
		cfg.Auth = NewAuthClient(cfg.ServerURL, nil)
	}
	if cfg.History == nil {
		cfg.History = NewHistoryClient(cfg.ServerURL, nil)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	controller := NewController(channelURL, cfg.Dialer)
	return &Engine{
		identity:   session.NewIdentity(cfg.Store),
		auth:       cfg.Auth,
		history:    cfg.History,
		controller: controller,
		transcript: NewTranscript(),
		composer:   NewComposer(controller),
		policy:     cfg.Reconnect,
		events:     make(chan Event, cfg.EventBuffer),
		baseCtx:    context.Background(),
	}, nil
}

// Start resumes a persisted identity, opening the channel when one is found. ctx bounds
// the lifetime of every channel the engine opens.
func (e *Engine) Start(ctx context.Context) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseCtx = ctx
	username, ok := e.identity.Resume(ctx)
	if ok {
		e.applyLocked("", username)
	}
	return username, ok
}

func (e *Engine) Login(ctx context.Context, creds Credentials) error {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := e.auth.Login(ctx, creds); err != nil {
		return err
	}
	return e.Establish(ctx, creds.Username)
}

func (e *Engine) Register(ctx context.Context, creds Credentials) error {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := e.auth.Register(ctx, creds); err != nil {
		return err
	}
	return e.Establish(ctx, creds.Username)
}

// Establish makes username the session identity without contacting the auth gateway.
// Establishing the current identity again restarts its session when the channel has
// been given up on or released by Close.
func (e *Engine) Establish(ctx context.Context, username string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	previous := e.identity.Current()
	if err := e.identity.Establish(ctx, username); err != nil {
		return err
	}
	if previous == username && username != "" && !e.sessionAliveLocked() {
		log.Info().Str("component", "client").Str("username", username).Msg("restarting session")
		e.teardownLocked()
		e.openChannelLocked(username)
		return nil
	}
	e.applyLocked(previous, username)
	return nil
}

func (e *Engine) sessionAliveLocked() bool {
	return e.live != nil && !e.live.ended.Load()
}

// Logout clears the identity, closes the channel and empties the transcript.
func (e *Engine) Logout(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	previous := e.identity.Current()
	err := e.identity.Clear(ctx)
	e.applyLocked(previous, "")
	return err
}

// Close releases the channel on process shutdown. The persisted identity is kept.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeChannelLocked()
	return nil
}

func (e *Engine) applyLocked(previous, next string) {
	for _, effect := range OnIdentityChange(previous, next) {
		switch effect {
		case EffectCloseChannel:
			e.teardownLocked()
		case EffectOpenChannel:
			e.openChannelLocked(next)
		}
	}
	if previous != next {
		e.emit(Event{Kind: EventSessionChanged, Username: next})
	}
}

// teardownLocked closes the channel and empties the transcript.
func (e *Engine) teardownLocked() {
	e.closeChannelLocked()
	e.cbMu.Lock()
	e.transcript.Clear()
	e.cbMu.Unlock()
	e.emit(Event{Kind: EventTranscriptChanged})
}

func (e *Engine) openChannelLocked(username string) {
	if e.live != nil {
		e.closeChannelLocked()
	}
	epoch := e.epoch.Add(1)
	ctx, cancel := context.WithCancel(e.baseCtx)
	live := &liveSession{epoch: epoch, cancel: cancel, done: make(chan struct{})}
	e.live = live

	e.transcript.Hold()
	supervisor := NewSupervisor(e.controller, e.policy, SupervisorHooks{
		OnMessage: func(message chat.Message) {
			e.callback(epoch, func() {
				e.transcript.Append(message)
				e.emit(Event{Kind: EventTranscriptChanged})
			})
		},
		OnOpen: func(first bool) {
			e.emit(Event{Kind: EventChannelOpened, Username: username})
			if first {
				go func() { _ = e.backfill(ctx, epoch) }()
			}
		},
		OnReconnect: func(attempt int, delay time.Duration, cause error) {
			e.emit(Event{Kind: EventReconnecting, Attempt: attempt, Delay: delay, Err: cause})
		},
	})

	log.Info().Str("component", "client").Str("username", username).Msg("opening session channel")
	go func() {
		defer close(live.done)
		err := supervisor.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		live.ended.Store(true)
		e.callback(epoch, func() {
			e.transcript.Release()
			e.emit(Event{Kind: EventChannelClosed, Err: err})
		})
	}()
}

func (e *Engine) closeChannelLocked() {
	if e.live == nil {
		return
	}
	live := e.live
	e.live = nil
	e.epoch.Add(1)
	live.cancel()
	<-live.done
	log.Info().Str("component", "client").Msg("session channel closed")
}

// callback runs fn unless the session that scheduled it has been torn down. Callbacks
// never run concurrently with each other.
func (e *Engine) callback(epoch uint64, fn func()) bool {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	if e.epoch.Load() != epoch {
		return false
	}
	fn()
	return true
}

func (e *Engine) backfill(ctx context.Context, epoch uint64) error {
	messages, err := e.history.Fetch(ctx)
	var result error
	applied := e.callback(epoch, func() {
		pending := e.transcript.Pending()
		if err != nil {
			log.Warn().Err(err).Str("component", "client").Int("released", pending).Msg("backfill failed")
			e.transcript.Release()
			e.emit(Event{Kind: EventFetchFailed, Err: err})
			if pending > 0 {
				e.emit(Event{Kind: EventTranscriptChanged})
			}
			result = err
			return
		}
		if seedErr := e.transcript.Seed(messages); seedErr != nil {
			result = seedErr
			return
		}
		log.Debug().Str("component", "client").Int("messages", len(messages)).Int("replayed", pending).Msg("backfill applied")
		e.emit(Event{Kind: EventTranscriptChanged})
	})
	if !applied {
		return context.Canceled
	}
	return result
}

// Refetch retries the backfill after a failure.
func (e *Engine) Refetch(ctx context.Context) error {
	e.mu.Lock()
	live := e.live
	e.mu.Unlock()
	if live == nil {
		return chat.ErrChannelNotOpen
	}
	if e.transcript.Seeded() {
		return chat.ErrAlreadySeeded
	}
	return e.backfill(ctx, live.epoch)
}

// Send composes body as the current participant.
func (e *Engine) Send(body string) error {
	return e.composer.Compose(e.identity.Current(), body)
}

// Submit sends the composer's pending input as the current participant.
func (e *Engine) Submit() error {
	return e.composer.Submit(e.identity.Current())
}

func (e *Engine) Composer() *Composer {
	return e.composer
}

func (e *Engine) Transcript() []chat.Message {
	return e.transcript.All()
}

func (e *Engine) Username() string {
	return e.identity.Current()
}

func (e *Engine) State() State {
	return e.controller.State()
}

func (e *Engine) Events() <-chan Event {
	return e.events
}

// emit never blocks. When the buffer is full other events are dropped, but a
// transcript change evicts the oldest queued event so the latest one always lands.
func (e *Engine) emit(event Event) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	for {
		select {
		case e.events <- event:
			return
		default:
		}
		if event.Kind != EventTranscriptChanged {
			log.Warn().Str("component", "client").Int("kind", int(event.Kind)).Msg("event buffer full, dropping event")
			return
		}
		select {
		case old := <-e.events:
			log.Warn().Str("component", "client").Int("kind", int(old.Kind)).Msg("event buffer full, evicting oldest event")
		default:
		}
	}
}
