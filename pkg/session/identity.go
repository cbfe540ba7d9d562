package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store persists the current participant name across process restarts.
// Load returns "" when nothing is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, username string) error
	Clear(ctx context.Context) error
}

// Identity is the in-memory view of the session identity, backed by a Store.
type Identity struct {
	mu       sync.RWMutex
	store    Store
	username string
}

func NewIdentity(store Store) *Identity {
	return &Identity{store: store}
}

// Resume reads the persisted identity. A store failure is logged and treated as absent.
func (i *Identity) Resume(ctx context.Context) (string, bool) {
	username, err := i.store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Msg("could not load persisted identity")
		return "", false
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return "", false
	}
	i.mu.Lock()
	i.username = username
	i.mu.Unlock()
	return username, true
}

func (i *Identity) Establish(ctx context.Context, username string) error {
	if err := i.store.Save(ctx, username); err != nil {
		return errors.Wrap(err, "persist identity")
	}
	i.mu.Lock()
	i.username = username
	i.mu.Unlock()
	return nil
}

// Clear forgets the identity. Clearing an absent identity is a no-op.
func (i *Identity) Clear(ctx context.Context) error {
	i.mu.Lock()
	i.username = ""
	i.mu.Unlock()
	if err := i.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear persisted identity")
	}
	return nil
}

func (i *Identity) Current() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.username
}

// MemoryStore keeps the identity for the lifetime of the process only.
type MemoryStore struct {
	mu       sync.Mutex
	username string
}

func (s *MemoryStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, nil
}

func (s *MemoryStore) Save(_ context.Context, username string) error {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	return s.Save(context.Background(), "")
}
