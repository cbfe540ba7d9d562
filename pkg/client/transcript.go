package client

import (
	"sync"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
)

// Transcript is the ordered, arrival-order view of the conversation for one session.
//
// Live arrivals and the one-shot backfill race each other. While the transcript is
// held, live arrivals are buffered; Seed installs the backfill and replays everything
// that arrived meanwhile behind it, skipping messages the backfill already delivered.
type Transcript struct {
	mu       sync.Mutex
	messages []chat.Message
	buffered []chat.Message
	holding  bool
	seeded   bool
}

func NewTranscript() *Transcript {
	return &Transcript{messages: make([]chat.Message, 0)}
}

// Hold starts buffering live arrivals until Seed or Release.
func (t *Transcript) Hold() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seeded {
		t.holding = true
	}
}

// Append adds one live arrival. No deduplication happens here.
func (t *Transcript) Append(message chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.holding {
		t.buffered = append(t.buffered, message)
		return
	}
	t.messages = append(t.messages, message)
}

// Seed installs the backfill. The result is batch followed by every live arrival
// observed so far that batch does not already contain. Seed succeeds once per session.
func (t *Transcript) Seed(batch []chat.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seeded {
		return chat.ErrAlreadySeeded
	}

	live := append(t.messages, t.buffered...)
	seen := make(map[chat.Key]struct{}, len(batch))
	merged := make([]chat.Message, 0, len(batch)+len(live))
	for _, message := range batch {
		seen[message.Key()] = struct{}{}
		merged = append(merged, message)
	}
	for _, message := range live {
		if _, ok := seen[message.Key()]; ok {
			continue
		}
		merged = append(merged, message)
	}

	t.messages = merged
	t.buffered = nil
	t.holding = false
	t.seeded = true
	return nil
}

// Release stops holding and makes buffered arrivals visible. Used when the backfill
// failed; a later Seed still places the backfill in front of them.
func (t *Transcript) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, t.buffered...)
	t.buffered = nil
	t.holding = false
}

// Clear empties the transcript and forgets seeding state.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = make([]chat.Message, 0)
	t.buffered = nil
	t.holding = false
	t.seeded = false
}

// All returns a copy of the visible messages in arrival order.
func (t *Transcript) All() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Seeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seeded
}

// Pending is the number of buffered live arrivals not yet visible.
func (t *Transcript) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffered)
}
