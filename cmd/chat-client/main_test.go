package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/client"
	"github.com/hirotachi/ws-cli-chat/pkg/session"
)

func TestEchoed(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	transcript := []chat.Message{
		{Author: "alice", Body: "hi", Timestamp: now.Add(-time.Hour)},
		{Author: "bob", Body: "hi", Timestamp: now},
	}
	assert.False(t, echoed(transcript, "alice", "hi", now.Add(-time.Minute)), "older copy from history")
	assert.False(t, echoed(transcript, "carol", "hi", now.Add(-time.Minute)))

	transcript = append(transcript, chat.Message{Author: "alice", Body: "hi", Timestamp: now.Add(time.Second)})
	assert.True(t, echoed(transcript, "alice", "hi", now.Add(-time.Minute)))
}

func TestFormatLine(t *testing.T) {
	assert.Equal(t, "- bob: yo", formatLine(chat.Message{Author: "bob", Body: "yo"}))
	assert.Contains(t, formatLine(chat.Message{Author: "bob", Body: "yo", Timestamp: time.Now()}), "bob: yo")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "")
	t.Setenv("CHAT_MAX_RECONNECTS", "3")
	config, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", config.ServerURL)
	assert.Equal(t, 3, config.reconnectPolicy().MaxRetries)
}

func TestOpenSessionStore(t *testing.T) {
	config := Config{SessionStore: "file", SessionFile: filepath.Join(t.TempDir(), "session.yaml")}
	store, closeStore, err := openSessionStore(&config)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &session.FileStore{}, store)

	config.SessionStore = "carrier-pigeon"
	_, _, err = openSessionStore(&config)
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

// fakeFeed mimics an engine whose first backfill failed: Refetch puts the
// history in front of the live messages already shown.
type fakeFeed struct {
	events  chan client.Event
	history []chat.Message

	mu         sync.Mutex
	transcript []chat.Message
	refetches  int
}

func (f *fakeFeed) Events() <-chan client.Event { return f.events }

func (f *fakeFeed) Transcript() []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.transcript...)
}

func (f *fakeFeed) Refetch(context.Context) error {
	f.mu.Lock()
	f.refetches++
	f.transcript = append(append([]chat.Message(nil), f.history...), f.transcript...)
	f.mu.Unlock()
	f.events <- client.Event{Kind: client.EventTranscriptChanged}
	return nil
}

func TestTail_RetriedBackfillPrintsHistoryOnce(t *testing.T) {
	old := refetchDelay
	refetchDelay = time.Millisecond
	t.Cleanup(func() { refetchDelay = old })

	feed := &fakeFeed{
		events:     make(chan client.Event, 8),
		history:    []chat.Message{{Author: "alice", Body: "hi"}},
		transcript: []chat.Message{{Author: "bob", Body: "hey"}},
	}
	out, errOut := &syncBuffer{}, &syncBuffer{}
	retry := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return tail(ctx, feed, out, errOut, retry) })
	eg.Go(func() error { return refetchLoop(ctx, feed, retry) })

	feed.events <- client.Event{Kind: client.EventTranscriptChanged}
	feed.events <- client.Event{Kind: client.EventFetchFailed, Err: chat.ErrFetchFailed}

	require.Eventually(t, func() bool { return len(out.lines()) == 2 }, time.Second, 5*time.Millisecond)
	closed := errors.Wrap(chat.ErrChannelClosedUnexpectedly, "gone")
	feed.events <- client.Event{Kind: client.EventChannelClosed, Err: closed}

	require.ErrorIs(t, eg.Wait(), chat.ErrChannelClosedUnexpectedly)
	assert.Equal(t, []string{"- bob: hey", "- alice: hi"}, out.lines())
	assert.Equal(t, 1, feed.refetches)
	assert.Contains(t, errOut.lines()[0], "could not load history")
}

func TestLinePrinter_CountsIdenticalMessages(t *testing.T) {
	out := &syncBuffer{}
	printer := newLinePrinter(out)
	same := chat.Message{Author: "alice", Body: "ping"}

	printer.print([]chat.Message{same})
	printer.print([]chat.Message{same})
	printer.print([]chat.Message{same, same})
	assert.Equal(t, []string{"- alice: ping", "- alice: ping"}, out.lines())
}
