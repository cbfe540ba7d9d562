package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirotachi/ws-cli-chat/pkg/chat"
	"github.com/hirotachi/ws-cli-chat/pkg/utils"
)

type testServer struct {
	server *Server
	http   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	server, err := NewServer("", newRedisTestStore(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Chat().ListenToBroadcast(ctx)
	}()
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		httpServer.Close()
	})
	return &testServer{server: server, http: httpServer}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]string) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(utils.Endpoint(ts.http.URL, path), "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer res.Body.Close()
	var decoded map[string]string
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func (ts *testServer) history(t *testing.T) []chat.Message {
	t.Helper()
	res, err := http.Get(utils.Endpoint(ts.http.URL, utils.MessagesPath))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var messages []chat.Message
	require.NoError(t, json.NewDecoder(res.Body).Decode(&messages))
	return messages
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url, err := utils.ChannelURL(ts.http.URL)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool {
		return ts.server.Chat().Connected() > 0
	}, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) chat.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var message chat.Message
	require.NoError(t, utils.ReadFrame(conn, &message))
	return message
}

func TestServer_RegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)
	credentials := LoginInput{Username: "alice", Password: "secret"}

	t.Run("register creates the user", func(t *testing.T) {
		res, _ := ts.post(t, utils.RegisterPath, credentials)
		assert.Equal(t, http.StatusOK, res.StatusCode)
	})

	t.Run("registering twice is rejected with a detail", func(t *testing.T) {
		res, body := ts.post(t, utils.RegisterPath, credentials)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "user already exists", body["detail"])
	})

	t.Run("login with the right password", func(t *testing.T) {
		res, body := ts.post(t, utils.LoginPath, credentials)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "alice", body["username"])
	})

	t.Run("login with a wrong password", func(t *testing.T) {
		res, body := ts.post(t, utils.LoginPath, LoginInput{Username: "alice", Password: "nope"})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "invalid username or password", body["detail"])
	})

	t.Run("login with an unknown user", func(t *testing.T) {
		res, body := ts.post(t, utils.LoginPath, LoginInput{Username: "bob", Password: "secret"})
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "invalid username or password", body["detail"])
	})

	t.Run("missing fields", func(t *testing.T) {
		res, body := ts.post(t, utils.LoginPath, map[string]string{"username": "alice"})
		assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
		assert.NotEmpty(t, body["detail"])
	})
}

func TestServer_HistoryStartsEmpty(t *testing.T) {
	ts := newTestServer(t)
	messages := ts.history(t)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestServer_ChannelBroadcastsToEveryPeer(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t)
	bob := ts.dial(t)
	require.Eventually(t, func() bool {
		return ts.server.Chat().Connected() == 2
	}, time.Second, 5*time.Millisecond)

	before := time.Now().UTC()
	require.NoError(t, utils.WriteFrame(alice, chat.OutboundFrame{Username: "alice", Message: "hi"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		message := readMessage(t, conn)
		assert.Equal(t, "alice", message.Author)
		assert.Equal(t, "hi", message.Body)
		assert.False(t, message.Timestamp.Before(before.Add(-time.Second)), "server stamps the receive time")
	}

	history := ts.history(t)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Body)
}

func TestServer_ChannelSkipsInvalidFrames(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, utils.WriteFrame(conn, chat.OutboundFrame{Username: "alice"}))
	require.NoError(t, utils.WriteFrame(conn, chat.OutboundFrame{Username: "alice", Message: "still here"}))

	message := readMessage(t, conn)
	assert.Equal(t, "still here", message.Body)
	assert.Len(t, ts.history(t), 1)
}

func TestServer_PostMessageBroadcasts(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	res, _ := ts.post(t, utils.MessagesPath, chat.OutboundFrame{Username: "bob", Message: "over rest"})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	message := readMessage(t, conn)
	assert.Equal(t, "bob", message.Author)
	assert.Equal(t, "over rest", message.Body)

	res, body := ts.post(t, utils.MessagesPath, map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, ErrInvalidMessage.Error(), body["detail"])
}

func TestServer_PeerLeavesOnHangUp(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return ts.server.Chat().Connected() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNewServer_RequiresStore(t *testing.T) {
	_, err := NewServer(":0", nil)
	assert.Error(t, err)
}
