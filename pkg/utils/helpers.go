package utils

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrMalformedFrame marks a frame that arrived but did not decode; the connection
// itself is still usable.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameWriter is the write half of a websocket connection.
type FrameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// FrameReader is the read half of a websocket connection.
type FrameReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// ChannelURL turns the server base URL (http or https) into the channel endpoint URL.
func ChannelURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", errors.Wrapf(err, "parse server url %q", serverURL)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + ChannelPath
	return u.String(), nil
}

// Endpoint joins the server base URL and a REST path.
func Endpoint(serverURL, path string) string {
	return strings.TrimRight(serverURL, "/") + path
}

// WriteFrame marshals data and writes it as one text frame.
func WriteFrame(conn FrameWriter, data interface{}) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "could not marshal frame")
	}
	return conn.WriteMessage(websocket.TextMessage, bytes)
}

// ReadFrame reads one frame and unmarshals it into target. Decode failures wrap
// ErrMalformedFrame; any other error comes from the transport.
func ReadFrame(conn FrameReader, target interface{}) error {
	_, bytes, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes, target); err != nil {
		return errors.Wrap(ErrMalformedFrame, err.Error())
	}
	return nil
}

// BuildFrame marshals data for broadcasting; nil means the frame was dropped.
func BuildFrame(data interface{}) []byte {
	bytes, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("component", "utils").Msg("failed to marshal frame")
		return nil
	}
	return bytes
}

// BroadcastFrame sends marshaled data to the passed in channel.
func BroadcastFrame(channel chan<- []byte, data interface{}) {
	frame := BuildFrame(data)
	if frame == nil {
		return
	}
	channel <- frame
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "utils").Msg("failed to write json response")
	}
}

// WriteDetail writes the {"detail": ...} error body used by every REST endpoint.
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, map[string]string{"detail": detail})
}
