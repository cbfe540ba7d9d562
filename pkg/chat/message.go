package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message is one entry of the transcript. It carries no client-side identifier:
// identity is (Author, Body, Timestamp) and ordering is arrival order.
type Message struct {
	Author    string    `json:"username"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundFrame is what the client writes to the channel. The server stamps the time.
type OutboundFrame struct {
	Username string `json:"username" validate:"required"`
	Message  string `json:"message" validate:"required"`
}

// Key identifies a message for deduplication.
type Key struct {
	Author string
	Body   string
	At     int64
}

func (m Message) Key() Key {
	return Key{Author: m.Author, Body: m.Body, At: m.Timestamp.UnixNano()}
}

func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Username  string `json:"username"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}
	return json.Marshal(wire{
		Username:  m.Author,
		Message:   m.Body,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		Username  string          `json:"username"`
		Message   string          `json:"message"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	ts, err := ParseTimestamp(wire.Timestamp)
	if err != nil {
		return err
	}
	m.Author = wire.Username
	m.Body = wire.Message
	m.Timestamp = ts
	return nil
}

// isoLayouts are tried in order for string timestamps. Zone-less layouts are read as UTC,
// which is what python's datetime.isoformat() produces for naive datetimes.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

// ParseTimestamp accepts an ISO-8601 string, a numeric epoch (seconds or milliseconds),
// or a numeric string. A missing or null timestamp yields the zero time.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, errors.Wrap(err, "timestamp")
		}
		return parseTimestampString(s)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "timestamp %s", raw)
	}
	return fromEpoch(f), nil
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f), nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp %q", s)
}

func fromEpoch(f float64) time.Time {
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
