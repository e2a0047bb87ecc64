// Package transcript defines the transcription event contract shared by the
// session transport and the command state machine.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one transcription hypothesis. Interim events may be superseded by
// later ones; a final event closes the utterance.
type Event struct {
	Text        string
	IsFinal     bool
	TimestampMs int64
}

func (e Event) String() string {
	if e.IsFinal {
		return e.Text
	}
	return e.Text + "..."
}

// Timestamp returns the event time as a time.Time.
func (e Event) Timestamp() time.Time { return time.UnixMilli(e.TimestampMs) }

// Interim builds a non-final event stamped with now.
func Interim(text string) Event {
	return Event{Text: text, TimestampMs: time.Now().UnixMilli()}
}

// Final builds a final event stamped with now.
func Final(text string) Event {
	return Event{Text: text, IsFinal: true, TimestampMs: time.Now().UnixMilli()}
}

// ErrEmptyPayload is returned by Decode for a zero-length message.
var ErrEmptyPayload = errors.New("empty transcription payload")

// wireEvent mirrors the JSON shape delivered by the session transport.
// Timestamps arrive either as epoch milliseconds or as RFC 3339 strings.
type wireEvent struct {
	Text      string          `json:"text"`
	IsFinal   bool            `json:"isFinal"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Decode parses a transport transcription payload. Text is forwarded
// unmodified; a missing timestamp is replaced by the receive time.
func Decode(payload []byte) (Event, error) {
	if len(payload) == 0 {
		return Event{}, ErrEmptyPayload
	}
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("decode transcription: %w", err)
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("decode transcription timestamp: %w", err)
	}
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return Event{Text: w.Text, IsFinal: w.IsFinal, TimestampMs: ts}, nil
}

func parseTimestamp(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, err
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return 0, err
		}
		return t.UnixMilli(), nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return 0, err
	}
	return int64(ms), nil
}
