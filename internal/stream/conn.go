// Package stream implements the session host connection over a websocket:
// inbound transcription and device events, outbound display requests.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jakesimonds/Creator/internal/logging"
	"github.com/jakesimonds/Creator/internal/session"
	"github.com/jakesimonds/Creator/internal/transcript"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 1 << 20
)

// Conn is one session host connection. It satisfies session.Adapter.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn

	writeMu sync.Mutex

	transcriptions handlerSet[transcript.Event]
	notifications  handlerSet[session.Notification]
	batteries      handlerSet[session.Battery]
	errs           handlerSet[error]

	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

var _ session.Adapter = (*Conn)(nil)

func newConn(ws *websocket.Conn, id, userID string) *Conn {
	return &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string            { return c.id }
func (c *Conn) UserID() string        { return c.userID }
func (c *Conn) Done() <-chan struct{} { return c.done }

// OnTranscription registers h. Reading from the socket starts with the first
// registration so no transcript is dropped before a session subscribes.
func (c *Conn) OnTranscription(h func(transcript.Event)) session.Disposer {
	d := c.transcriptions.add(h)
	c.readyOnce.Do(func() { close(c.ready) })
	return d
}

func (c *Conn) OnNotification(h func(session.Notification)) session.Disposer {
	return c.notifications.add(h)
}

func (c *Conn) OnBattery(h func(session.Battery)) session.Disposer {
	return c.batteries.add(h)
}

func (c *Conn) OnError(h func(error)) session.Disposer {
	return c.errs.add(h)
}

func (c *Conn) ShowText(text string, opts session.TextOptions) error {
	return c.writeJSON(DisplayMessage{
		Type:       "display",
		Layout:     LayoutTextWall,
		Text:       text,
		DurationMs: opts.Duration.Milliseconds(),
		Priority:   opts.Priority.String(),
	})
}

func (c *Conn) ShowImage(encoded string, d time.Duration) error {
	return c.writeJSON(DisplayMessage{
		Type:       "display",
		Layout:     LayoutBitmap,
		Data:       encoded,
		DurationMs: d.Milliseconds(),
	})
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// Close sends a close frame and tears the socket down.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// serve reads until the socket fails, dispatching each message. It closes
// done on return.
func (c *Conn) serve() {
	defer close(c.done)
	defer c.Close()

	select {
	case <-c.ready:
	case <-c.closed:
		return
	}

	c.ws.SetReadLimit(maxMessageSize)
	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.ping(stopPing)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.isClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.errs.emit(fmt.Errorf("stream read: %w", err))
			}
			return
		}
		if err := c.dispatch(data); err != nil {
			logging.Warnw("stream: bad message", "session.id", c.id, "err", err)
			c.errs.emit(err)
		}
	}
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) ping(stop <-chan struct{}) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Conn) dispatch(data []byte) error {
	kind, err := peekType(data)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	switch kind {
	case typeTranscription:
		ev, err := transcript.Decode(data)
		if err != nil {
			return err
		}
		c.transcriptions.emit(ev)
	case typeNotification:
		var n session.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode notification: %w", err)
		}
		c.notifications.emit(n)
	case typeBattery:
		var b session.Battery
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("decode battery: %w", err)
		}
		c.batteries.emit(b)
	case typeError:
		var m errorMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode error message: %w", err)
		}
		c.errs.emit(errors.New(m.Message))
	default:
		logging.Debugw("stream: ignoring message", "session.id", c.id, "type", kind)
	}
	return nil
}
