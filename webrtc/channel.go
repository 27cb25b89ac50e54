package webrtc

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeTimeout bounds how long the writer goroutine's single Write call may
// take once it has dequeued a frame.
const writeTimeout = 2 * time.Second

// outboxSize is how many outbound frames a channel will buffer before it
// starts dropping. A handler that forwards offers/answers/candidates one at
// a time to a peer mid-call rarely needs more than a couple in flight.
const outboxSize = 16

// wsChannel adapts a gorilla/websocket connection to csm.Channel. Send never
// touches the connection itself: it pushes onto a buffered outbox that a
// dedicated writer goroutine drains, so a Manager call holding the CSM's
// lock across Send never waits on this peer's socket (spec: Send must be
// non-blocking from the handler's perspective). A full outbox means the peer
// isn't draining fast enough; the frame is dropped rather than buffered
// without bound, the same tradeoff the pack's gorilla/websocket hub-and-
// client pattern makes for its own per-client send channel.
type wsChannel struct {
	id     string
	conn   *websocket.Conn
	logger *log.Logger

	outbox chan []byte
	done   chan struct{}

	closeOnce sync.Once
}

func newChannel(conn *websocket.Conn, logger *log.Logger) *wsChannel {
	c := &wsChannel{
		id:     uuid.NewString(),
		conn:   conn,
		logger: logger,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *wsChannel) ID() string { return c.id }

// Send serializes event+payload into the wire envelope and enqueues it. A
// non-blocking channel push: a full outbox (peer not draining fast enough)
// or an already-closed channel causes the frame to be dropped and logged,
// never blocked on.
func (c *wsChannel) Send(event string, payload map[string]any) error {
	out := map[string]any{"type": event}
	for k, v := range payload {
		out[k] = v
	}
	frame, err := json.Marshal(out)
	if err != nil {
		return err
	}

	select {
	case c.outbox <- frame:
		return nil
	case <-c.done:
		return nil
	default:
		c.logger.Printf("channel %s: outbox full, dropping %q", c.id, event)
		return nil
	}
}

// writePump is the channel's only writer, draining the outbox until Close
// closes done. Running on its own goroutine is what lets Send return
// immediately regardless of how slow or stalled the peer's socket is.
func (c *wsChannel) writePump() {
	for {
		select {
		case frame := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Printf("channel %s: write error: %v", c.id, err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
