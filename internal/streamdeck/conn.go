package streamdeck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// ErrClosed is returned when sending on a closed connection
var ErrClosed = errors.New("streamdeck: connection closed")

// Handler receives inbound envelopes on the reader goroutine
type Handler func(Envelope)

// Conn is a registered connection to the host.
// All writes go through a single writer goroutine.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Dial connects to the host on the loopback port it announced
func Dial(ctx context.Context, port int) (*Conn, error) {
	return DialURL(ctx, fmt.Sprintf("ws://127.0.0.1:%d", port))
}

// DialURL connects to an explicit WebSocket URL
func DialURL(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.writePump()
	return c, nil
}

// Register sends the registration frame. It must be the first message.
func (c *Conn) Register(ctx context.Context, event, uuid string) error {
	return c.sendJSON(ctx, registration{Event: event, UUID: uuid})
}

// Send queues an envelope for the writer
func (c *Conn) Send(ctx context.Context, env Envelope) error {
	return c.sendJSON(ctx, env)
}

func (c *Conn) sendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetTitle sets the title shown on a key
func (c *Conn) SetTitle(ctx context.Context, keyContext, title string) error {
	payload, err := json.Marshal(titlePayload{Title: title, Target: TargetBoth})
	if err != nil {
		return err
	}
	return c.Send(ctx, Envelope{Event: EventSetTitle, Context: keyContext, Payload: payload})
}

// SetSettings persists a key's settings in the host
func (c *Conn) SetSettings(ctx context.Context, keyContext string, settings json.RawMessage) error {
	return c.Send(ctx, Envelope{Event: EventSetSettings, Context: keyContext, Payload: settings})
}

// GetSettings asks the host to emit didReceiveSettings for a key
func (c *Conn) GetSettings(ctx context.Context, keyContext string) error {
	return c.Send(ctx, Envelope{Event: EventGetSettings, Context: keyContext})
}

// SetGlobalSettings persists the plugin-wide settings in the host.
// uuid is the plugin or inspector UUID used at registration.
func (c *Conn) SetGlobalSettings(ctx context.Context, uuid string, settings json.RawMessage) error {
	return c.Send(ctx, Envelope{Event: EventSetGlobalSettings, Context: uuid, Payload: settings})
}

// GetGlobalSettings asks the host to emit didReceiveGlobalSettings
func (c *Conn) GetGlobalSettings(ctx context.Context, uuid string) error {
	return c.Send(ctx, Envelope{Event: EventGetGlobalSettings, Context: uuid})
}

// Done is closed once the connection is closed
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Run reads envelopes until the connection drops or ctx is cancelled.
// A normal close by the host returns nil.
func (c *Conn) Run(ctx context.Context, handler Handler) error {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("Host closed the connection")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		// Any frame proves the peer is alive.
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Int("size", len(data)).Msg("Dropping malformed message from host")
			continue
		}
		handler(env)
	}
}

// Close flushes queued messages and closes the connection.
// Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		<-c.stopped
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.stopped)
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				log.Warn().Err(err).Msg("Write to host failed")
				// Unblocks the reader, which then closes the connection.
				c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Msg("Ping to host failed")
				c.ws.Close()
				return
			}
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
