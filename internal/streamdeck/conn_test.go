package streamdeck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost accepts one connection and exposes its frames
type fakeHost struct {
	server   *httptest.Server
	received chan []byte
	outbound chan []byte
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		received: make(chan []byte, 16),
		outbound: make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer ws.Close()

		go func() {
			for msg := range h.outbound {
				if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			h.received <- data
		}
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHost) url() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *fakeHost) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-h.received:
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestConn_RegisterAndSetTitle(t *testing.T) {
	host := newFakeHost(t)
	ctx := context.Background()

	conn, err := DialURL(ctx, host.url())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Register(ctx, RegisterPlugin, "plugin-uuid"))
	reg := host.next(t)
	assert.Equal(t, "registerPlugin", reg["event"])
	assert.Equal(t, "plugin-uuid", reg["uuid"])

	require.NoError(t, conn.SetTitle(ctx, "key-1", "Configure\nPAT"))
	frame := host.next(t)
	assert.Equal(t, "setTitle", frame["event"])
	assert.Equal(t, "key-1", frame["context"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, "Configure\nPAT", payload["title"])
	assert.Equal(t, float64(0), payload["target"])
}

func TestConn_GlobalSettingsRequests(t *testing.T) {
	host := newFakeHost(t)
	ctx := context.Background()

	conn, err := DialURL(ctx, host.url())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.GetGlobalSettings(ctx, "plugin-uuid"))
	frame := host.next(t)
	assert.Equal(t, "getGlobalSettings", frame["event"])
	assert.Equal(t, "plugin-uuid", frame["context"])

	require.NoError(t, conn.SetGlobalSettings(ctx, "plugin-uuid", json.RawMessage(`{"smartthings_pat":"tok"}`)))
	frame = host.next(t)
	assert.Equal(t, "setGlobalSettings", frame["event"])
	assert.Equal(t, map[string]any{"smartthings_pat": "tok"}, frame["payload"])
}

func TestConn_RunDeliversEnvelopes(t *testing.T) {
	host := newFakeHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := DialURL(ctx, host.url())
	require.NoError(t, err)

	host.outbound <- []byte(`not json`)
	host.outbound <- []byte(`{"event":"keyDown","action":"com.example.action","context":"key-1","payload":{"settings":{"type":"scene","scene_id":"s1"},"coordinates":{"column":1,"row":2}}}`)
	close(host.outbound)

	var got []Envelope
	err = conn.Run(ctx, func(env Envelope) {
		got = append(got, env)
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, EventKeyDown, got[0].Event)
	assert.Equal(t, "key-1", got[0].Context)

	payload, err := got[0].DecodeKey()
	require.NoError(t, err)
	require.NotNil(t, payload.Coordinates)
	assert.Equal(t, Coordinates{Column: 1, Row: 2}, *payload.Coordinates)
	assert.JSONEq(t, `{"type":"scene","scene_id":"s1"}`, string(payload.Settings))
}

func TestConn_SendAfterClose(t *testing.T) {
	host := newFakeHost(t)
	ctx := context.Background()

	conn, err := DialURL(ctx, host.url())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	err = conn.SetTitle(ctx, "key-1", "ON")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConn_CloseFlushesQueue(t *testing.T) {
	host := newFakeHost(t)
	ctx := context.Background()

	conn, err := DialURL(ctx, host.url())
	require.NoError(t, err)

	require.NoError(t, conn.SetSettings(ctx, "key-1", json.RawMessage(`{"type":"device","device_id":"d1"}`)))
	conn.Close()

	frame := host.next(t)
	assert.Equal(t, "setSettings", frame["event"])
}

func TestParseInfo(t *testing.T) {
	info, err := ParseInfo(`{"application":{"platform":"mac","version":"6.4"},"plugin":{"uuid":"com.example","version":"1.0"},"devices":[{"id":"D1","name":"Deck","type":0}]}`)
	require.NoError(t, err)
	assert.Equal(t, "mac", info.Application.Platform)
	assert.Equal(t, "com.example", info.Plugin.UUID)
	require.Len(t, info.Devices, 1)

	info, err = ParseInfo("")
	require.NoError(t, err)
	assert.Empty(t, info.Devices)
}
