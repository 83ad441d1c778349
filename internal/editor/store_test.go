package editor

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

	"github.com/dokzlo13/stdeck/internal/settings"
	"github.com/dokzlo13/stdeck/internal/streamdeck"
)

// inspectorHost answers getSettings/getGlobalSettings from its own state
// and records every frame it receives.
type inspectorHost struct {
	server *httptest.Server
	frames chan map[string]any
	keys   map[string]json.RawMessage
	global json.RawMessage
	silent bool // record requests without answering
}

func newInspectorHost(t *testing.T) *inspectorHost {
	t.Helper()
	return startInspectorHost(t, false)
}

func startInspectorHost(t *testing.T, silent bool) *inspectorHost {
	t.Helper()
	h := &inspectorHost{
		frames: make(chan map[string]any, 32),
		keys:   map[string]json.RawMessage{},
		silent: silent,
	}
	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer ws.Close()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env streamdeck.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			var frame map[string]any
			_ = json.Unmarshal(data, &frame)
			h.frames <- frame

			var reply any
			if h.silent {
				continue
			}
			switch env.Event {
			case streamdeck.EventSetSettings:
				h.keys[env.Context] = env.Payload
			case streamdeck.EventSetGlobalSettings:
				h.global = env.Payload
			case streamdeck.EventGetSettings:
				reply = map[string]any{
					"event":   streamdeck.EventDidReceiveSettings,
					"context": env.Context,
					"payload": map[string]any{"settings": h.keys[env.Context]},
				}
			case streamdeck.EventGetGlobalSettings:
				reply = map[string]any{
					"event":   streamdeck.EventDidReceiveGlobalSettings,
					"payload": map[string]any{"settings": h.global},
				}
			}
			if reply != nil {
				if err := ws.WriteJSON(reply); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *inspectorHost) url() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *inspectorHost) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// pending counts waiters still expecting a reply
func (h *HostStore) pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, w := range h.waiters {
		n += len(w)
	}
	return n
}

func TestHostStore(t *testing.T) {
	host := newInspectorHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := streamdeck.DialURL(ctx, host.url())
	require.NoError(t, err)

	store, err := NewHostStore(ctx, conn, "key-1")
	require.NoError(t, err)
	defer store.Close()

	reg := host.next(t)
	assert.Equal(t, "registerPropertyInspector", reg["event"])
	assert.Equal(t, "key-1", reg["uuid"])

	level := 55
	require.NoError(t, store.SaveKey(ctx, "key-1", settings.KeySettings{
		Type: settings.TargetDevice, DeviceID: "d1", Command: settings.CommandSetLevel, Level: &level,
	}))
	set := host.next(t)
	assert.Equal(t, "setSettings", set["event"])
	assert.Equal(t, map[string]any{"type": "device", "device_id": "d1", "command": "setLevel", "level": float64(55)}, set["payload"])

	ks, ok, err := store.LoadKey(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d1", ks.DeviceID)
	require.NotNil(t, ks.Level)
	assert.Equal(t, 55, *ks.Level)

	require.NoError(t, store.SaveGlobal(ctx, settings.GlobalSettings{PAT: "tok"}))
	g, ok, err := store.LoadGlobal(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", g.PAT)
}

func TestHostStore_AfterClose(t *testing.T) {
	host := newInspectorHost(t)
	ctx := context.Background()

	conn, err := streamdeck.DialURL(ctx, host.url())
	require.NoError(t, err)

	store, err := NewHostStore(ctx, conn, "key-1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.LoadKey(ctx, "key-1")
	assert.ErrorIs(t, err, streamdeck.ErrClosed)
	assert.Zero(t, store.pending())

	err = store.SaveGlobal(ctx, settings.GlobalSettings{PAT: "tok"})
	assert.ErrorIs(t, err, streamdeck.ErrClosed)
}

func TestHostStore_UnansweredLoadDropsWaiter(t *testing.T) {
	host := startInspectorHost(t, true)

	conn, err := streamdeck.DialURL(context.Background(), host.url())
	require.NoError(t, err)
	store, err := NewHostStore(context.Background(), conn, "key-1")
	require.NoError(t, err)
	defer store.Close()
	host.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = store.LoadKey(ctx, "key-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, _, err = store.LoadGlobal(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, store.pending())
}
