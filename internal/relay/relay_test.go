package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/stdeck/internal/dispatch"
	"github.com/dokzlo13/stdeck/internal/eventbus"
	"github.com/dokzlo13/stdeck/internal/group"
	"github.com/dokzlo13/stdeck/internal/history"
	"github.com/dokzlo13/stdeck/internal/smartthings"
	"github.com/dokzlo13/stdeck/internal/smartthings/sttest"
	"github.com/dokzlo13/stdeck/internal/streamdeck"
)

const action = "com.ramwich.smartthings.control"

type titles struct {
	mu   sync.Mutex
	seen []string
}

func (l *titles) SetTitle(ctx context.Context, keyContext, title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, keyContext+"="+title)
	return nil
}

func (l *titles) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seen...)
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (m *memoryRecorder) Record(e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryRecorder) all() []history.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Entry(nil), m.entries...)
}

type harness struct {
	api      *sttest.Fake
	labels   *titles
	recorder *memoryRecorder
	tokens   chan string
	bus      *eventbus.Bus
	relay    *Relay
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:      sttest.New(),
		labels:   &titles{},
		recorder: &memoryRecorder{},
		tokens:   make(chan string, 64),
		bus:      eventbus.New(),
	}
	connect := func(token string) dispatch.API {
		h.tokens <- token
		return h.api
	}
	delays := dispatch.Delays{Device: 10 * time.Millisecond, Group: 10 * time.Millisecond, Scene: 10 * time.Millisecond}
	d := dispatch.New(connect, h.labels, group.NewPoller(0), delays)

	ctx, cancel := context.WithCancel(context.Background())
	h.relay = New(action, h.bus, d, h.recorder)
	h.relay.Start(ctx)

	t.Cleanup(func() {
		cancel()
		h.relay.Stop()
		h.bus.Close(context.Background())
	})
	return h
}

func envelope(event, actionUUID, keyContext, payload string) streamdeck.Envelope {
	return streamdeck.Envelope{
		Event:   event,
		Action:  actionUUID,
		Context: keyContext,
		Payload: json.RawMessage(payload),
	}
}

func TestRelay_KeyDownUsesGlobalTokenAndRefreshes(t *testing.T) {
	h := newHarness(t)
	h.api.States["d1"] = smartthings.SwitchOff

	h.relay.Handle(envelope(streamdeck.EventDidReceiveGlobalSettings, "", "", `{"settings":{"smartthings_pat":"global-token"}}`))
	h.relay.Handle(envelope(streamdeck.EventKeyDown, action, "key-1", `{"settings":{"type":"device","device_id":"d1","command":"toggle"}}`))

	// Dispatch shows ON, the follow-up refresh reads the new state with the
	// same token and shows ON again.
	assert.Eventually(t, func() bool {
		return len(h.recorder.all()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"key-1=ON", "key-1=ON"}, h.labels.all())

	close(h.tokens)
	for token := range h.tokens {
		assert.Equal(t, "global-token", token)
	}

	entries := h.recorder.all()
	require.Len(t, entries, 2)
	assert.Equal(t, history.KindDispatch, entries[0].Kind)
	assert.Equal(t, "toggle", entries[0].Command)
	assert.Equal(t, history.KindRefresh, entries[1].Kind)
	assert.Equal(t, entries[0].DispatchID, entries[1].DispatchID)
	assert.NotEmpty(t, entries[0].DispatchID)
}

func TestRelay_WithoutTokenShowsConfigurePAT(t *testing.T) {
	h := newHarness(t)

	h.relay.Handle(envelope(streamdeck.EventWillAppear, action, "key-1", `{"settings":{"type":"scene","scene_id":"s1"}}`))

	assert.Eventually(t, func() bool {
		return len(h.labels.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"key-1=Configure\nPAT"}, h.labels.all())
	assert.Empty(t, h.api.Calls())
}

func TestRelay_IgnoresForeignAction(t *testing.T) {
	h := newHarness(t)

	h.relay.Handle(envelope(streamdeck.EventKeyDown, "com.example.other", "key-1", `{"settings":{"type":"scene","scene_id":"s1","smartthings_pat":"tok"}}`))
	h.relay.Handle(envelope(streamdeck.EventWillAppear, action, "key-2", `{"settings":{"type":"scene","scene_id":"s1","smartthings_pat":"tok"}}`))

	assert.Eventually(t, func() bool {
		return len(h.labels.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"key-2=SCENE"}, h.labels.all())
}

func TestRelay_SettingsChangeRefreshes(t *testing.T) {
	h := newHarness(t)
	h.api.States["a"] = smartthings.SwitchOn

	h.relay.Handle(envelope(streamdeck.EventDidReceiveSettings, action, "key-1",
		`{"settings":{"type":"group","group_device_ids":["a","b"],"smartthings_pat":"key-token"}}`))

	assert.Eventually(t, func() bool {
		return len(h.labels.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"key-1=SOME ON"}, h.labels.all())
	assert.Empty(t, h.api.CallsOf("sendCommand"))
}

func TestRelay_EventsProcessedInOrder(t *testing.T) {
	h := newHarness(t)

	h.relay.Handle(envelope(streamdeck.EventDidReceiveGlobalSettings, "", "", `{"settings":{"smartthings_pat":"tok"}}`))
	for _, key := range []string{"k1", "k2", "k3"} {
		h.relay.Handle(envelope(streamdeck.EventWillAppear, action, key, `{"settings":{"type":"scene","scene_id":"s"}}`))
	}

	assert.Eventually(t, func() bool {
		return len(h.labels.all()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"k1=SCENE", "k2=SCENE", "k3=SCENE"}, h.labels.all())
}

func TestRelay_MalformedPayloadDropped(t *testing.T) {
	h := newHarness(t)

	h.relay.Handle(envelope(streamdeck.EventKeyDown, action, "key-1", `{"settings":"nope"}`))
	h.relay.Handle(envelope(streamdeck.EventDidReceiveGlobalSettings, "", "", `[]`))
	h.relay.Handle(envelope("deviceDidConnect", "", "", `{}`))

	h.bus.Close(context.Background())
	assert.Empty(t, h.labels.all())
	assert.Empty(t, h.recorder.all())
}

func TestRelay_RecordsFailure(t *testing.T) {
	h := newHarness(t)
	h.api.SceneErr = sttest.Transport("executeScene", 500)

	h.relay.Handle(envelope(streamdeck.EventKeyDown, action, "key-1", `{"settings":{"type":"scene","scene_id":"s9","smartthings_pat":"tok"}}`))

	assert.Eventually(t, func() bool {
		return len(h.recorder.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	e := h.recorder.all()[0]
	assert.Equal(t, "s9", e.Target)
	assert.Equal(t, "scene", e.TargetType)
	assert.Equal(t, "Err", e.Label)
	assert.Contains(t, e.Error, "500")
}
