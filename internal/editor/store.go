package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stdeck/internal/kv"
	"github.com/dokzlo13/stdeck/internal/settings"
	"github.com/dokzlo13/stdeck/internal/streamdeck"
)

// Store persists key and global settings
type Store interface {
	SaveKey(ctx context.Context, keyContext string, s settings.KeySettings) error
	LoadKey(ctx context.Context, keyContext string) (settings.KeySettings, bool, error)
	SaveGlobal(ctx context.Context, g settings.GlobalSettings) error
	LoadGlobal(ctx context.Context) (settings.GlobalSettings, bool, error)
}

// Bucket names used by LocalStore
const (
	KeyBucket    = "settings"
	GlobalBucket = "global"
	globalKey    = "global"
)

// LocalStore keeps settings in kv buckets, mirroring the host's JSON shape.
// Used for development without a host.
type LocalStore struct {
	keys   kv.Bucket
	global kv.Bucket
}

// NewLocalStore creates a store over the manager's persistent buckets
func NewLocalStore(m *kv.Manager) *LocalStore {
	return &LocalStore{
		keys:   m.Bucket(KeyBucket, true),
		global: m.Bucket(GlobalBucket, true),
	}
}

// SaveKey stores the canonical settings JSON for a key
func (s *LocalStore) SaveKey(ctx context.Context, keyContext string, ks settings.KeySettings) error {
	raw, err := json.Marshal(ks)
	if err != nil {
		return err
	}
	return s.keys.Store(keyContext, json.RawMessage(raw), nil)
}

// LoadKey reads a key's settings
func (s *LocalStore) LoadKey(ctx context.Context, keyContext string) (settings.KeySettings, bool, error) {
	var raw json.RawMessage
	ok, err := s.keys.Load(keyContext, &raw)
	if err != nil || !ok {
		return settings.KeySettings{}, false, err
	}
	ks, err := settings.Parse(raw)
	if err != nil {
		return settings.KeySettings{}, false, fmt.Errorf("stored settings for %s: %w", keyContext, err)
	}
	return ks, true, nil
}

// Keys lists the key contexts with stored settings
func (s *LocalStore) Keys() ([]string, error) {
	return s.keys.Keys()
}

// DeleteKey forgets a key's settings and reports whether any were stored
func (s *LocalStore) DeleteKey(keyContext string) (bool, error) {
	return s.keys.Delete(keyContext)
}

// SaveGlobal stores the global settings
func (s *LocalStore) SaveGlobal(ctx context.Context, g settings.GlobalSettings) error {
	return s.global.Store(globalKey, g, nil)
}

// LoadGlobal reads the global settings
func (s *LocalStore) LoadGlobal(ctx context.Context) (settings.GlobalSettings, bool, error) {
	var g settings.GlobalSettings
	ok, err := s.global.Load(globalKey, &g)
	return g, ok, err
}

// HostStore talks to the host as a property inspector. Settings live in the
// host; loads ask for them and wait for the reply.
type HostStore struct {
	conn *streamdeck.Conn
	uuid string

	mu      sync.Mutex
	waiters map[string][]chan json.RawMessage // by event + context

	runErr chan error
}

// NewHostStore registers conn as the property inspector identified by uuid
// and starts reading replies.
func NewHostStore(ctx context.Context, conn *streamdeck.Conn, uuid string) (*HostStore, error) {
	h := &HostStore{
		conn:    conn,
		uuid:    uuid,
		waiters: make(map[string][]chan json.RawMessage),
		runErr:  make(chan error, 1),
	}
	if err := conn.Register(ctx, streamdeck.RegisterPropertyInspector, uuid); err != nil {
		return nil, fmt.Errorf("register property inspector: %w", err)
	}
	go func() {
		h.runErr <- conn.Run(ctx, h.handle)
	}()
	return h, nil
}

func waiterKey(event, keyContext string) string {
	return event + "/" + keyContext
}

func (h *HostStore) handle(env streamdeck.Envelope) {
	var (
		raw json.RawMessage
		key string
	)
	switch env.Event {
	case streamdeck.EventDidReceiveSettings:
		p, err := env.DecodeKey()
		if err != nil {
			log.Warn().Err(err).Msg("Malformed settings reply")
			return
		}
		raw, key = p.Settings, waiterKey(env.Event, env.Context)
	case streamdeck.EventDidReceiveGlobalSettings:
		p, err := env.DecodeGlobal()
		if err != nil {
			log.Warn().Err(err).Msg("Malformed global settings reply")
			return
		}
		raw, key = p.Settings, waiterKey(env.Event, "")
	default:
		return
	}

	h.mu.Lock()
	waiters := h.waiters[key]
	delete(h.waiters, key)
	h.mu.Unlock()

	for _, w := range waiters {
		w <- raw
	}
}

func (h *HostStore) await(ctx context.Context, key string, request func() error) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)
	h.mu.Lock()
	h.waiters[key] = append(h.waiters[key], ch)
	h.mu.Unlock()

	if err := request(); err != nil {
		h.forget(key, ch)
		return nil, err
	}

	select {
	case raw := <-ch:
		return raw, nil
	case <-h.conn.Done():
		h.forget(key, ch)
		return nil, streamdeck.ErrClosed
	case <-ctx.Done():
		h.forget(key, ch)
		return nil, ctx.Err()
	}
}

// forget drops a waiter that gave up before its reply arrived
func (h *HostStore) forget(key string, ch chan json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	waiters := slices.DeleteFunc(h.waiters[key], func(w chan json.RawMessage) bool { return w == ch })
	if len(waiters) == 0 {
		delete(h.waiters, key)
		return
	}
	h.waiters[key] = waiters
}

// SaveKey sends setSettings for the key
func (h *HostStore) SaveKey(ctx context.Context, keyContext string, ks settings.KeySettings) error {
	raw, err := json.Marshal(ks)
	if err != nil {
		return err
	}
	return h.conn.SetSettings(ctx, keyContext, raw)
}

// LoadKey requests the key's settings and waits for didReceiveSettings
func (h *HostStore) LoadKey(ctx context.Context, keyContext string) (settings.KeySettings, bool, error) {
	raw, err := h.await(ctx, waiterKey(streamdeck.EventDidReceiveSettings, keyContext), func() error {
		return h.conn.GetSettings(ctx, keyContext)
	})
	if err != nil {
		return settings.KeySettings{}, false, err
	}
	ks, err := settings.Parse(raw)
	if err != nil {
		return settings.KeySettings{}, false, err
	}
	return ks, len(raw) > 0, nil
}

// SaveGlobal sends setGlobalSettings
func (h *HostStore) SaveGlobal(ctx context.Context, g settings.GlobalSettings) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return h.conn.SetGlobalSettings(ctx, h.uuid, raw)
}

// LoadGlobal requests the global settings and waits for the reply
func (h *HostStore) LoadGlobal(ctx context.Context) (settings.GlobalSettings, bool, error) {
	raw, err := h.await(ctx, waiterKey(streamdeck.EventDidReceiveGlobalSettings, ""), func() error {
		return h.conn.GetGlobalSettings(ctx, h.uuid)
	})
	if err != nil {
		return settings.GlobalSettings{}, false, err
	}
	g, err := settings.ParseGlobal(raw)
	if err != nil {
		return settings.GlobalSettings{}, false, err
	}
	return g, len(raw) > 0, nil
}

// Close flushes pending writes and closes the connection
func (h *HostStore) Close() error {
	err := h.conn.Close()
	<-h.runErr
	return err
}
