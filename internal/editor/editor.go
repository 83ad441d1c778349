package editor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stdeck/internal/kv"
	"github.com/dokzlo13/stdeck/internal/settings"
	"github.com/dokzlo13/stdeck/internal/smartthings"
)

// ErrEmptyPAT is returned when saving a blank token
var ErrEmptyPAT = errors.New("personal access token is empty")

// DefaultCatalogTTL bounds how long picklists are reused
const DefaultCatalogTTL = 5 * time.Minute

// Catalog lists what a token can see
type Catalog interface {
	ListDevices(ctx context.Context) ([]smartthings.Device, error)
	ListScenes(ctx context.Context) ([]smartthings.Scene, error)
}

// CatalogFunc returns a Catalog bound to a token
type CatalogFunc func(token string) Catalog

// Option is one picklist entry
type Option struct {
	Value      string `json:"value"`
	Label      string `json:"label"`
	Switchable bool   `json:"switchable,omitempty"`
}

// Editor loads, edits and saves key settings
type Editor struct {
	store   Store
	catalog CatalogFunc
	cache   kv.Bucket
	ttl     time.Duration
}

// New creates an editor. cache may be nil to always fetch picklists.
func New(store Store, catalog CatalogFunc, cache kv.Bucket) *Editor {
	return &Editor{
		store:   store,
		catalog: catalog,
		cache:   cache,
		ttl:     DefaultCatalogTTL,
	}
}

// SavePAT stores the global token
func (e *Editor) SavePAT(ctx context.Context, pat string) error {
	pat = strings.TrimSpace(pat)
	if pat == "" {
		return ErrEmptyPAT
	}
	return e.store.SaveGlobal(ctx, settings.GlobalSettings{PAT: pat})
}

// Token returns the token a key would use: its own, else the global one
func (e *Editor) Token(ctx context.Context, keyContext string) (string, error) {
	var ks settings.KeySettings
	if keyContext != "" {
		var err error
		if ks, _, err = e.store.LoadKey(ctx, keyContext); err != nil {
			return "", err
		}
	}
	g, _, err := e.store.LoadGlobal(ctx)
	if err != nil {
		return "", err
	}
	return settings.Credential(ks, g), nil
}

// Load reads a key's settings into a form
func (e *Editor) Load(ctx context.Context, keyContext string) (Form, bool, error) {
	ks, ok, err := e.store.LoadKey(ctx, keyContext)
	if err != nil {
		return Form{}, false, err
	}
	return FormFromSettings(ks), ok, nil
}

// Save validates the form and persists its visible fields
func (e *Editor) Save(ctx context.Context, keyContext string, f Form) (settings.KeySettings, error) {
	if err := f.Validate(); err != nil {
		return settings.KeySettings{}, err
	}
	ks := f.Settings()
	if err := e.store.SaveKey(ctx, keyContext, ks); err != nil {
		return settings.KeySettings{}, fmt.Errorf("save settings for %s: %w", keyContext, err)
	}
	log.Debug().Str("context", keyContext).Str("type", string(ks.Type)).Msg("Key settings saved")
	return ks, nil
}

// DeviceOptions lists devices labelled with name and id
func (e *Editor) DeviceOptions(ctx context.Context, token string) ([]Option, error) {
	if token == "" {
		return nil, ErrEmptyPAT
	}
	key := cacheKey("devices", token)
	if opts, ok := e.cached(key); ok {
		return opts, nil
	}

	devices, err := e.catalog(token).ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	opts := make([]Option, 0, len(devices))
	for _, d := range devices {
		opts = append(opts, Option{
			Value:      d.DeviceID,
			Label:      optionLabel(d.DisplayName(), d.DeviceID),
			Switchable: d.HasCapability(smartthings.CapabilitySwitch),
		})
	}
	e.remember(key, opts)
	return opts, nil
}

// SceneOptions lists scenes labelled with name and id
func (e *Editor) SceneOptions(ctx context.Context, token string) ([]Option, error) {
	if token == "" {
		return nil, ErrEmptyPAT
	}
	key := cacheKey("scenes", token)
	if opts, ok := e.cached(key); ok {
		return opts, nil
	}

	scenes, err := e.catalog(token).ListScenes(ctx)
	if err != nil {
		return nil, err
	}
	opts := make([]Option, 0, len(scenes))
	for _, s := range scenes {
		opts = append(opts, Option{Value: s.SceneID, Label: optionLabel(s.DisplayName(), s.SceneID)})
	}
	e.remember(key, opts)
	return opts, nil
}

// ForgetPicklists drops cached device and scene lists
func (e *Editor) ForgetPicklists() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Clear()
}

func (e *Editor) cached(key string) ([]Option, bool) {
	if e.cache == nil {
		return nil, false
	}
	var opts []Option
	ok, err := e.cache.Load(key, &opts)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Picklist cache read failed")
		return nil, false
	}
	return opts, ok
}

func (e *Editor) remember(key string, opts []Option) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Store(key, opts, &kv.StoreOptions{TTL: e.ttl}); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Picklist cache write failed")
	}
}

// cacheKey never stores the token itself
func cacheKey(kind, token string) string {
	sum := sha256.Sum256([]byte(token))
	return kind + ":" + hex.EncodeToString(sum[:8])
}

func optionLabel(name, id string) string {
	return name + " — " + id
}
