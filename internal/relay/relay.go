// Package relay routes host events onto the event bus and runs them through
// the dispatcher one at a time.
package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stdeck/internal/dispatch"
	"github.com/dokzlo13/stdeck/internal/eventbus"
	"github.com/dokzlo13/stdeck/internal/history"
	"github.com/dokzlo13/stdeck/internal/settings"
	"github.com/dokzlo13/stdeck/internal/streamdeck"
)

// Recorder stores dispatch outcomes
type Recorder interface {
	Record(e history.Entry) error
}

// keyEvent is the bus payload for key presses and appearances
type keyEvent struct {
	dispatchID string
	settings   settings.KeySettings
}

// refreshEvent is the bus payload for follow-up refreshes.
// It carries the request of the dispatch that scheduled it.
type refreshEvent struct {
	dispatchID string
	request    dispatch.Request
}

// Relay connects host events to the dispatcher
type Relay struct {
	actionUUID string
	bus        *eventbus.Bus
	dispatcher *dispatch.Dispatcher
	recorder   Recorder

	ctx context.Context

	// Only touched from the single bus worker.
	global settings.GlobalSettings

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
}

// New creates a relay. recorder may be nil.
func New(actionUUID string, bus *eventbus.Bus, dispatcher *dispatch.Dispatcher, recorder Recorder) *Relay {
	return &Relay{
		actionUUID: actionUUID,
		bus:        bus,
		dispatcher: dispatcher,
		recorder:   recorder,
		ctx:        context.Background(),
		pending:    make(map[*time.Timer]struct{}),
	}
}

// Start subscribes the relay's handlers. ctx bounds every dispatch.
func (r *Relay) Start(ctx context.Context) {
	r.ctx = ctx
	r.bus.Subscribe(eventbus.EventTypeKeyDown, r.onKeyDown)
	r.bus.Subscribe(eventbus.EventTypeWillAppear, r.onRefreshKey)
	r.bus.Subscribe(eventbus.EventTypeKeySettings, r.onRefreshKey)
	r.bus.Subscribe(eventbus.EventTypeGlobalSettings, r.onGlobalSettings)
	r.bus.Subscribe(eventbus.EventTypeRefresh, r.onRefresh)
}

// Stop cancels pending follow-up refreshes
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t := range r.pending {
		t.Stop()
		delete(r.pending, t)
	}
}

// Handle is the streamdeck.Handler for the plugin connection.
// It runs on the reader goroutine and only decodes and publishes.
func (r *Relay) Handle(env streamdeck.Envelope) {
	switch env.Event {
	case streamdeck.EventDidReceiveGlobalSettings:
		payload, err := env.DecodeGlobal()
		if err != nil {
			log.Warn().Err(err).Msg("Malformed global settings payload")
			return
		}
		global, err := settings.ParseGlobal(payload.Settings)
		if err != nil {
			log.Warn().Err(err).Msg("Malformed global settings")
			return
		}
		r.bus.Publish(eventbus.Event{Type: eventbus.EventTypeGlobalSettings, Payload: global})

	case streamdeck.EventKeyDown, streamdeck.EventWillAppear, streamdeck.EventDidReceiveSettings:
		if env.Action != r.actionUUID {
			log.Debug().Str("event", env.Event).Str("action", env.Action).Msg("Ignoring event for foreign action")
			return
		}
		payload, err := env.DecodeKey()
		if err != nil {
			log.Warn().Err(err).Str("context", env.Context).Msg("Malformed key payload")
			return
		}
		ks, err := settings.Parse(payload.Settings)
		if err != nil {
			log.Warn().Err(err).Str("context", env.Context).Msg("Malformed key settings")
			return
		}

		typ := eventbus.EventTypeKeyDown
		switch env.Event {
		case streamdeck.EventWillAppear:
			typ = eventbus.EventTypeWillAppear
		case streamdeck.EventDidReceiveSettings:
			typ = eventbus.EventTypeKeySettings
		}
		r.bus.Publish(eventbus.Event{
			Type:    typ,
			Context: env.Context,
			Payload: keyEvent{dispatchID: uuid.NewString(), settings: ks},
		})

	default:
		log.Debug().Str("event", env.Event).Str("context", env.Context).Msg("Unhandled host event")
	}
}

func (r *Relay) onGlobalSettings(ev eventbus.Event) {
	global, ok := ev.Payload.(settings.GlobalSettings)
	if !ok {
		return
	}
	r.global = global
	log.Info().Bool("has_pat", global.PAT != "").Msg("Global settings updated")
}

func (r *Relay) onKeyDown(ev eventbus.Event) {
	ke, ok := ev.Payload.(keyEvent)
	if !ok {
		return
	}
	req := dispatch.Request{Context: ev.Context, Settings: ke.settings, Global: r.global}

	log.Info().
		Str("dispatch_id", ke.dispatchID).
		Str("context", ev.Context).
		Str("type", string(ke.settings.Type)).
		Str("command", string(ke.settings.Command)).
		Msg("Key pressed")

	out := r.dispatcher.Dispatch(r.ctx, req)
	r.record(history.KindDispatch, ke.dispatchID, req, out)

	if out.RefreshAfter > 0 {
		r.scheduleRefresh(out.RefreshAfter, refreshEvent{dispatchID: ke.dispatchID, request: req})
	}
}

func (r *Relay) onRefreshKey(ev eventbus.Event) {
	ke, ok := ev.Payload.(keyEvent)
	if !ok {
		return
	}
	req := dispatch.Request{Context: ev.Context, Settings: ke.settings, Global: r.global}
	out := r.dispatcher.Refresh(r.ctx, req)
	r.record(history.KindRefresh, ke.dispatchID, req, out)
}

func (r *Relay) onRefresh(ev eventbus.Event) {
	re, ok := ev.Payload.(refreshEvent)
	if !ok {
		return
	}
	out := r.dispatcher.Refresh(r.ctx, re.request)
	r.record(history.KindRefresh, re.dispatchID, re.request, out)
}

func (r *Relay) scheduleRefresh(delay time.Duration, re refreshEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.pending, t)
		r.mu.Unlock()

		if r.ctx.Err() != nil {
			return
		}
		r.bus.Publish(eventbus.Event{Type: eventbus.EventTypeRefresh, Context: re.request.Context, Payload: re})
	})
	r.pending[t] = struct{}{}
}

func (r *Relay) record(kind history.Kind, dispatchID string, req dispatch.Request, out dispatch.Outcome) {
	if r.recorder == nil {
		return
	}
	e := history.Entry{
		DispatchID: dispatchID,
		Kind:       kind,
		Context:    req.Context,
		TargetType: string(req.Settings.Type),
		Target:     target(req.Settings),
		Label:      out.Label,
	}
	if kind == history.KindDispatch {
		e.Command = string(req.Settings.Command)
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if err := r.recorder.Record(e); err != nil {
		log.Warn().Err(err).Str("dispatch_id", dispatchID).Msg("Failed to record history")
	}
}

func target(s settings.KeySettings) string {
	switch s.Type {
	case settings.TargetScene:
		return s.SceneID
	case settings.TargetGroup:
		return strings.Join(s.DeviceIDs, ",")
	default:
		return s.DeviceID
	}
}
