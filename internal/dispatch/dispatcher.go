// Package dispatch turns a key's settings into SmartThings calls and key labels.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stdeck/internal/group"
	"github.com/dokzlo13/stdeck/internal/settings"
	"github.com/dokzlo13/stdeck/internal/smartthings"
)

// API is the subset of the cloud client used by the dispatcher
type API interface {
	group.API
	ExecuteScene(ctx context.Context, sceneID string) error
}

// ConnectFunc returns an API bound to a token
type ConnectFunc func(token string) API

// Labeler shows a title on a key
type Labeler interface {
	SetTitle(ctx context.Context, keyContext, title string) error
}

// Delays before the follow-up refresh, giving the cloud time to converge
type Delays struct {
	Device time.Duration
	Group  time.Duration
	Scene  time.Duration
}

// DefaultDelays returns the standard convergence delays
func DefaultDelays() Delays {
	return Delays{
		Device: 800 * time.Millisecond,
		Group:  1000 * time.Millisecond,
		Scene:  800 * time.Millisecond,
	}
}

// Request carries everything one dispatch needs. Nothing is read from
// process-wide state.
type Request struct {
	Context  string // key context assigned by the host
	Settings settings.KeySettings
	Global   settings.GlobalSettings
}

// Outcome is the result of a dispatch or refresh
type Outcome struct {
	Label        string        // last label shown, empty if none
	RefreshAfter time.Duration // schedule a refresh after this delay when > 0
	Err          error         // API failure that was reduced to LabelErr
}

// Dispatcher executes key presses and refreshes
type Dispatcher struct {
	connect ConnectFunc
	labels  Labeler
	poller  *group.Poller
	delays  Delays
}

// New creates a dispatcher
func New(connect ConnectFunc, labels Labeler, poller *group.Poller, delays Delays) *Dispatcher {
	if poller == nil {
		poller = group.NewPoller(0)
	}
	return &Dispatcher{
		connect: connect,
		labels:  labels,
		poller:  poller,
		delays:  delays,
	}
}

// Dispatch handles a key press
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	token := settings.Credential(req.Settings, req.Global)
	if token == "" {
		return d.show(ctx, req.Context, LabelConfigurePAT)
	}
	api := d.connect(token)

	var out Outcome
	switch req.Settings.Type {
	case settings.TargetScene:
		out = d.runScene(ctx, api, req)
	case settings.TargetGroup:
		out = d.groupCommand(ctx, api, req)
	default:
		out = d.deviceCommand(ctx, api, req)
	}

	if out.Err != nil {
		log.Error().Err(out.Err).
			Str("context", req.Context).
			Str("type", string(req.Settings.Type)).
			Str("command", string(req.Settings.Command)).
			Msg("Dispatch failed")
		return d.fail(ctx, req.Context, out.Err)
	}
	return out
}

func (d *Dispatcher) deviceCommand(ctx context.Context, api API, req Request) Outcome {
	s := req.Settings
	if s.DeviceID == "" {
		return d.show(ctx, req.Context, LabelNoDevice)
	}

	var (
		label      string
		capability = smartthings.CapabilitySwitch
		command    string
		args       []any
	)

	switch s.Command {
	case settings.CommandToggle:
		state, err := api.GetSwitchState(ctx, s.DeviceID)
		if err != nil {
			return Outcome{Err: err}
		}
		command = smartthings.CommandOn
		if state == smartthings.SwitchOn {
			command = smartthings.CommandOff
		}
		label = upper(command)
	case settings.CommandOn, settings.CommandOff:
		command = string(s.Command)
		label = upper(command)
	case settings.CommandSetLevel:
		level := s.EffectiveLevel()
		capability = smartthings.CapabilitySwitchLevel
		command = smartthings.CommandSetLevel
		args = []any{level}
		label = LevelLabel(level)
	default:
		log.Warn().Str("context", req.Context).Str("command", string(s.Command)).Msg("Unknown device command, ignoring")
		return Outcome{}
	}

	d.show(ctx, req.Context, label)
	if err := api.SendCommand(ctx, s.DeviceID, capability, command, args...); err != nil {
		return Outcome{Label: label, Err: err}
	}

	log.Debug().
		Str("context", req.Context).
		Str("device", s.DeviceID).
		Str("capability", capability).
		Str("command", command).
		Msg("Device command sent")

	return Outcome{Label: label, RefreshAfter: d.delays.Device}
}

func (d *Dispatcher) groupCommand(ctx context.Context, api API, req Request) Outcome {
	s := req.Settings
	if len(s.DeviceIDs) == 0 {
		return d.show(ctx, req.Context, LabelNoDevices)
	}

	var (
		label      string
		capability = smartthings.CapabilitySwitch
		command    string
		args       []any
	)

	switch s.Command {
	case settings.CommandToggle:
		agg, states := d.poller.Aggregate(ctx, api, s.DeviceIDs)
		log.Debug().
			Str("context", req.Context).
			Str("aggregate", agg.String()).
			Int("devices", len(states)).
			Msg("Group state aggregated")
		if agg == group.AnyOn {
			command, label = smartthings.CommandOff, LabelAllOff
		} else {
			command, label = smartthings.CommandOn, LabelAllOn
		}
	case settings.CommandOn, settings.CommandOff:
		command = string(s.Command)
		label = upper(command)
	case settings.CommandSetLevel:
		level := s.EffectiveLevel()
		capability = smartthings.CapabilitySwitchLevel
		command = smartthings.CommandSetLevel
		args = []any{level}
		label = LevelLabel(level)
	default:
		log.Warn().Str("context", req.Context).Str("command", string(s.Command)).Msg("Unknown group command, ignoring")
		return Outcome{}
	}

	d.show(ctx, req.Context, label)
	if err := d.poller.SendUniform(ctx, api, s.DeviceIDs, capability, command, args...); err != nil {
		return Outcome{Label: label, Err: err}
	}

	log.Debug().
		Str("context", req.Context).
		Strs("devices", s.DeviceIDs).
		Str("capability", capability).
		Str("command", command).
		Msg("Group command sent")

	return Outcome{Label: label, RefreshAfter: d.delays.Group}
}

func (d *Dispatcher) runScene(ctx context.Context, api API, req Request) Outcome {
	sceneID := req.Settings.SceneID
	if sceneID == "" {
		return d.show(ctx, req.Context, LabelNoScene)
	}

	d.show(ctx, req.Context, LabelRunning)
	if err := api.ExecuteScene(ctx, sceneID); err != nil {
		return Outcome{Label: LabelRunning, Err: err}
	}
	d.show(ctx, req.Context, LabelRan)

	log.Debug().Str("context", req.Context).Str("scene", sceneID).Msg("Scene executed")
	return Outcome{Label: LabelRan, RefreshAfter: d.delays.Scene}
}

// Refresh shows the current state of the key's target without commanding it
func (d *Dispatcher) Refresh(ctx context.Context, req Request) Outcome {
	token := settings.Credential(req.Settings, req.Global)
	if token == "" {
		return d.show(ctx, req.Context, LabelConfigurePAT)
	}

	s := req.Settings
	switch s.Type {
	case settings.TargetScene:
		// Scenes have no observable on/off state.
		return d.show(ctx, req.Context, LabelScene)

	case settings.TargetGroup:
		if len(s.DeviceIDs) == 0 {
			return d.show(ctx, req.Context, LabelNoDevices)
		}
		agg, _ := d.poller.Aggregate(ctx, d.connect(token), s.DeviceIDs)
		if agg == group.AnyOn {
			return d.show(ctx, req.Context, LabelSomeOn)
		}
		return d.show(ctx, req.Context, LabelAllOff)

	default:
		if s.DeviceID == "" {
			return d.show(ctx, req.Context, LabelNoDevice)
		}
		state, err := d.connect(token).GetSwitchState(ctx, s.DeviceID)
		if err != nil {
			log.Error().Err(err).Str("context", req.Context).Str("device", s.DeviceID).Msg("Refresh failed")
			return d.fail(ctx, req.Context, err)
		}
		switch state {
		case smartthings.SwitchOn:
			return d.show(ctx, req.Context, LabelOn)
		case smartthings.SwitchOff:
			return d.show(ctx, req.Context, LabelOff)
		default:
			return d.show(ctx, req.Context, LabelUnknown)
		}
	}
}

func (d *Dispatcher) fail(ctx context.Context, keyContext string, err error) Outcome {
	out := d.show(ctx, keyContext, LabelErr)
	out.Err = err
	return out
}

func (d *Dispatcher) show(ctx context.Context, keyContext, label string) Outcome {
	if d.labels != nil {
		if err := d.labels.SetTitle(ctx, keyContext, label); err != nil {
			log.Warn().Err(err).Str("context", keyContext).Str("label", label).Msg("Failed to set key title")
		}
	}
	return Outcome{Label: label}
}
