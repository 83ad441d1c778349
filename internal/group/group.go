// Package group polls and commands a set of devices one at a time.
//
// Calls are strictly sequential to avoid bursts against the cloud API's rate
// limiter. An optional limiter paces consecutive calls further.
package group

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/stdeck/internal/smartthings"
)

// API is the subset of the cloud client used for groups
type API interface {
	GetSwitchState(ctx context.Context, deviceID string) (smartthings.SwitchState, error)
	SendCommand(ctx context.Context, deviceID, capability, command string, args ...any) error
}

// Aggregate is the group-level on/off decision
type Aggregate int

const (
	AllOff Aggregate = iota
	AnyOn
)

func (a Aggregate) String() string {
	if a == AnyOn {
		return "any_on"
	}
	return "all_off"
}

// DeviceState is the switch state observed for one device during a poll
type DeviceState struct {
	DeviceID string
	Switch   smartthings.SwitchState
}

// Fold reduces per-device states: AnyOn if at least one device is on.
// Unknown counts as not on.
func Fold(states []DeviceState) Aggregate {
	for _, s := range states {
		if s.Switch == smartthings.SwitchOn {
			return AnyOn
		}
	}
	return AllOff
}

// Poller runs per-device calls sequentially
type Poller struct {
	limiter *rate.Limiter
}

// NewPoller creates a poller. rps <= 0 disables pacing.
func NewPoller(rps float64) *Poller {
	p := &Poller{}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return p
}

func (p *Poller) wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// States fetches each device's switch state in order. A failed fetch is
// recorded as unknown and never aborts the batch.
func (p *Poller) States(ctx context.Context, api API, deviceIDs []string) []DeviceState {
	out := make([]DeviceState, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		state := smartthings.SwitchUnknown
		if err := p.wait(ctx); err != nil {
			log.Debug().Err(err).Str("device", id).Msg("Pacing wait aborted, state unknown")
		} else if s, err := api.GetSwitchState(ctx, id); err != nil {
			log.Debug().Err(err).Str("device", id).Msg("Failed to read switch state, treating as unknown")
		} else {
			state = s
		}
		out = append(out, DeviceState{DeviceID: id, Switch: state})
	}
	return out
}

// Aggregate polls the devices and folds their states
func (p *Poller) Aggregate(ctx context.Context, api API, deviceIDs []string) (Aggregate, []DeviceState) {
	states := p.States(ctx, api, deviceIDs)
	return Fold(states), states
}

// SendUniform sends the same command to every device in order.
// The first failure is returned and the remaining devices are skipped.
func (p *Poller) SendUniform(ctx context.Context, api API, deviceIDs []string, capability, command string, args ...any) error {
	for _, id := range deviceIDs {
		if err := p.wait(ctx); err != nil {
			return err
		}
		if err := api.SendCommand(ctx, id, capability, command, args...); err != nil {
			return err
		}
	}
	return nil
}
