// Package sttest provides an in-memory stand-in for the SmartThings client.
package sttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dokzlo13/stdeck/internal/smartthings"
)

// Call records one API call made against the fake
type Call struct {
	Op         string
	ID         string
	Capability string
	Command    string
	Args       []any
}

// Fake implements the client operations used by the plugin
type Fake struct {
	mu sync.Mutex

	States        map[string]smartthings.SwitchState
	StateErrors   map[string]error
	CommandErrors map[string]error
	SceneErr      error
	Devices       []smartthings.Device
	Scenes        []smartthings.Scene
	ListErr       error

	calls []Call
}

// New creates an empty fake
func New() *Fake {
	return &Fake{
		States:        make(map[string]smartthings.SwitchState),
		StateErrors:   make(map[string]error),
		CommandErrors: make(map[string]error),
	}
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns a copy of the recorded calls
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsOf returns recorded calls for one operation
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// GetSwitchState returns the configured state, or the configured error
func (f *Fake) GetSwitchState(ctx context.Context, deviceID string) (smartthings.SwitchState, error) {
	f.record(Call{Op: "getSwitchState", ID: deviceID})
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.StateErrors[deviceID]; err != nil {
		return smartthings.SwitchUnknown, err
	}
	return f.States[deviceID], nil
}

// SendCommand records the command and applies switch commands to States
func (f *Fake) SendCommand(ctx context.Context, deviceID, capability, command string, args ...any) error {
	f.record(Call{Op: "sendCommand", ID: deviceID, Capability: capability, Command: command, Args: args})
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.CommandErrors[deviceID]; err != nil {
		return err
	}
	if capability == smartthings.CapabilitySwitch {
		f.States[deviceID] = smartthings.ParseSwitchState(command)
	}
	return nil
}

// ExecuteScene records the execution
func (f *Fake) ExecuteScene(ctx context.Context, sceneID string) error {
	f.record(Call{Op: "executeScene", ID: sceneID})
	return f.SceneErr
}

// ListDevices returns the configured devices
func (f *Fake) ListDevices(ctx context.Context) ([]smartthings.Device, error) {
	f.record(Call{Op: "listDevices"})
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Devices, nil
}

// ListScenes returns the configured scenes
func (f *Fake) ListScenes(ctx context.Context) ([]smartthings.Scene, error) {
	f.record(Call{Op: "listScenes"})
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Scenes, nil
}

// Transport builds a TransportError for tests
func Transport(op string, status int) error {
	return &smartthings.TransportError{Op: op, Status: status, Body: fmt.Sprintf("status %d", status)}
}
