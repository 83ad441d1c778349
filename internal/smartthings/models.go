package smartthings

// =============================================================================
// SmartThings API Types
// Only the fields the keypad reads are modelled.
// =============================================================================

// Device is an entry of GET /devices
type Device struct {
	DeviceID   string      `json:"deviceId"`
	Name       string      `json:"name"`
	Label      string      `json:"label"`
	LocationID string      `json:"locationId,omitempty"`
	RoomID     string      `json:"roomId,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Component is a device component (usually just "main")
type Component struct {
	ID           string          `json:"id"`
	Label        string          `json:"label,omitempty"`
	Capabilities []CapabilityRef `json:"capabilities,omitempty"`
}

// CapabilityRef names a capability implemented by a component
type CapabilityRef struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// DisplayName returns label, then name, then the device ID.
func (d Device) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	if d.Name != "" {
		return d.Name
	}
	return d.DeviceID
}

// HasCapability reports whether any component lists the capability.
func (d Device) HasCapability(capability string) bool {
	for _, c := range d.Components {
		for _, ref := range c.Capabilities {
			if ref.ID == capability {
				return true
			}
		}
	}
	return false
}

// Scene is an entry of GET /scenes
type Scene struct {
	SceneID    string `json:"sceneId"`
	SceneName  string `json:"sceneName"`
	Name       string `json:"name,omitempty"`
	LocationID string `json:"locationId,omitempty"`
}

// DisplayName returns the scene name, falling back to the ID.
func (s Scene) DisplayName() string {
	if s.SceneName != "" {
		return s.SceneName
	}
	if s.Name != "" {
		return s.Name
	}
	return s.SceneID
}

// Command is a single device command in a commands envelope
type Command struct {
	Component  string `json:"component"`
	Capability string `json:"capability"`
	Command    string `json:"command"`
	Arguments  []any  `json:"arguments"`
}

// CommandRequest is the body of POST /devices/{id}/commands
type CommandRequest struct {
	Commands []Command `json:"commands"`
}

// Capability and command names used by the keypad
const (
	MainComponent = "main"

	CapabilitySwitch      = "switch"
	CapabilitySwitchLevel = "switchLevel"

	AttributeSwitch = "switch"

	CommandOn       = "on"
	CommandOff      = "off"
	CommandSetLevel = "setLevel"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
}
