// Package settings defines the per-key and global settings records exchanged
// with the keypad host.
package settings

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
)

// TargetType selects what a key acts on
type TargetType string

const (
	TargetDevice TargetType = "device"
	TargetGroup  TargetType = "group"
	TargetScene  TargetType = "scene"
)

// Command is the action applied to a device or group target
type Command string

const (
	CommandToggle   Command = "toggle"
	CommandOn       Command = "on"
	CommandOff      Command = "off"
	CommandSetLevel Command = "setLevel"
)

// DefaultLevel is used when a setLevel key carries no usable level
const DefaultLevel = 100

// KeySettings is the settings record of one key.
// Exactly one of DeviceID, DeviceIDs, SceneID is meaningful, selected by Type.
type KeySettings struct {
	Type      TargetType
	DeviceID  string
	DeviceIDs []string
	SceneID   string
	Command   Command
	Level     *int
	PAT       string // per-key token, overrides the global one
}

// GlobalSettings is the plugin-wide settings record
type GlobalSettings struct {
	PAT string `json:"smartthings_pat,omitempty"`
}

// wireSettings accepts both the canonical snake_case keys and the legacy
// camelCase keys written by older property inspectors.
type wireSettings struct {
	Type            string   `json:"type,omitempty"`
	DeviceID        string   `json:"device_id,omitempty"`
	LegacyDeviceID  string   `json:"deviceId,omitempty"`
	DeviceIDs       []string `json:"group_device_ids,omitempty"`
	LegacyDeviceIDs []string `json:"deviceIds,omitempty"`
	SceneID         string   `json:"scene_id,omitempty"`
	LegacySceneID   string   `json:"sceneId,omitempty"`
	Command         string   `json:"command,omitempty"`
	Level           any      `json:"level,omitempty"`
	PAT             string   `json:"smartthings_pat,omitempty"`
}

// UnmarshalJSON decodes a host settings blob
func (s *KeySettings) UnmarshalJSON(data []byte) error {
	var w wireSettings
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*s = KeySettings{
		DeviceID:  firstNonEmpty(w.DeviceID, w.LegacyDeviceID),
		DeviceIDs: compactIDs(w.DeviceIDs, w.LegacyDeviceIDs),
		SceneID:   firstNonEmpty(w.SceneID, w.LegacySceneID),
		Command:   Command(strings.TrimSpace(w.Command)),
		Level:     parseLevel(w.Level),
		PAT:       strings.TrimSpace(w.PAT),
	}

	switch TargetType(strings.ToLower(strings.TrimSpace(w.Type))) {
	case TargetDevice:
		s.Type = TargetDevice
	case TargetGroup:
		s.Type = TargetGroup
	case TargetScene:
		s.Type = TargetScene
	default:
		s.Type = s.inferType()
	}

	if s.Command == "" {
		s.Command = CommandToggle
	}
	return nil
}

// MarshalJSON encodes the canonical form: only the target field selected by
// Type is written, and command and level only for device and group keys.
func (s KeySettings) MarshalJSON() ([]byte, error) {
	w := wireSettings{
		Type: string(s.Type),
		PAT:  s.PAT,
	}
	switch s.Type {
	case TargetScene:
		w.SceneID = s.SceneID
	case TargetGroup:
		w.DeviceIDs = s.DeviceIDs
		w.Command = string(s.Command)
	default:
		w.Type = string(TargetDevice)
		w.DeviceID = s.DeviceID
		w.Command = string(s.Command)
	}
	if s.Type != TargetScene && s.Level != nil {
		w.Level = *s.Level
	}
	return json.Marshal(w)
}

// Parse decodes a raw host settings payload. An empty payload yields a
// device key with no target.
func Parse(raw json.RawMessage) (KeySettings, error) {
	var s KeySettings
	if len(raw) == 0 || string(raw) == "null" {
		return KeySettings{Type: TargetDevice, Command: CommandToggle}, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return KeySettings{}, err
	}
	return s, nil
}

// ParseGlobal decodes a raw global settings payload
func ParseGlobal(raw json.RawMessage) (GlobalSettings, error) {
	var g GlobalSettings
	if len(raw) == 0 || string(raw) == "null" {
		return g, nil
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return GlobalSettings{}, err
	}
	g.PAT = strings.TrimSpace(g.PAT)
	return g, nil
}

// Credential returns the token a key should use: its own, else the global one.
func Credential(key KeySettings, global GlobalSettings) string {
	if key.PAT != "" {
		return key.PAT
	}
	return global.PAT
}

// HasTarget reports whether the target id selected by Type is present
func (s KeySettings) HasTarget() bool {
	switch s.Type {
	case TargetScene:
		return s.SceneID != ""
	case TargetGroup:
		return len(s.DeviceIDs) > 0
	default:
		return s.DeviceID != ""
	}
}

// EffectiveLevel returns the level for setLevel; absent or non-positive
// levels fall back to DefaultLevel and values above 100 are clamped.
func (s KeySettings) EffectiveLevel() int {
	if s.Level == nil || *s.Level <= 0 {
		return DefaultLevel
	}
	if *s.Level > 100 {
		return 100
	}
	return *s.Level
}

func (s KeySettings) inferType() TargetType {
	switch {
	case s.SceneID != "" && s.DeviceID == "" && len(s.DeviceIDs) == 0:
		return TargetScene
	case s.DeviceID == "" && len(s.DeviceIDs) > 0:
		return TargetGroup
	default:
		return TargetDevice
	}
}

// parseLevel accepts numbers and numeric strings, as forms write either.
func parseLevel(v any) *int {
	if v == nil {
		return nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		if s, ok := v.(string); ok {
			f, ferr := cast.ToFloat64E(strings.TrimSpace(s))
			if ferr != nil {
				return nil
			}
			n = int(f)
		} else {
			return nil
		}
	}
	return &n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func compactIDs(lists ...[]string) []string {
	for _, list := range lists {
		var out []string
		for _, id := range list {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
