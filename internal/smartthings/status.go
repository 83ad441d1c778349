package smartthings

import (
	"bytes"
	"encoding/json"
)

// SwitchState is the observed value of a device's switch capability.
type SwitchState int

const (
	SwitchUnknown SwitchState = iota
	SwitchOn
	SwitchOff
)

func (s SwitchState) String() string {
	switch s {
	case SwitchOn:
		return "on"
	case SwitchOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseSwitchState maps the API's "on"/"off" strings; anything else is unknown.
func ParseSwitchState(v string) SwitchState {
	switch v {
	case "on":
		return SwitchOn
	case "off":
		return SwitchOff
	default:
		return SwitchUnknown
	}
}

// Status is the body of GET /devices/{id}/status.
//
// Components are kept raw and walked lazily so that a malformed branch only
// hides the attributes under it instead of failing the whole document.
type Status struct {
	Components map[string]json.RawMessage `json:"components"`
}

// Value is a raw attribute value.
type Value struct {
	raw json.RawMessage
}

// AsString returns the value if it is a JSON string.
func (v Value) AsString() (string, bool) {
	var s string
	if err := json.Unmarshal(v.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ParseStatus decodes a status document. ok is false when the body is not a
// JSON object.
func ParseStatus(body []byte) (*Status, bool) {
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, false
	}
	return &st, true
}

// Attribute walks component -> capability -> attribute -> value.
// Capabilities are looked up under a "capabilities" object first and then
// directly on the component. ok is false if any step is absent, not an
// object, or the value is null.
func (s *Status) Attribute(component, capability, attribute string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	comp, ok := object(s.Components[component])
	if !ok {
		return Value{}, false
	}

	capRaw, found := comp[capability]
	if nested, ok := object(comp["capabilities"]); ok {
		if raw, exists := nested[capability]; exists {
			capRaw, found = raw, true
		}
	}
	if !found {
		return Value{}, false
	}

	capObj, ok := object(capRaw)
	if !ok {
		return Value{}, false
	}
	attr, ok := object(capObj[attribute])
	if !ok {
		return Value{}, false
	}
	raw, ok := attr["value"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Value{}, false
	}
	return Value{raw: raw}, true
}

// Switch returns the main component's switch state.
func (s *Status) Switch() SwitchState {
	v, ok := s.Attribute(MainComponent, CapabilitySwitch, AttributeSwitch)
	if !ok {
		return SwitchUnknown
	}
	str, ok := v.AsString()
	if !ok {
		return SwitchUnknown
	}
	return ParseSwitchState(str)
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
