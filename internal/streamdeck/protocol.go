// Package streamdeck speaks the host application's WebSocket protocol.
//
// The host starts the plugin with a port, a registration event and a UUID.
// The plugin dials ws://127.0.0.1:<port>, sends the registration frame and
// then exchanges JSON envelopes for the rest of its life.
package streamdeck

import (
	"encoding/json"
)

// Inbound events
const (
	EventKeyDown                  = "keyDown"
	EventKeyUp                    = "keyUp"
	EventWillAppear               = "willAppear"
	EventWillDisappear            = "willDisappear"
	EventDidReceiveSettings       = "didReceiveSettings"
	EventDidReceiveGlobalSettings = "didReceiveGlobalSettings"
)

// Outbound events
const (
	EventSetTitle          = "setTitle"
	EventSetSettings       = "setSettings"
	EventGetSettings       = "getSettings"
	EventSetGlobalSettings = "setGlobalSettings"
	EventGetGlobalSettings = "getGlobalSettings"
)

// Registration events passed by the host on the command line
const (
	RegisterPlugin            = "registerPlugin"
	RegisterPropertyInspector = "registerPropertyInspector"
)

// Title targets
const (
	TargetBoth     = 0
	TargetHardware = 1
	TargetSoftware = 2
)

// Envelope is one protocol message in either direction
type Envelope struct {
	Event   string          `json:"event"`
	Action  string          `json:"action,omitempty"`
	Context string          `json:"context,omitempty"`
	Device  string          `json:"device,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Coordinates of a key on the device
type Coordinates struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// KeyPayload is the payload of key and settings events
type KeyPayload struct {
	Settings        json.RawMessage `json:"settings"`
	Coordinates     *Coordinates    `json:"coordinates,omitempty"`
	State           int             `json:"state,omitempty"`
	IsInMultiAction bool            `json:"isInMultiAction,omitempty"`
}

// GlobalPayload is the payload of didReceiveGlobalSettings
type GlobalPayload struct {
	Settings json.RawMessage `json:"settings"`
}

// DecodeKey decodes a key or settings event payload
func (e Envelope) DecodeKey() (KeyPayload, error) {
	var p KeyPayload
	if len(e.Payload) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// DecodeGlobal decodes a didReceiveGlobalSettings payload
func (e Envelope) DecodeGlobal() (GlobalPayload, error) {
	var p GlobalPayload
	if len(e.Payload) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

type registration struct {
	Event string `json:"event"`
	UUID  string `json:"uuid"`
}

type titlePayload struct {
	Title  string `json:"title"`
	Target int    `json:"target"`
}

// Info is the -info argument passed by the host at launch
type Info struct {
	Application struct {
		Language string `json:"language"`
		Platform string `json:"platform"`
		Version  string `json:"version"`
	} `json:"application"`
	Plugin struct {
		UUID    string `json:"uuid"`
		Version string `json:"version"`
	} `json:"plugin"`
	Devices []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type int    `json:"type"`
	} `json:"devices"`
}

// ParseInfo decodes the -info argument. An empty string yields a zero Info.
func ParseInfo(raw string) (Info, error) {
	var info Info
	if raw == "" {
		return info, nil
	}
	err := json.Unmarshal([]byte(raw), &info)
	return info, err
}
