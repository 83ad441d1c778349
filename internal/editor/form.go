// Package editor binds an editable form to a key's settings record and
// persists it through the host or a local fallback store.
package editor

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/dokzlo13/stdeck/internal/settings"
)

// ErrNoTarget is returned when no device, group member or scene is selected
var ErrNoTarget = errors.New("no target selected")

// Form holds every editable field. Only the fields visible for the selected
// target type end up in the settings record.
type Form struct {
	TargetType settings.TargetType

	Device        string
	DeviceCommand settings.Command
	DeviceLevel   string // raw input

	Scene string

	GroupDevices []string
	GroupCommand settings.Command
	GroupLevel   string // raw input

	PAT string // optional per-key token
}

// Settings serializes the visible fields. An unparsable or zero level
// becomes DefaultLevel.
func (f Form) Settings() settings.KeySettings {
	s := settings.KeySettings{
		Type: f.TargetType,
		PAT:  strings.TrimSpace(f.PAT),
	}

	switch f.TargetType {
	case settings.TargetScene:
		s.SceneID = strings.TrimSpace(f.Scene)
	case settings.TargetGroup:
		s.DeviceIDs = trimIDs(f.GroupDevices)
		s.Command = commandOrToggle(f.GroupCommand)
		if s.Command == settings.CommandSetLevel {
			s.Level = formLevel(f.GroupLevel)
		}
	default:
		s.Type = settings.TargetDevice
		s.DeviceID = strings.TrimSpace(f.Device)
		s.Command = commandOrToggle(f.DeviceCommand)
		if s.Command == settings.CommandSetLevel {
			s.Level = formLevel(f.DeviceLevel)
		}
	}
	return s
}

// Validate checks that a target id is selected
func (f Form) Validate() error {
	if !f.Settings().HasTarget() {
		return ErrNoTarget
	}
	return nil
}

// FormFromSettings loads a settings record into a form. Command and level
// populate both the device and group fields.
func FormFromSettings(s settings.KeySettings) Form {
	f := Form{
		TargetType:    s.Type,
		Device:        s.DeviceID,
		DeviceCommand: s.Command,
		Scene:         s.SceneID,
		GroupDevices:  append([]string(nil), s.DeviceIDs...),
		GroupCommand:  s.Command,
		PAT:           s.PAT,
	}
	if f.TargetType == "" {
		f.TargetType = settings.TargetDevice
	}
	if s.Level != nil {
		level := strconv.Itoa(*s.Level)
		f.DeviceLevel = level
		f.GroupLevel = level
	}
	return f
}

func formLevel(raw string) *int {
	level, err := cast.ToIntE(strings.TrimSpace(raw))
	if err != nil || level == 0 {
		level = settings.DefaultLevel
	}
	return &level
}

func commandOrToggle(c settings.Command) settings.Command {
	if c == "" {
		return settings.CommandToggle
	}
	return c
}

func trimIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
