package dispatch

import (
	"fmt"
	"strings"
)

// Key labels
const (
	// LabelConfigurePAT wraps onto two title lines; the newline is a real one.
	LabelConfigurePAT = "Configure\nPAT"
	LabelNoDevice     = "No device"
	LabelNoDevices    = "No devices"
	LabelNoScene      = "No scene"
	LabelErr          = "Err"

	LabelOn      = "ON"
	LabelOff     = "OFF"
	LabelUnknown = "N/A"

	LabelAllOn  = "ALL ON"
	LabelAllOff = "ALL OFF"
	LabelSomeOn = "SOME ON"

	LabelRunning = "Running..."
	LabelRan     = "Ran"
	LabelScene   = "SCENE"
)

// LevelLabel renders a setLevel label
func LevelLabel(level int) string {
	return fmt.Sprintf("L:%d", level)
}

func upper(command string) string {
	return strings.ToUpper(command)
}
