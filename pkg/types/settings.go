package types

import (
	"fmt"
	"strings"
)

// OverrideState is who currently has authority over the plug. A manual state
// and economy mode are mutually exclusive.
type OverrideState struct {
	EconomyModeEnabled bool  `json:"economyModeEnabled"`
	ManualState        *bool `json:"manualState"`
}

// DefaultOverrideState is the state at process start.
func DefaultOverrideState() OverrideState {
	return OverrideState{EconomyModeEnabled: true}
}

// ManualActive reports whether a human-set plug state is in effect.
func (o OverrideState) ManualActive() bool {
	return !o.EconomyModeEnabled && o.ManualState != nil
}

// ParseOnOff parses a control endpoint value which must be "on" or "off" in
// any case.
func ParseOnOff(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, &ValidationError{Field: "state", Message: fmt.Sprintf("must be on or off, got %q", v)}
}

// OnOff formats a boolean the way the control endpoints expect it.
func OnOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
