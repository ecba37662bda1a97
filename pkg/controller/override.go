package controller

import (
	"sync"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// Override holds who has authority over the plug. It starts with economy
// mode on and is never persisted.
type Override struct {
	mu    sync.RWMutex
	state types.OverrideState
}

// NewOverride returns an Override in the startup state.
func NewOverride() *Override {
	return &Override{state: types.DefaultOverrideState()}
}

// State returns a copy of the current state.
func (o *Override) State() types.OverrideState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return copyState(o.state)
}

func copyState(s types.OverrideState) types.OverrideState {
	if s.ManualState != nil {
		on := *s.ManualState
		s.ManualState = &on
	}
	return s
}

// SetManual pins the plug to on or off and disables economy mode.
func (o *Override) SetManual(on bool) types.OverrideState {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = types.OverrideState{EconomyModeEnabled: false, ManualState: &on}
	return copyState(o.state)
}

// SetEconomy toggles economy mode. Enabling it clears any manual state.
func (o *Override) SetEconomy(enabled bool) types.OverrideState {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.EconomyModeEnabled = enabled
	if enabled {
		o.state.ManualState = nil
	}
	return copyState(o.state)
}
