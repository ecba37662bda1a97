package types

import "time"

// ActionReason represents why the automation chose a plug state.
type ActionReason string

const (
	ActionReasonManualOverride    ActionReason = "manualOverride"
	ActionReasonEconomyDisabled   ActionReason = "economyDisabled"
	ActionReasonBatteryProtection ActionReason = "batteryProtection"
	ActionReasonStandbyShedding   ActionReason = "standbyShedding"
	ActionReasonLoadActive        ActionReason = "loadActive"
)

// Action represents one cycle of the automation loop.
type Action struct {
	Timestamp      time.Time    `json:"timestamp"`
	Reason         ActionReason `json:"reason"`
	Description    string       `json:"description"`
	BatteryPercent int          `json:"batteryPercent"`
	LoadW          float64      `json:"loadW"`
	Hour           int          `json:"hour"`
	ModelShutdown  bool         `json:"modelShutdown"`
	// DesiredOn is the plug state the automation asked for.
	DesiredOn bool `json:"desiredOn"`
	// Skipped is true when no actuation was attempted this cycle.
	Skipped    bool   `json:"skipped,omitempty"`
	PlugStatus int    `json:"plugStatus,omitempty"`
	Success    bool   `json:"success"`
	Failed     bool   `json:"failed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PlugQuery is the payload the plug broker returns for a state query.
type PlugQuery struct {
	State    *string    `json:"state"`
	LastSeen *time.Time `json:"lastseen"`
}

// PlugOutcome is the payload the plug broker returns for a state change.
type PlugOutcome struct {
	Present bool `json:"present"`
	Success bool `json:"success"`
}

// PlugQueryResult carries the decoded query payload together with the raw
// body and status so the web layer can pass them through untouched.
type PlugQueryResult struct {
	Payload    PlugQuery
	Raw        []byte
	StatusCode int
}

// PlugSetResult carries the decoded outcome payload, raw body and status.
type PlugSetResult struct {
	Payload    PlugOutcome
	Raw        []byte
	StatusCode int
}

// OK reports whether the broker accepted the state change.
func (r PlugSetResult) OK() bool {
	return r.Payload.Success && r.StatusCode >= 200 && r.StatusCode <= 299
}

// PlugInfo is one plug known to the broker.
type PlugInfo struct {
	ID       string    `json:"id"`
	State    string    `json:"state"`
	LastSeen time.Time `json:"last_seen"`
}
