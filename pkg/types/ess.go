package types

import "time"

// ESSProviderInfo provides metadata about a monitoring backend provider.
type ESSProviderInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Hidden bool   `json:"hidden,omitempty"`
}

// Session is the authenticated state issued by the monitoring backend. The
// token is opaque to us and only the upstream interprets it.
type Session struct {
	Token   string `json:"-"`
	Account string `json:"account"`
	Region  string `json:"region"`
}

// TimeSeriesPoint is a single sample of a power curve.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// DayCurveSet holds the five power curves the backend reports for one
// calendar day. Every series shares the same sampling cadence and any of them
// may be empty when the backend has no data for that day.
type DayCurveSet struct {
	Date time.Time `json:"date"`
	// PV is the photovoltaic generation in W.
	PV []TimeSeriesPoint `json:"pv"`
	// Battery is negative while charging and positive while discharging.
	Battery []TimeSeriesPoint `json:"battery"`
	// Grid is the meter power in W.
	Grid []TimeSeriesPoint `json:"grid"`
	// Load is the household consumption in W.
	Load []TimeSeriesPoint `json:"load"`
	// SOC is the battery state of charge in %.
	SOC []TimeSeriesPoint `json:"soc"`
}

// PointSnapshot is the instantaneous reading of the installation.
type PointSnapshot struct {
	BatteryPercent   int     `json:"batteryPercent"`
	GenerationW      float64 `json:"generationW"`
	DailyEnergyKWh   float64 `json:"dailyEnergyKWh"`
	MonthlyEnergyKWh float64 `json:"monthlyEnergyKWh"`
}

// InverterColumn names a per-inverter data column that can be queried.
type InverterColumn string

const (
	InverterColumnEday     InverterColumn = "Eday"
	InverterColumnPac      InverterColumn = "Pac"
	InverterColumnCbattery InverterColumn = "Cbattery1"
)

// Valid reports whether the column is one the backend understands.
func (c InverterColumn) Valid() bool {
	switch c {
	case InverterColumnEday, InverterColumnPac, InverterColumnCbattery:
		return true
	}
	return false
}
