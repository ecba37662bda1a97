package types

import "time"

// WindowTotals is the consumption and savings of one rolling window. A window
// with CutoffDays c covers today and the c days before it.
type WindowTotals struct {
	CutoffDays     int     `json:"cutoffDays"`
	ConsumptionKWh float64 `json:"consumptionKWh"`
	SavingsKWh     float64 `json:"savingsKWh"`
}

// DayTotals is the consumption and savings of a single calendar day.
type DayTotals struct {
	Date           time.Time `json:"date"`
	Weekday        string    `json:"weekday"`
	ConsumptionKWh float64   `json:"consumptionKWh"`
	SavingsKWh     float64   `json:"savingsKWh"`
}

// EnergyReport is the response type for the summary report endpoint
type EnergyReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Daily     EnergyTotals   `json:"daily"`
	Weekly    EnergyTotals   `json:"weekly"`
	Monthly   EnergyTotals   `json:"monthly"`
	Windows   []WindowTotals `json:"windows,omitempty"`
}

// EnergyTotals is a consumption/savings pair in kWh.
type EnergyTotals struct {
	ConsumptionKWh float64 `json:"consumptionKWh"`
	SavingsKWh     float64 `json:"savingsKWh"`
}
