package ess

import (
	"context"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// InstallationZone is the fixed UTC offset of the monitored installation. All
// calendar days and hours are evaluated in it regardless of time.Local.
var InstallationZone = time.FixedZone("UTC+2", 2*60*60)

// System defines the interface for reading telemetry from the monitored
// solar and battery installation.
type System interface {
	// Info describes the provider backing this system.
	Info() types.ESSProviderInfo

	// PointSnapshot returns the instantaneous battery and generation readings.
	PointSnapshot(ctx context.Context) (types.PointSnapshot, error)

	// DayCurves returns the power curves of the calendar day of date, taken
	// from the date fields in its own location.
	DayCurves(ctx context.Context, date time.Time) (types.DayCurveSet, error)

	// CurrentLoad returns the latest household load sample of today in W.
	CurrentLoad(ctx context.Context) (float64, error)

	// InverterColumn returns one per-inverter data column for the calendar
	// day of date.
	InverterColumn(ctx context.Context, date time.Time, column types.InverterColumn) ([]types.TimeSeriesPoint, error)

	// Now returns the wall clock in InstallationZone.
	Now() time.Time
}

// Today returns midnight of the current day of sys in InstallationZone.
func Today(sys System) time.Time {
	return StartOfDay(sys.Now())
}

// StartOfDay returns midnight of the calendar day of t in InstallationZone.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(InstallationZone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, InstallationZone)
}

// calendarDay returns midnight in InstallationZone of the year, month and day
// fields of date as written in its own location.
func calendarDay(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, InstallationZone)
}
