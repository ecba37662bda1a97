package ess

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

const (
	mockStep             = 5 * time.Minute
	mockCapacityKWH      = 10.0
	mockMaxBatteryW      = 5000.0
	mockMinSOC           = 10.0
	mockStartSOC         = 50.0
	mockPeakSolarW       = 3000.0
	mockStandbyBaseW     = 150.0
	mockActiveBaseW      = 900.0
	mockActiveAmplitudeW = 500.0
)

// MockESS is a deterministic synthetic installation used when no portal
// credentials are available. Every day starts at the same state of charge so
// the curves of a past day never change.
type MockESS struct {
	now func() time.Time
}

// NewMock returns a MockESS driven by the wall clock.
func NewMock() *MockESS {
	return &MockESS{now: time.Now}
}

func mockInfo() types.ESSProviderInfo {
	return types.ESSProviderInfo{
		ID:     "mock",
		Name:   "Mock ESS",
		Hidden: true,
	}
}

// Info implements System.
func (m *MockESS) Info() types.ESSProviderInfo {
	return mockInfo()
}

// Now implements System.
func (m *MockESS) Now() time.Time {
	return m.now().In(InstallationZone)
}

// mockHomeW is a standby load overnight and a busy household during the day.
func mockHomeW(hour float64) float64 {
	if hour < 6 || hour >= 23 {
		return mockStandbyBaseW + 60*math.Sin(hour*math.Pi)
	}
	return mockActiveBaseW + mockActiveAmplitudeW*math.Sin((hour-6)/17*math.Pi)
}

// mockSolarW is a bell peaking at 12:30.
func mockSolarW(hour float64) float64 {
	if hour < 6 || hour > 19 {
		return 0
	}
	return mockPeakSolarW * math.Sin((hour-6)/13*math.Pi)
}

// simulate advances the installation from midnight of day in 5 minute steps
// up to and including until, or through the whole day if until is later.
func (m *MockESS) simulate(day, until time.Time) types.DayCurveSet {
	set := types.DayCurveSet{Date: day}
	end := day.AddDate(0, 0, 1)
	soc := mockStartSOC
	stepHours := mockStep.Hours()

	for ts := day; ts.Before(end) && !ts.After(until); ts = ts.Add(mockStep) {
		hour := float64(ts.Hour()) + float64(ts.Minute())/60.0
		homeW := mockHomeW(hour)
		solarW := mockSolarW(hour)

		net := solarW - homeW
		var batteryW float64
		if net > 0 {
			spaceW := (100.0 - soc) / 100.0 * mockCapacityKWH * 1000 / stepHours
			batteryW = -min(net, mockMaxBatteryW, spaceW)
		} else {
			usableW := max(soc-mockMinSOC, 0) / 100.0 * mockCapacityKWH * 1000 / stepHours
			batteryW = min(-net, mockMaxBatteryW, usableW)
		}
		gridW := homeW - solarW - batteryW

		soc += -batteryW * stepHours / 1000 / mockCapacityKWH * 100.0
		soc = min(max(soc, 0), 100)

		set.PV = append(set.PV, types.TimeSeriesPoint{Timestamp: ts, Value: solarW})
		set.Battery = append(set.Battery, types.TimeSeriesPoint{Timestamp: ts, Value: batteryW})
		set.Grid = append(set.Grid, types.TimeSeriesPoint{Timestamp: ts, Value: gridW})
		set.Load = append(set.Load, types.TimeSeriesPoint{Timestamp: ts, Value: homeW})
		set.SOC = append(set.SOC, types.TimeSeriesPoint{Timestamp: ts, Value: soc})
	}
	return set
}

func sumKWH(points []types.TimeSeriesPoint) float64 {
	var kwh float64
	for _, p := range points {
		kwh += p.Value * mockStep.Hours() / 1000
	}
	return kwh
}

// PointSnapshot implements System.
func (m *MockESS) PointSnapshot(ctx context.Context) (types.PointSnapshot, error) {
	now := m.Now()
	today := StartOfDay(now)
	set := m.simulate(today, now)

	var monthKWH float64
	for day := today.AddDate(0, 0, 1-today.Day()); day.Before(today); day = day.AddDate(0, 0, 1) {
		monthKWH += sumKWH(m.simulate(day, day.AddDate(0, 0, 1)).PV)
	}
	dayKWH := sumKWH(set.PV)

	return types.PointSnapshot{
		BatteryPercent:   int(math.Round(lastValue(set.SOC))),
		GenerationW:      lastValue(set.PV),
		DailyEnergyKWh:   dayKWH,
		MonthlyEnergyKWh: monthKWH + dayKWH,
	}, nil
}

// DayCurves implements System. Future days have empty curves.
func (m *MockESS) DayCurves(ctx context.Context, date time.Time) (types.DayCurveSet, error) {
	return m.simulate(calendarDay(date), m.Now()), nil
}

// CurrentLoad implements System.
func (m *MockESS) CurrentLoad(ctx context.Context) (float64, error) {
	now := m.Now()
	return lastValue(m.simulate(StartOfDay(now), now).Load), nil
}

// InverterColumn implements System.
func (m *MockESS) InverterColumn(ctx context.Context, date time.Time, column types.InverterColumn) ([]types.TimeSeriesPoint, error) {
	set := m.simulate(calendarDay(date), m.Now())
	switch column {
	case types.InverterColumnPac:
		return set.PV, nil
	case types.InverterColumnCbattery:
		return set.SOC, nil
	case types.InverterColumnEday:
		points := make([]types.TimeSeriesPoint, len(set.PV))
		var kwh float64
		for i, p := range set.PV {
			kwh += p.Value * mockStep.Hours() / 1000
			points[i] = types.TimeSeriesPoint{Timestamp: p.Timestamp, Value: kwh}
		}
		return points, nil
	}
	return nil, &types.ValidationError{Field: "column", Message: fmt.Sprintf("unknown column %q", column)}
}
