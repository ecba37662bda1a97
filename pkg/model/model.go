// Package model holds the standby shedding decision rule and the savings
// estimate derived from it. Everything here is pure and safe to call from many
// goroutines at once.
package model

const (
	// OptimizedLoadFactor is the share of the load assumed to remain after the
	// plug is shed.
	OptimizedLoadFactor = 0.3

	// DefaultThresholdW is the load at or below which a sample was labelled as
	// standby when the classifier was trained.
	DefaultThresholdW = 400.0
)

// Model decides whether the plug should be shed for a given hour of the day
// and household load.
type Model interface {
	ShouldShutdown(hour int, loadW float64) bool
}

// Func adapts a plain function to Model.
type Func func(hour int, loadW float64) bool

// ShouldShutdown implements Model.
func (f Func) ShouldShutdown(hour int, loadW float64) bool {
	return f(hour, loadW)
}

// SavingsWatts returns the power saved by following the decision. When the
// plug is shed the load is assumed to drop to OptimizedLoadFactor of itself.
func SavingsWatts(loadW float64, shutdown bool) float64 {
	if !shutdown {
		return 0
	}
	optimized := loadW * OptimizedLoadFactor
	return loadW - optimized
}

// Threshold sheds whenever the load is at or below MaxLoadW during the hours
// FromHour..ToHour (inclusive, wrapping past midnight when FromHour > ToHour).
type Threshold struct {
	MaxLoadW float64
	FromHour int
	ToHour   int
}

// NewThreshold returns a Threshold active at every hour of the day.
func NewThreshold(maxLoadW float64) Threshold {
	return Threshold{MaxLoadW: maxLoadW, FromHour: 0, ToHour: 23}
}

// ShouldShutdown implements Model.
func (t Threshold) ShouldShutdown(hour int, loadW float64) bool {
	if !t.activeAt(hour) {
		return false
	}
	return loadW <= t.MaxLoadW
}

func (t Threshold) activeAt(hour int) bool {
	if t.FromHour <= t.ToHour {
		return hour >= t.FromHour && hour <= t.ToHour
	}
	return hour >= t.FromHour || hour <= t.ToHour
}
