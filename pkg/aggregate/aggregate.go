// Package aggregate reduces day power curves into consumption and savings
// totals over rolling windows of calendar days.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Juliapixel/projeto-goodwe/pkg/ess"
	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/model"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// DefaultInterval is the sampling cadence of the portal's day curves.
const DefaultInterval = 5 * time.Minute

const (
	// MaxDays is the longest window, in days, a single call may cover.
	MaxDays = 366
	// maxConcurrentFetches bounds the in-flight day curve requests of one call.
	maxConcurrentFetches = 8
)

// DayCurveFetcher returns the power curves of one calendar day.
type DayCurveFetcher interface {
	DayCurves(ctx context.Context, date time.Time) (types.DayCurveSet, error)
}

// Engine computes energy totals from day curves. It holds no state between
// calls and is safe for concurrent use.
type Engine struct {
	fetcher  DayCurveFetcher
	model    model.Model
	interval time.Duration
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the duration each load sample represents.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithClock sets the source of the reference time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine returns an Engine reading curves from fetcher and estimating
// savings with m.
func NewEngine(fetcher DayCurveFetcher, m model.Model, opts ...Option) *Engine {
	e := &Engine{
		fetcher:  fetcher,
		model:    m,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// dayEnergy is the consumption and savings of a single day in kWh.
type dayEnergy struct {
	date           time.Time
	consumptionKWh float64
	savingsKWh     float64
}

func (e *Engine) reduce(set types.DayCurveSet) dayEnergy {
	hours := e.interval.Hours()
	de := dayEnergy{date: set.Date}
	for _, p := range set.Load {
		de.consumptionKWh += p.Value * hours / 1000
		shutdown := e.model.ShouldShutdown(p.Timestamp.In(ess.InstallationZone).Hour(), p.Value)
		de.savingsKWh += model.SavingsWatts(p.Value, shutdown) * hours / 1000
	}
	return de
}

// fetchDays fetches the n days ending at today concurrently, in date order.
// The first failure cancels the remaining fetches and fails the call.
func (e *Engine) fetchDays(ctx context.Context, today time.Time, n int) ([]dayEnergy, error) {
	days := make([]dayEnergy, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i := 0; i < n; i++ {
		date := today.AddDate(0, 0, i-(n-1))
		g.Go(func() error {
			set, err := e.fetcher.DayCurves(gctx, date)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", date.Format(time.DateOnly), err)
			}
			days[i] = e.reduce(set)
			days[i].date = date
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch day curves", slog.Int("days", n), slog.Any("error", err))
		return nil, err
	}
	return days, nil
}

// checkDays treats n below 1 as 1 and rejects windows longer than MaxDays.
func checkDays(n int) (int, error) {
	if n > MaxDays {
		return 0, &types.ValidationError{Field: "days", Message: fmt.Sprintf("must be at most %d, got %d", MaxDays, n)}
	}
	return max(n, 1), nil
}

// ConsumptionOverDays returns the household consumption in kWh over today and
// the n-1 days before it. n below 1 is treated as 1.
func (e *Engine) ConsumptionOverDays(ctx context.Context, n int) (float64, error) {
	n, err := checkDays(n)
	if err != nil {
		return 0, err
	}
	days, err := e.fetchDays(ctx, ess.StartOfDay(e.now()), n)
	if err != nil {
		return 0, err
	}
	var kwh float64
	for _, d := range days {
		kwh += d.consumptionKWh
	}
	return kwh, nil
}

// SavingsOverDays returns the energy in kWh that following the model would
// have saved over today and the n-1 days before it.
func (e *Engine) SavingsOverDays(ctx context.Context, n int) (float64, error) {
	n, err := checkDays(n)
	if err != nil {
		return 0, err
	}
	days, err := e.fetchDays(ctx, ess.StartOfDay(e.now()), n)
	if err != nil {
		return 0, err
	}
	var kwh float64
	for _, d := range days {
		kwh += d.savingsKWh
	}
	return kwh, nil
}

// RollingReport computes one WindowTotals per cutoff from a single batch of
// day fetches. A day counts towards a cutoff when it is at most cutoff days
// before today. Cutoffs must be within 0 and MaxDays-1.
func (e *Engine) RollingReport(ctx context.Context, cutoffs []int) ([]types.WindowTotals, error) {
	return e.rollingReport(ctx, e.now(), cutoffs)
}

func (e *Engine) rollingReport(ctx context.Context, now time.Time, cutoffs []int) ([]types.WindowTotals, error) {
	if len(cutoffs) == 0 {
		return []types.WindowTotals{}, nil
	}
	for _, c := range cutoffs {
		if c < 0 {
			return nil, &types.ValidationError{Field: "cutoffs", Message: fmt.Sprintf("cutoff must not be negative, got %d", c)}
		}
		if c >= MaxDays {
			return nil, &types.ValidationError{Field: "cutoffs", Message: fmt.Sprintf("cutoff must be below %d, got %d", MaxDays, c)}
		}
	}

	days, err := e.fetchDays(ctx, ess.StartOfDay(now), slices.Max(cutoffs)+1)
	if err != nil {
		return nil, err
	}

	windows := make([]types.WindowTotals, len(cutoffs))
	for i, c := range cutoffs {
		windows[i].CutoffDays = c
	}
	for i, d := range days {
		daysAgo := len(days) - 1 - i
		for j, c := range cutoffs {
			if daysAgo <= c {
				windows[j].ConsumptionKWh += d.consumptionKWh
				windows[j].SavingsKWh += d.savingsKWh
			}
		}
	}
	return windows, nil
}

// Report returns the daily, weekly and monthly totals computed in one pass.
// Timestamp is the reference time the windows were computed from.
func (e *Engine) Report(ctx context.Context) (types.EnergyReport, error) {
	now := e.now()
	windows, err := e.rollingReport(ctx, now, []int{0, 6, 29})
	if err != nil {
		return types.EnergyReport{}, err
	}
	totals := func(w types.WindowTotals) types.EnergyTotals {
		return types.EnergyTotals{ConsumptionKWh: w.ConsumptionKWh, SavingsKWh: w.SavingsKWh}
	}
	return types.EnergyReport{
		Timestamp: now,
		Daily:     totals(windows[0]),
		Weekly:    totals(windows[1]),
		Monthly:   totals(windows[2]),
		Windows:   windows,
	}, nil
}

// DailyTotals returns the totals of each of the last n days in date order.
func (e *Engine) DailyTotals(ctx context.Context, n int) ([]types.DayTotals, error) {
	n, err := checkDays(n)
	if err != nil {
		return nil, err
	}
	days, err := e.fetchDays(ctx, ess.StartOfDay(e.now()), n)
	if err != nil {
		return nil, err
	}
	totals := make([]types.DayTotals, len(days))
	for i, d := range days {
		totals[i] = types.DayTotals{
			Date:           d.date,
			Weekday:        d.date.Weekday().String(),
			ConsumptionKWh: d.consumptionKWh,
			SavingsKWh:     d.savingsKWh,
		}
	}
	return totals, nil
}
