package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/metrics"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// DefaultInterval is the time between automation cycles.
const DefaultInterval = 10 * time.Second

// State is the phase the automation loop is in.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateActuating  State = "actuating"
)

// Telemetry is the subset of the monitoring client the loop reads.
type Telemetry interface {
	PointSnapshot(ctx context.Context) (types.PointSnapshot, error)
	CurrentLoad(ctx context.Context) (float64, error)
	Now() time.Time
}

// Actuator switches the plug.
type Actuator interface {
	SetState(ctx context.Context, on bool) (types.PlugSetResult, error)
}

// Recorder persists actions.
type Recorder interface {
	InsertAction(ctx context.Context, action types.Action) error
}

// History returns the most recently recorded action.
type History interface {
	GetLatestAction(ctx context.Context) (*types.Action, error)
}

// Publisher broadcasts actions.
type Publisher interface {
	PublishAction(ctx context.Context, action types.Action) error
}

// Status is a snapshot of the loop for reporting.
type Status struct {
	State      State               `json:"state"`
	Override   types.OverrideState `json:"override"`
	Interval   string              `json:"interval"`
	LastAction *types.Action       `json:"lastAction,omitempty"`
}

// Loop periodically decides and applies the plug state.
type Loop struct {
	controller *Controller
	override   *Override
	telemetry  Telemetry
	plug       Actuator
	recorder   Recorder
	publisher  Publisher
	interval   time.Duration

	mu    sync.RWMutex
	state State
	last  *types.Action
}

// LoopConfig holds the collaborators of a Loop. Recorder and Publisher are
// optional.
type LoopConfig struct {
	Controller *Controller
	Override   *Override
	Telemetry  Telemetry
	Plug       Actuator
	Recorder   Recorder
	Publisher  Publisher
	Interval   time.Duration
}

// NewLoop creates a Loop in the idle state.
func NewLoop(cfg LoopConfig) *Loop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		controller: cfg.Controller,
		override:   cfg.Override,
		telemetry:  cfg.Telemetry,
		plug:       cfg.Plug,
		recorder:   cfg.Recorder,
		publisher:  cfg.Publisher,
		interval:   interval,
		state:      StateIdle,
	}
}

// Status returns the current state, override and last action.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Status{
		State:    l.state,
		Override: l.override.State(),
		Interval: l.interval.String(),
	}
	if l.last != nil {
		a := *l.last
		st.LastAction = &a
	}
	return st
}

// Restore seeds the last action from h so Status survives a restart. It does
// nothing once a cycle has already run.
func (l *Loop) Restore(ctx context.Context, h History) error {
	a, err := h.GetLatestAction(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest action: %w", err)
	}
	if a == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		l.last = a
		log.Ctx(ctx).DebugContext(ctx, "restored last action", slog.Time("timestamp", a.Timestamp), slog.String("reason", string(a.Reason)))
	}
	return nil
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run waits one interval before each cycle until ctx is cancelled. A failed
// cycle is logged and never stops the loop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Ctx(ctx).InfoContext(ctx, "automation loop started", slog.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "automation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.cycle(ctx)
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "automation cycle panicked", slog.Any("panic", r))
			l.setState(StateIdle)
		}
	}()
	if _, err := l.RunOnce(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "automation cycle failed", slog.Any("error", err))
	}
}

// RunOnce performs a single automation cycle and returns the recorded action.
func (l *Loop) RunOnce(ctx context.Context) (types.Action, error) {
	l.setState(StateEvaluating)
	defer l.setState(StateIdle)

	now := l.telemetry.Now()

	if d, skip := l.controller.Overridden(l.override.State()); skip {
		d.Action.Timestamp = now
		d.Action.Hour = now.Hour()
		log.Ctx(ctx).DebugContext(ctx, "automation skipped", slog.String("reason", string(d.Action.Reason)))
		l.finish(ctx, d.Action)
		return d.Action, nil
	}

	action, err := l.evaluate(ctx, now)
	if err != nil {
		action.Failed = true
		action.Error = err.Error()
		l.finish(ctx, action)
		return action, err
	}

	l.setState(StateActuating)
	res, err := l.plug.SetState(ctx, action.DesiredOn)
	action.PlugStatus = res.StatusCode
	action.Success = err == nil && res.OK()
	if err != nil {
		action.Failed = true
		action.Error = err.Error()
	}

	if action.Success {
		log.Ctx(ctx).InfoContext(ctx, fmt.Sprintf("plug switched %s", types.OnOff(action.DesiredOn)),
			slog.String("reason", string(action.Reason)),
			slog.Int("batteryPercent", action.BatteryPercent),
			slog.Float64("loadW", action.LoadW),
		)
	} else {
		log.Ctx(ctx).WarnContext(ctx, fmt.Sprintf("plug was not switched %s", types.OnOff(action.DesiredOn)),
			slog.String("reason", string(action.Reason)),
			slog.Int("status", res.StatusCode),
			slog.Bool("present", res.Payload.Present),
			slog.Any("error", err),
		)
	}

	l.finish(ctx, action)
	if err != nil {
		return action, fmt.Errorf("failed to switch plug: %w", err)
	}
	return action, nil
}

func (l *Loop) evaluate(ctx context.Context, now time.Time) (types.Action, error) {
	action := types.Action{Timestamp: now, Hour: now.Hour()}

	snap, err := l.telemetry.PointSnapshot(ctx)
	if err != nil {
		return action, fmt.Errorf("failed to read battery: %w", err)
	}
	action.BatteryPercent = snap.BatteryPercent
	metrics.BatteryPercent.Set(float64(snap.BatteryPercent))

	in := Inputs{BatteryPercent: snap.BatteryPercent, Hour: now.Hour()}
	// a low battery switches the plug off without waiting on the load
	if !l.controller.BatteryProtected(snap.BatteryPercent) {
		load, err := l.telemetry.CurrentLoad(ctx)
		if err != nil {
			return action, fmt.Errorf("failed to read load: %w", err)
		}
		action.LoadW = load
		metrics.LoadWatts.Set(load)
		in.LoadW = load
	}

	d := l.controller.Decide(ctx, in)
	d.Action.Timestamp = now
	return d.Action, nil
}

// finish stores, publishes and counts the action. Failures here are logged
// only.
func (l *Loop) finish(ctx context.Context, action types.Action) {
	result := "ok"
	switch {
	case action.Skipped:
		result = "skipped"
	case action.Failed || !action.Success:
		result = "error"
	}
	metrics.AutomationCycles.WithLabelValues(string(action.Reason), result).Inc()
	if !action.Skipped && !action.Failed {
		desired := 0.0
		if action.DesiredOn {
			desired = 1
		}
		metrics.PlugDesiredOn.Set(desired)
	}

	l.mu.Lock()
	l.last = &action
	l.mu.Unlock()

	if l.recorder != nil {
		if err := l.recorder.InsertAction(ctx, action); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to record action", slog.Any("error", err))
		}
	}
	if l.publisher != nil {
		if err := l.publisher.PublishAction(ctx, action); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish action", slog.Any("error", err))
		}
	}
}
