package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/model"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// DefaultBatteryProtectPercent is the state of charge at or below which the
// plug is always switched off.
const DefaultBatteryProtectPercent = 15

// Inputs are the readings one decision is based on.
type Inputs struct {
	BatteryPercent int
	LoadW          float64
	Hour           int
}

// Decision represents the result of the decision logic.
type Decision struct {
	Action      types.Action
	Explanation string
}

// Controller handles the decision-making logic for the plug. It performs no
// I/O.
type Controller struct {
	model                 model.Model
	batteryProtectPercent int
}

// NewController creates a new Controller.
func NewController(m model.Model, batteryProtectPercent int) *Controller {
	return &Controller{
		model:                 m,
		batteryProtectPercent: batteryProtectPercent,
	}
}

// Overridden returns a skip decision when the override state leaves nothing
// for the automation to do. A manual state wins over everything and with
// economy mode off there is nothing to enforce.
func (c *Controller) Overridden(o types.OverrideState) (Decision, bool) {
	if o.ManualActive() {
		return Decision{
			Action: types.Action{
				Reason:      types.ActionReasonManualOverride,
				Description: fmt.Sprintf("plug manually set %s", types.OnOff(*o.ManualState)),
				DesiredOn:   *o.ManualState,
				Skipped:     true,
			},
			Explanation: "manual override active",
		}, true
	}
	if !o.EconomyModeEnabled {
		return Decision{
			Action: types.Action{
				Reason:      types.ActionReasonEconomyDisabled,
				Description: "economy mode disabled",
				Skipped:     true,
			},
			Explanation: "economy mode disabled",
		}, true
	}
	return Decision{}, false
}

// BatteryProtected reports whether the battery is low enough that the plug
// must be off whatever the load.
func (c *Controller) BatteryProtected(batteryPercent int) bool {
	return batteryPercent <= c.batteryProtectPercent
}

// Decide determines the plug state for the given readings. Low battery always
// switches the plug off without consulting the model, otherwise the model
// decides whether the load is standby that can be shed.
func (c *Controller) Decide(ctx context.Context, in Inputs) Decision {
	action := types.Action{
		BatteryPercent: in.BatteryPercent,
		LoadW:          in.LoadW,
		Hour:           in.Hour,
	}

	var d Decision
	if c.BatteryProtected(in.BatteryPercent) {
		action.Reason = types.ActionReasonBatteryProtection
		action.DesiredOn = false
		action.Description = fmt.Sprintf("battery at %d%% is at or below %d%%", in.BatteryPercent, c.batteryProtectPercent)
		d.Explanation = "battery protection"
	} else {
		action.ModelShutdown = c.model.ShouldShutdown(in.Hour, in.LoadW)
		if action.ModelShutdown {
			action.Reason = types.ActionReasonStandbyShedding
			action.DesiredOn = false
			action.Description = fmt.Sprintf("load of %.0fW at %02d:00 looks like standby", in.LoadW, in.Hour)
			d.Explanation = "standby shedding"
		} else {
			action.Reason = types.ActionReasonLoadActive
			action.DesiredOn = true
			action.Description = fmt.Sprintf("load of %.0fW at %02d:00 is in use", in.LoadW, in.Hour)
			d.Explanation = "load active"
		}
	}
	d.Action = action

	log.Ctx(ctx).DebugContext(ctx, "controller decided",
		slog.Int("batteryPercent", in.BatteryPercent),
		slog.Float64("loadW", in.LoadW),
		slog.Int("hour", in.Hour),
		slog.Bool("modelShutdown", action.ModelShutdown),
		slog.Bool("desiredOn", action.DesiredOn),
		slog.String("reason", string(action.Reason)),
	)
	return d
}
