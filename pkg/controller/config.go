package controller

import (
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/Juliapixel/projeto-goodwe/pkg/model"
)

// Configured registers the automation flags and returns a Loop driven by m.
// The interval and the battery protection level are applied once flags are
// parsed.
func Configured(cfg LoopConfig, m model.Model) *Loop {
	interval := lflag.Duration("automation-interval", DefaultInterval, "Time between automation cycles")
	protect := DefaultBatteryProtectPercent
	lflag.JSON(&protect, "battery-protect-percent", protect, "Battery percent at or below which the plug is switched off")

	l := NewLoop(cfg)

	lflag.Do(func() {
		if *interval <= 0 {
			panic(fmt.Sprintf("automation-interval must be positive, got %s", *interval))
		}
		if protect < 0 || protect > 100 {
			panic(fmt.Sprintf("battery-protect-percent must be within 0-100, got %d", protect))
		}
		l.interval = *interval
		l.controller = NewController(m, protect)
	})

	return l
}
