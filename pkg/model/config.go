package model

import (
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured returns the decision model selected by flags. A model file takes
// precedence over the threshold rule.
func Configured() Model {
	file := lflag.String("model-file", "", "Path to a serialized tree ensemble exported by the trainer")
	thresholdW := DefaultThresholdW
	lflag.JSON(&thresholdW, "model-threshold-watts", thresholdW, "Load (W) at or below which the threshold rule sheds the plug")
	fromHour := 0
	lflag.JSON(&fromHour, "model-from-hour", fromHour, "First hour (0-23) the threshold rule is active")
	toHour := 23
	lflag.JSON(&toHour, "model-to-hour", toHour, "Last hour (0-23) the threshold rule is active")

	var m struct{ Model }

	lflag.Do(func() {
		if *file != "" {
			f, err := LoadForestFile(*file)
			if err != nil {
				panic(fmt.Sprintf("failed to load model: %v", err))
			}
			m.Model = f
			return
		}
		if fromHour < 0 || fromHour > 23 || toHour < 0 || toHour > 23 {
			panic(fmt.Sprintf("model hours must be within 0-23, got %d-%d", fromHour, toHour))
		}
		m.Model = Threshold{MaxLoadW: thresholdW, FromHour: fromHour, ToHour: toHour}
	})

	return &m
}
