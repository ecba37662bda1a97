package ess

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/Juliapixel/projeto-goodwe/pkg/common"
)

// Configured sets up the telemetry provider based on flags and defaults to
// the GoodWe SEMS portal.
func Configured() System {
	provider := lflag.String("ess-provider", "goodwe", "Telemetry provider to use (available: goodwe, mock)")
	account := lflag.String("sems-account", "", "SEMS portal account (email)")
	password := lflag.String("sems-password", "", "SEMS portal password")
	region := lflag.String("sems-region", "eu", "SEMS portal region (eu or us)")
	stationID := lflag.String("sems-station-id", "", "SEMS power station ID")
	inverterSN := lflag.String("sems-inverter-sn", "", "Serial number of the inverter for per-column queries")
	timeout := lflag.Duration("sems-timeout", time.Minute, "Timeout for requests to the SEMS portal")

	var s struct{ System }

	lflag.Do(func() {
		switch *provider {
		case "goodwe":
			if *account == "" || *password == "" {
				panic("sems-account and sems-password are required for the goodwe provider")
			}
			if *stationID == "" {
				panic("sems-station-id is required for the goodwe provider")
			}
			switch *region {
			case "eu", "us":
			default:
				panic(fmt.Sprintf("unknown sems region: %s", *region))
			}
			s.System = NewGoodWe(NewSession(common.HTTPClient(*timeout)), GoodWeConfig{
				Account:    *account,
				Password:   *password,
				Region:     *region,
				StationID:  *stationID,
				InverterSN: *inverterSN,
			})
		case "mock":
			s.System = NewMock()
		default:
			panic(fmt.Sprintf("unknown ess provider: %s", *provider))
		}
	})

	return &s
}
