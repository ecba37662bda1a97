package plug

import (
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/Juliapixel/projeto-goodwe/pkg/common"
)

// Configured sets up the plug broker client based on flags.
func Configured() *Client {
	brokerURL := lflag.String("plug-broker-url", "http://127.0.0.1:3000", "Base URL of the smart plug broker")
	deviceID := lflag.RequiredString("plug-device-id", "ID of the plug controlled by the automation")
	// the broker itself waits up to 10s for the plug to answer
	timeout := lflag.Duration("plug-timeout", 30*time.Second, "Timeout for requests to the plug broker")

	c := &Client{}

	lflag.Do(func() {
		*c = *NewClient(common.HTTPClient(*timeout), *brokerURL, *deviceID)
	})

	return c
}
