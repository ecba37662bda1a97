// Package mqtt publishes automation actions to an MQTT broker so home
// automation dashboards can follow the plug.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// DefaultTopic receives every action as JSON.
const DefaultTopic = "goodwe/tomada/action"

// Publisher sends actions to a broker. A Publisher without a client is
// disabled and drops everything.
type Publisher struct {
	client  paho.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewPublisher returns a Publisher using an already created client.
func NewPublisher(client paho.Client, topic string) *Publisher {
	return &Publisher{
		client:  client,
		topic:   topic,
		timeout: 10 * time.Second,
	}
}

// Configured sets up the publisher based on flags. It stays disabled unless
// a broker is given.
func Configured() *Publisher {
	broker := lflag.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883), empty disables publishing")
	topic := lflag.String("mqtt-topic", DefaultTopic, "MQTT topic receiving automation actions")
	clientID := lflag.String("mqtt-client-id", "projeto-goodwe", "MQTT client ID")
	qos := 0
	lflag.JSON(&qos, "mqtt-qos", qos, "MQTT QoS for published actions (0, 1 or 2)")

	p := &Publisher{}

	lflag.Do(func() {
		if *broker == "" {
			return
		}
		if qos < 0 || qos > 2 {
			panic(fmt.Sprintf("mqtt-qos must be 0, 1 or 2, got %d", qos))
		}
		client := paho.NewClient(
			paho.NewClientOptions().
				AddBroker(*broker).
				SetClientID(*clientID).
				SetAutoReconnect(true).
				SetConnectRetry(true),
		)
		*p = *NewPublisher(client, *topic)
		p.qos = byte(qos)
	})

	return p
}

// Enabled reports whether a broker was configured.
func (p *Publisher) Enabled() bool {
	return p.client != nil
}

// StateTopic receives the retained desired plug state.
func (p *Publisher) StateTopic() string {
	return p.topic + "/state"
}

// Connect connects to the broker. With connect retry enabled the client keeps
// trying in the background so an unreachable broker is only logged.
func (p *Publisher) Connect(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	token := p.client.Connect()
	if err := p.wait(ctx, token); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "connected to mqtt broker", slog.String("topic", p.topic))
	return nil
}

func (p *Publisher) wait(ctx context.Context, token paho.Token) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", p.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAction publishes the action as JSON and, when the plug was
// actuated, the desired state as a retained "on" or "off".
func (p *Publisher) PublishAction(ctx context.Context, action types.Action) error {
	if !p.Enabled() {
		return nil
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	if err := p.wait(ctx, p.client.Publish(p.topic, p.qos, false, payload)); err != nil {
		return fmt.Errorf("failed to publish action: %w", err)
	}
	if action.Skipped {
		return nil
	}
	if err := p.wait(ctx, p.client.Publish(p.StateTopic(), p.qos, true, types.OnOff(action.DesiredOn))); err != nil {
		return fmt.Errorf("failed to publish plug state: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.Enabled() && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
