package relay

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/Wafik13/PFE-sub001/internal/domain"
)

const (
	criticalAlertsTopic = "scada/alerts/critical"
	commandTopicFmt     = "scada/devices/%s/commands"
	qosAtLeastOnce      = 1
)

// Relay bridges the in-process broadcaster to the MQTT broker. Critical
// alerts and device commands travel QoS 1, so they survive a restart of
// whichever side is momentarily down.
type Relay struct {
	client mqtt.Client
}

// Connect dials the broker and blocks until the first connection succeeds.
// Auto-ack is disabled: the critical-alerts consumer acknowledges each
// message itself, after the local broadcast attempt.
func Connect(broker, clientID string) (*Relay, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(false).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetAutoAckDisabled(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &Relay{client: client}, nil
}

// NewWithClient exists for tests and for callers that manage their own
// client options.
func NewWithClient(client mqtt.Client) *Relay { return &Relay{client: client} }

func (r *Relay) Connected() bool { return r.client.IsConnectionOpen() }

func (r *Relay) Disconnect() { r.client.Disconnect(250) }

// PublishCriticalAlert puts a critical alarm onto the durable alerts
// channel so consumers that are not live-connected still receive it.
func (r *Relay) PublishCriticalAlert(a *domain.Alarm) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	token := r.client.Publish(criticalAlertsTopic, qosAtLeastOnce, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish critical alert: %w", token.Error())
	}
	return nil
}

// PublishCommand routes a persisted device command to its per-device topic
// for the external command executor.
func (r *Relay) PublishCommand(c *domain.Command) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf(commandTopicFmt, c.DeviceID)
	token := r.client.Publish(topic, qosAtLeastOnce, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish command for %s: %w", c.DeviceID, token.Error())
	}
	return nil
}

// ConsumeCriticalAlerts subscribes to the critical-alerts channel. Each
// message is acknowledged only after handler returns nil; a failing handler
// leaves the message unacked for redelivery. Payloads that do not decode are
// acked and dropped so a poison message cannot wedge the channel.
func (r *Relay) ConsumeCriticalAlerts(handler func(*domain.Alarm) error) error {
	callback := func(_ mqtt.Client, msg mqtt.Message) {
		var a domain.Alarm
		if err := json.Unmarshal(msg.Payload(), &a); err != nil {
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("discarding undecodable critical alert")
			msg.Ack()
			return
		}
		if err := handler(&a); err != nil {
			log.Error().Err(err).Int64("alarm_id", a.ID).Msg("critical alert handling failed, leaving unacked")
			return
		}
		msg.Ack()
	}
	if token := r.client.Subscribe(criticalAlertsTopic, qosAtLeastOnce, callback); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe critical alerts: %w", token.Error())
	}
	return nil
}
