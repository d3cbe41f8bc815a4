package alarm

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Wafik13/PFE-sub001/internal/domain"
	"github.com/Wafik13/PFE-sub001/internal/ws"
)

// Threshold is one rule of the evaluation policy: a channel value strictly
// above Limit raises an alarm of the given severity.
type Threshold struct {
	Channel  string
	Limit    float64
	Severity string
}

// DefaultThresholds is the fixed policy table for the simulated plant.
var DefaultThresholds = []Threshold{
	{Channel: "temperature", Limit: 28, Severity: domain.SeverityHigh},
	{Channel: "pressure", Limit: 1080, Severity: domain.SeverityHigh},
	{Channel: "vibration", Limit: 9, Severity: domain.SeverityCritical},
}

type Store interface {
	InsertAlarm(a *domain.Alarm) error
}

type Broadcaster interface {
	BroadcastAll(eventType string, payload any)
}

type CriticalPublisher interface {
	PublishCriticalAlert(a *domain.Alarm) error
}

// Notifier delivers critical alarms to an out-of-band channel (SNS when
// cloud services are enabled). May be nil.
type Notifier interface {
	NotifyCriticalAlarm(a *domain.Alarm) error
}

// Evaluator applies the threshold policy to each fresh reading. It is
// stateless: every breaching reading produces a new alarm row, with no
// storm suppression.
type Evaluator struct {
	store      Store
	hub        Broadcaster
	relay      CriticalPublisher
	notifier   Notifier
	thresholds []Threshold
}

func NewEvaluator(store Store, hub Broadcaster, relay CriticalPublisher, notifier Notifier) *Evaluator {
	return &Evaluator{
		store:      store,
		hub:        hub,
		relay:      relay,
		notifier:   notifier,
		thresholds: DefaultThresholds,
	}
}

// WithThresholds overrides the policy table.
func (e *Evaluator) WithThresholds(ts []Threshold) *Evaluator {
	e.thresholds = ts
	return e
}

// Evaluate checks one reading against the policy table. Alarm creation is
// the sole durable side effect; a failed insert produces no broadcast and
// no relay publish for that breach, and other channels are still checked.
func (e *Evaluator) Evaluate(r *domain.Reading) {
	metrics := r.Metrics()
	for _, th := range e.thresholds {
		value, ok := metrics[th.Channel]
		if !ok || value <= th.Limit {
			continue
		}

		a := &domain.Alarm{
			DeviceID:  r.DeviceID,
			AlarmType: th.Channel,
			Severity:  th.Severity,
			Message:   fmt.Sprintf("%s %s %.2f exceeds threshold %.2f", r.DeviceID, th.Channel, value, th.Limit),
			Value:     value,
			Threshold: th.Limit,
		}
		if err := e.store.InsertAlarm(a); err != nil {
			log.Error().Err(err).Str("device_id", r.DeviceID).Str("channel", th.Channel).Msg("alarm insert failed")
			continue
		}

		e.hub.BroadcastAll(ws.EventNewAlarm, a)

		if a.Severity != domain.SeverityCritical {
			continue
		}
		if e.relay != nil {
			if err := e.relay.PublishCriticalAlert(a); err != nil {
				// Alarm row and local broadcast stand; durable redelivery
				// degrades until the relay reconnects.
				log.Error().Err(err).Int64("alarm_id", a.ID).Msg("relay publish failed")
			}
		}
		if e.notifier != nil {
			if err := e.notifier.NotifyCriticalAlarm(a); err != nil {
				log.Error().Err(err).Int64("alarm_id", a.ID).Msg("critical alarm notification failed")
			}
		}
	}
}
