package alarm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wafik13/PFE-sub001/internal/domain"
	"github.com/Wafik13/PFE-sub001/internal/ws"
)

type fakeStore struct {
	inserted []*domain.Alarm
	err      error
	nextID   int64
}

func (f *fakeStore) InsertAlarm(a *domain.Alarm) error {
	if f.err != nil {
		return f.err
	}
	f.nextID++
	a.ID = f.nextID
	a.CreatedAt = time.Now().UTC()
	f.inserted = append(f.inserted, a)
	return nil
}

type fakeBroadcaster struct {
	events []string
	loads  []any
}

func (f *fakeBroadcaster) BroadcastAll(eventType string, payload any) {
	f.events = append(f.events, eventType)
	f.loads = append(f.loads, payload)
}

type fakeRelay struct {
	published []*domain.Alarm
	err       error
}

func (f *fakeRelay) PublishCriticalAlert(a *domain.Alarm) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, a)
	return nil
}

type fakeNotifier struct{ notified []*domain.Alarm }

func (f *fakeNotifier) NotifyCriticalAlarm(a *domain.Alarm) error {
	f.notified = append(f.notified, a)
	return nil
}

func reading(deviceID string) *domain.Reading {
	return &domain.Reading{
		DeviceID:         deviceID,
		Timestamp:        time.Now().UTC(),
		Temperature:      24,
		Pressure:         1040,
		FlowRate:         50,
		PowerConsumption: 200,
		Vibration:        2,
		Status:           "normal",
	}
}

func TestNonBreachProducesNoAlarm(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeBroadcaster{}
	ev := NewEvaluator(store, hub, nil, nil)

	r := reading("pump-1")
	r.Temperature = 28 // at the limit, not above
	r.Pressure = 1080
	ev.Evaluate(r)

	assert.Empty(t, store.inserted)
	assert.Empty(t, hub.events)
}

func TestTemperatureBreachRaisesHighAlarm(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeBroadcaster{}
	relay := &fakeRelay{}
	ev := NewEvaluator(store, hub, relay, nil)

	r := reading("pump-1")
	r.Temperature = 30
	ev.Evaluate(r)

	require.Len(t, store.inserted, 1)
	a := store.inserted[0]
	assert.Equal(t, "pump-1", a.DeviceID)
	assert.Equal(t, "temperature", a.AlarmType)
	assert.Equal(t, domain.SeverityHigh, a.Severity)
	assert.Equal(t, 30.0, a.Value)
	assert.Equal(t, 28.0, a.Threshold)
	assert.Contains(t, a.Message, "pump-1")

	require.Equal(t, []string{ws.EventNewAlarm}, hub.events)
	assert.Empty(t, relay.published, "high severity stays off the critical channel")
}

func TestMultipleChannelBreachesEachRaiseAlarms(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeBroadcaster{}
	ev := NewEvaluator(store, hub, nil, nil)

	r := reading("pump-1")
	r.Temperature = 31
	r.Pressure = 1100
	ev.Evaluate(r)

	require.Len(t, store.inserted, 2)
	assert.Len(t, hub.events, 2)
}

func TestCriticalBreachPublishesToRelayAndNotifier(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeBroadcaster{}
	relay := &fakeRelay{}
	notifier := &fakeNotifier{}
	ev := NewEvaluator(store, hub, relay, notifier)

	r := reading("pump-1")
	r.Vibration = 11
	ev.Evaluate(r)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, domain.SeverityCritical, store.inserted[0].Severity)
	require.Len(t, relay.published, 1)
	assert.Equal(t, store.inserted[0].ID, relay.published[0].ID)
	assert.Len(t, notifier.notified, 1)
}

func TestRelayFailureDoesNotAbortPersistOrBroadcast(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeBroadcaster{}
	relay := &fakeRelay{err: errors.New("relay down")}
	ev := NewEvaluator(store, hub, relay, nil)

	r := reading("pump-1")
	r.Vibration = 11
	ev.Evaluate(r)

	assert.Len(t, store.inserted, 1, "alarm row still persisted")
	assert.Equal(t, []string{ws.EventNewAlarm}, hub.events, "local broadcast still delivered")
}

func TestInsertFailureSuppressesBroadcast(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	hub := &fakeBroadcaster{}
	relay := &fakeRelay{}
	ev := NewEvaluator(store, hub, relay, nil)

	r := reading("pump-1")
	r.Vibration = 11
	ev.Evaluate(r)

	assert.Empty(t, hub.events, "no broadcast without a persisted alarm")
	assert.Empty(t, relay.published)
}
