package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wafik13/PFE-sub001/internal/domain"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client

	publishErr error
	pubs       []published
	subHandler mqtt.MessageHandler
	connected  bool
}

func (f *fakeClient) IsConnectionOpen() bool { return f.connected }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	f.pubs = append(f.pubs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: f.publishErr}
}

func (f *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	f.subHandler = callback
	return &fakeToken{}
}

type fakeMessage struct {
	payload []byte
	acked   bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return "scada/alerts/critical" }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              { m.acked = true }

func TestPublishCriticalAlertTopicAndQoS(t *testing.T) {
	fc := &fakeClient{connected: true}
	r := NewWithClient(fc)
	assert.True(t, r.Connected())

	a := &domain.Alarm{ID: 3, DeviceID: "pump-1", Severity: domain.SeverityCritical}
	require.NoError(t, r.PublishCriticalAlert(a))

	require.Len(t, fc.pubs, 1)
	assert.Equal(t, "scada/alerts/critical", fc.pubs[0].topic)
	assert.Equal(t, byte(1), fc.pubs[0].qos)

	var got domain.Alarm
	require.NoError(t, json.Unmarshal(fc.pubs[0].payload, &got))
	assert.Equal(t, int64(3), got.ID)
}

func TestPublishCommandKeyedByDevice(t *testing.T) {
	fc := &fakeClient{}
	r := NewWithClient(fc)

	cmd := &domain.Command{ID: 9, DeviceID: "pump-1", CommandType: "stop", Status: domain.CommandPending}
	require.NoError(t, r.PublishCommand(cmd))

	require.Len(t, fc.pubs, 1)
	assert.Equal(t, "scada/devices/pump-1/commands", fc.pubs[0].topic)
	assert.Equal(t, byte(1), fc.pubs[0].qos)
}

func TestPublishFailureSurfaces(t *testing.T) {
	fc := &fakeClient{publishErr: errors.New("broker gone")}
	r := NewWithClient(fc)

	err := r.PublishCriticalAlert(&domain.Alarm{ID: 1})
	assert.ErrorContains(t, err, "broker gone")
}

func TestConsumeAcksOnlyAfterHandlerSucceeds(t *testing.T) {
	fc := &fakeClient{}
	r := NewWithClient(fc)

	var handled []int64
	handlerErr := errors.New("broadcast down")
	fail := true
	require.NoError(t, r.ConsumeCriticalAlerts(func(a *domain.Alarm) error {
		handled = append(handled, a.ID)
		if fail {
			return handlerErr
		}
		return nil
	}))
	require.NotNil(t, fc.subHandler)

	payload, _ := json.Marshal(domain.Alarm{ID: 42, Severity: domain.SeverityCritical})

	msg := &fakeMessage{payload: payload}
	fc.subHandler(fc, msg)
	assert.False(t, msg.acked, "failed broadcast leaves the message unacked for redelivery")

	fail = false
	msg = &fakeMessage{payload: payload}
	fc.subHandler(fc, msg)
	assert.True(t, msg.acked)
	assert.Equal(t, []int64{42, 42}, handled)
}

func TestConsumeDropsPoisonMessages(t *testing.T) {
	fc := &fakeClient{}
	r := NewWithClient(fc)
	require.NoError(t, r.ConsumeCriticalAlerts(func(*domain.Alarm) error { return nil }))

	msg := &fakeMessage{payload: []byte("{not json")}
	fc.subHandler(fc, msg)
	assert.True(t, msg.acked, "undecodable payload is acked so it cannot wedge the channel")
}
