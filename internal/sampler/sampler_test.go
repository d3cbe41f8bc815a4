package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wafik13/PFE-sub001/internal/domain"
	"github.com/Wafik13/PFE-sub001/internal/ws"
)

type fakeDevices struct {
	online  []domain.Device
	listErr error
	touched []string
}

func (f *fakeDevices) ListOnlineDevices() ([]domain.Device, error) {
	return f.online, f.listErr
}

func (f *fakeDevices) TouchLastSeen(deviceID string, _ time.Time) error {
	f.touched = append(f.touched, deviceID)
	return nil
}

type fakeSink struct {
	written []*domain.Reading
	failFor map[string]bool
}

func (f *fakeSink) WriteReading(_ context.Context, r *domain.Reading) error {
	if f.failFor[r.DeviceID] {
		return errors.New("sink unavailable")
	}
	f.written = append(f.written, r)
	return nil
}

type fakeHub struct {
	deviceIDs []string
	payloads  []any
}

func (f *fakeHub) BroadcastToDevice(deviceID, _ string, payload any) {
	f.deviceIDs = append(f.deviceIDs, deviceID)
	f.payloads = append(f.payloads, payload)
}

type fakeEvaluator struct{ seen []*domain.Reading }

func (f *fakeEvaluator) Evaluate(r *domain.Reading) { f.seen = append(f.seen, r) }

func online(ids ...string) []domain.Device {
	out := make([]domain.Device, len(ids))
	for i, id := range ids {
		out[i] = domain.Device{DeviceID: id, Status: domain.DeviceOnline}
	}
	return out
}

func TestTickSamplesEveryOnlineDevice(t *testing.T) {
	devices := &fakeDevices{online: online("pump-1", "pump-2")}
	sink := &fakeSink{}
	hub := &fakeHub{}
	evaluator := &fakeEvaluator{}
	s := New(devices, sink, nil, hub, evaluator, time.Second)

	s.Tick(context.Background())

	require.Len(t, sink.written, 2)
	assert.Equal(t, "pump-1", sink.written[0].DeviceID)
	assert.Equal(t, "pump-2", sink.written[1].DeviceID)

	assert.Equal(t, []string{"pump-1", "pump-2"}, hub.deviceIDs)
	require.Len(t, hub.payloads, 2)
	dd, ok := hub.payloads[0].(ws.DeviceData)
	require.True(t, ok)
	assert.Len(t, dd.Metrics, 5)

	assert.Len(t, evaluator.seen, 2, "every reading reaches the evaluator in the same tick")
	assert.Equal(t, []string{"pump-1", "pump-2"}, devices.touched)
}

func TestTickEmptyRegistryIsNoOp(t *testing.T) {
	devices := &fakeDevices{}
	sink := &fakeSink{}
	hub := &fakeHub{}
	s := New(devices, sink, nil, hub, &fakeEvaluator{}, time.Second)

	s.Tick(context.Background())

	assert.Empty(t, sink.written)
	assert.Empty(t, hub.deviceIDs)
}

func TestSinkFailureDoesNotAbortRemainingDevices(t *testing.T) {
	devices := &fakeDevices{online: online("pump-1", "pump-2", "pump-3")}
	sink := &fakeSink{failFor: map[string]bool{"pump-2": true}}
	hub := &fakeHub{}
	evaluator := &fakeEvaluator{}
	s := New(devices, sink, nil, hub, evaluator, time.Second)

	s.Tick(context.Background())

	require.Len(t, sink.written, 2)
	assert.Equal(t, "pump-1", sink.written[0].DeviceID)
	assert.Equal(t, "pump-3", sink.written[1].DeviceID)

	// Broadcast and evaluation are independent of the failed write.
	assert.Len(t, hub.deviceIDs, 3)
	assert.Len(t, evaluator.seen, 3)
}

func TestSynthesizedChannelsStayAroundBaselines(t *testing.T) {
	s := New(&fakeDevices{}, &fakeSink{}, nil, &fakeHub{}, &fakeEvaluator{}, time.Second)
	for i := 0; i < 200; i++ {
		r := s.synthesize("pump-1")
		assert.GreaterOrEqual(t, r.Temperature, 20.0)
		assert.LessOrEqual(t, r.Temperature, 30.0)
		assert.GreaterOrEqual(t, r.Pressure, 1000.0)
		assert.LessOrEqual(t, r.Pressure, 1100.0)
		assert.GreaterOrEqual(t, r.Vibration, 0.0)
		assert.Contains(t, []string{"normal", "warning"}, r.Status)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	devices := &fakeDevices{online: online("pump-1")}
	s := New(devices, &fakeSink{}, nil, &fakeHub{}, &fakeEvaluator{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after cancel")
	}
	assert.NotEmpty(t, devices.touched)
}
