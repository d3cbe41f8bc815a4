package sampler

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Wafik13/PFE-sub001/internal/domain"
	"github.com/Wafik13/PFE-sub001/internal/ws"
)

type DeviceSource interface {
	ListOnlineDevices() ([]domain.Device, error)
	TouchLastSeen(deviceID string, t time.Time) error
}

type SinkWriter interface {
	WriteReading(ctx context.Context, r *domain.Reading) error
}

type LatestCache interface {
	SetLatest(ctx context.Context, r *domain.Reading) error
}

type Broadcaster interface {
	BroadcastToDevice(deviceID, eventType string, payload any)
}

type Evaluator interface {
	Evaluate(r *domain.Reading)
}

// Sampler manufactures one reading per online device on a fixed interval.
// In production the synthesis step is replaced by a protocol read; the
// surrounding pipeline is identical.
type Sampler struct {
	devices   DeviceSource
	sink      SinkWriter
	cache     LatestCache
	hub       Broadcaster
	evaluator Evaluator
	interval  time.Duration
	rng       *rand.Rand
	busy      atomic.Bool
}

func New(devices DeviceSource, sink SinkWriter, cache LatestCache, hub Broadcaster, evaluator Evaluator, interval time.Duration) *Sampler {
	return &Sampler{
		devices:   devices,
		sink:      sink,
		cache:     cache,
		hub:       hub,
		evaluator: evaluator,
		interval:  interval,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives the tick loop until the context is cancelled. Ticks never
// overlap: a tick still running when the timer fires causes the next tick
// to be skipped rather than queued.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", s.interval).Msg("sampler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sampler stopped")
			return
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				log.Warn().Msg("previous tick still running, skipping")
				continue
			}
			s.Tick(ctx)
			s.busy.Store(false)
		}
	}
}

// Tick samples every online device once, sequentially. A failure for one
// device is logged and never aborts the remaining devices.
func (s *Sampler) Tick(ctx context.Context) {
	devices, err := s.devices.ListOnlineDevices()
	if err != nil {
		log.Error().Err(err).Msg("listing online devices failed")
		return
	}
	for i := range devices {
		s.sample(ctx, &devices[i])
	}
}

func (s *Sampler) sample(ctx context.Context, d *domain.Device) {
	r := s.synthesize(d.DeviceID)

	if err := s.sink.WriteReading(ctx, r); err != nil {
		log.Error().Err(err).Str("device_id", d.DeviceID).Msg("time-series write failed")
	}

	// Broadcast is independent of persistence: subscribers may miss a
	// reading without affecting the stored copy, and vice versa.
	s.hub.BroadcastToDevice(d.DeviceID, ws.EventDeviceData, ws.DeviceData{
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp,
		Metrics:   r.Metrics(),
	})

	// Evaluation is synchronous: the reading is checked before the next
	// tick can begin for this device.
	s.evaluator.Evaluate(r)

	if err := s.devices.TouchLastSeen(d.DeviceID, r.Timestamp); err != nil {
		log.Error().Err(err).Str("device_id", d.DeviceID).Msg("last_seen update failed")
	}
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, r); err != nil {
			log.Error().Err(err).Str("device_id", d.DeviceID).Msg("latest-reading cache update failed")
		}
	}
}

// synthesize produces random perturbations around nominal baselines. The
// rare vibration spike exercises the critical-alert path end to end.
func (s *Sampler) synthesize(deviceID string) *domain.Reading {
	r := &domain.Reading{
		DeviceID:         deviceID,
		Timestamp:        time.Now().UTC(),
		Temperature:      20 + s.rng.Float64()*10,
		Pressure:         1000 + s.rng.Float64()*100,
		FlowRate:         40 + s.rng.Float64()*20,
		PowerConsumption: 100 + s.rng.Float64()*200,
		Vibration:        s.rng.Float64() * 5,
		Status:           "normal",
	}
	if s.rng.Float64() < 0.01 {
		r.Vibration += 7
	}
	if s.rng.Float64() < 0.05 {
		r.Status = "warning"
	}
	return r
}
