package tsdb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Wafik13/PFE-sub001/internal/domain"
)

const measurement = "device_metrics"

// deviceIDPattern is the only shape of device id accepted into Flux queries.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// validRanges whitelists the timeRange query values accepted by the metrics
// endpoint. Anything else falls back to the 1h window.
var validRanges = map[string]string{
	"1h": "-1h", "6h": "-6h", "24h": "-24h", "7d": "-7d", "30d": "-30d",
}

// Sink writes readings to and queries readings from InfluxDB.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
}

func New(url, token, org, bucket string) *Sink {
	client := influxdb2.NewClient(url, token)
	return &Sink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
	}
}

func (s *Sink) Close() { s.client.Close() }

// WriteReading stores one reading as a single point tagged by device id.
func (s *Sink) WriteReading(ctx context.Context, r *domain.Reading) error {
	fields := make(map[string]any, 5)
	for k, v := range r.Metrics() {
		fields[k] = v
	}
	p := influxdb2.NewPoint(measurement,
		map[string]string{"device_id": r.DeviceID},
		fields,
		r.Timestamp,
	)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write for %s: %w", r.DeviceID, err)
	}
	return nil
}

// MetricRow is one pivoted time-series record returned by QueryRange.
type MetricRow struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// QueryRange returns readings for one device over a named time range. The
// device id and range are validated before being placed into the Flux text,
// so callers cannot splice arbitrary query fragments.
func (s *Sink) QueryRange(ctx context.Context, deviceID, timeRange string) ([]MetricRow, error) {
	if !deviceIDPattern.MatchString(deviceID) {
		return nil, fmt.Errorf("invalid device id %q", deviceID)
	}
	start, ok := validRanges[timeRange]
	if !ok {
		start = validRanges["1h"]
	}

	query := fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: %s)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> filter(fn: (r) => r.device_id == %q)
		  |> sort(columns: ["_time"], desc: false)`,
		s.bucket, start, measurement, deviceID)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer result.Close()

	byTime := map[time.Time]*MetricRow{}
	var ordered []*MetricRow
	for result.Next() {
		rec := result.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		row, seen := byTime[rec.Time()]
		if !seen {
			row = &MetricRow{Time: rec.Time(), Values: map[string]float64{}}
			byTime[rec.Time()] = row
			ordered = append(ordered, row)
		}
		row.Values[rec.Field()] = v
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx query: %w", result.Err())
	}

	out := make([]MetricRow, 0, len(ordered))
	for _, row := range ordered {
		out = append(out, *row)
	}
	return out, nil
}

// Ping reports whether the InfluxDB instance is reachable.
func (s *Sink) Ping(ctx context.Context) bool {
	ok, err := s.client.Ping(ctx)
	return err == nil && ok
}
