package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Wafik13/PFE-sub001/internal/domain"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a device, alarm or command id does not exist.
var ErrNotFound = errors.New("not found")

type Repos struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repos { return &Repos{db: db} }

func (r *Repos) Ping() error { return r.db.Ping() }

// --- devices ---

func (r *Repos) CreateDevice(d *domain.Device) error {
	if d.Status == "" {
		d.Status = domain.DeviceOffline
	}
	if len(d.Config) == 0 {
		d.Config = []byte(`{}`)
	}
	return r.db.Get(d, `INSERT INTO devices(device_id, name, type, location, address, protocol, config, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, device_id, name, type, location, address, protocol, config, status, last_seen, created_at`,
		d.DeviceID, d.Name, d.Type, d.Location, d.Address, d.Protocol, d.Config, d.Status)
}

type DeviceFilter struct {
	Status   string
	Type     string
	Location string
}

func (r *Repos) ListDevices(f DeviceFilter) ([]domain.Device, error) {
	q := `SELECT id, device_id, name, type, location, address, protocol, config, status, last_seen, created_at FROM devices WHERE 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		q += ` AND type = $` + strconv.Itoa(len(args))
	}
	if f.Location != "" {
		args = append(args, f.Location)
		q += ` AND location = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY id`
	out := []domain.Device{}
	err := r.db.Select(&out, q, args...)
	return out, err
}

func (r *Repos) GetDevice(deviceID string) (*domain.Device, error) {
	var d domain.Device
	err := r.db.Get(&d, `SELECT id, device_id, name, type, location, address, protocol, config, status, last_seen, created_at
		FROM devices WHERE device_id = $1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repos) ListOnlineDevices() ([]domain.Device, error) {
	return r.ListDevices(DeviceFilter{Status: domain.DeviceOnline})
}

func (r *Repos) UpdateDeviceStatus(deviceID, status string) error {
	res, err := r.db.Exec(`UPDATE devices SET status = $2 WHERE device_id = $1`, deviceID, status)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repos) TouchLastSeen(deviceID string, t time.Time) error {
	_, err := r.db.Exec(`UPDATE devices SET last_seen = $2 WHERE device_id = $1`, deviceID, t)
	return err
}

// --- alarms ---

func (r *Repos) InsertAlarm(a *domain.Alarm) error {
	return r.db.Get(a, `INSERT INTO alarms(device_id, alarm_type, severity, message, value, threshold)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, device_id, alarm_type, severity, message, value, threshold,
			acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, created_at`,
		a.DeviceID, a.AlarmType, a.Severity, a.Message, a.Value, a.Threshold)
}

type AlarmFilter struct {
	DeviceID     string
	Severity     string
	Acknowledged *bool
	Resolved     *bool
	Limit        int
}

func (r *Repos) ListAlarms(f AlarmFilter) ([]domain.Alarm, error) {
	q := `SELECT id, device_id, alarm_type, severity, message, value, threshold,
			acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, created_at
		FROM alarms WHERE 1=1`
	var args []any
	if f.DeviceID != "" {
		args = append(args, f.DeviceID)
		q += ` AND device_id = $` + strconv.Itoa(len(args))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		q += ` AND severity = $` + strconv.Itoa(len(args))
	}
	if f.Acknowledged != nil {
		args = append(args, *f.Acknowledged)
		q += ` AND acknowledged = $` + strconv.Itoa(len(args))
	}
	if f.Resolved != nil {
		args = append(args, *f.Resolved)
		q += ` AND resolved = $` + strconv.Itoa(len(args))
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	args = append(args, f.Limit)
	q += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	out := []domain.Alarm{}
	err := r.db.Select(&out, q, args...)
	return out, err
}

// AcknowledgeAlarm marks the alarm acknowledged and returns the updated row.
// Idempotent: a repeat call overwrites acknowledged_by but keeps the original
// acknowledged_at.
func (r *Repos) AcknowledgeAlarm(id int64, by string) (*domain.Alarm, error) {
	var a domain.Alarm
	err := r.db.Get(&a, `UPDATE alarms
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = COALESCE(acknowledged_at, now())
		WHERE id = $1
		RETURNING id, device_id, alarm_type, severity, message, value, threshold,
			acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, created_at`, id, by)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ResolveAlarm marks the alarm resolved and returns the updated row.
func (r *Repos) ResolveAlarm(id int64) (*domain.Alarm, error) {
	var a domain.Alarm
	err := r.db.Get(&a, `UPDATE alarms
		SET resolved = TRUE, resolved_at = COALESCE(resolved_at, now())
		WHERE id = $1
		RETURNING id, device_id, alarm_type, severity, message, value, threshold,
			acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, created_at`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// --- commands ---

func (r *Repos) InsertCommand(c *domain.Command) error {
	if len(c.CommandData) == 0 {
		c.CommandData = []byte(`{}`)
	}
	return r.db.Get(c, `INSERT INTO commands(device_id, command_type, command_data, issued_by, status)
		VALUES ($1,$2,$3,$4,'pending')
		RETURNING id, device_id, command_type, command_data, issued_by, status, response, issued_at, executed_at, completed_at`,
		c.DeviceID, c.CommandType, c.CommandData, c.IssuedBy)
}

// UpdateCommandStatus advances a command through its lifecycle. Transitions
// that would regress or skip a state are rejected.
func (r *Repos) UpdateCommandStatus(id int64, status string, response *string) error {
	var current string
	err := r.db.Get(&current, `SELECT status FROM commands WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !domain.ValidCommandTransition(current, status) {
		return fmt.Errorf("invalid command transition %s -> %s", current, status)
	}
	switch status {
	case domain.CommandExecuting:
		_, err = r.db.Exec(`UPDATE commands SET status = $2, executed_at = now() WHERE id = $1`, id, status)
	default:
		_, err = r.db.Exec(`UPDATE commands SET status = $2, response = $3, completed_at = now() WHERE id = $1`, id, status, response)
	}
	return err
}

// --- overview aggregates ---

type StatusCount struct {
	Key   string `db:"key" json:"key"`
	Count int    `db:"count" json:"count"`
}

func (r *Repos) CountDevicesByStatus() ([]StatusCount, error) {
	out := []StatusCount{}
	err := r.db.Select(&out, `SELECT status AS key, COUNT(*) AS count FROM devices GROUP BY status`)
	return out, err
}

func (r *Repos) CountUnresolvedAlarmsBySeverity() ([]StatusCount, error) {
	out := []StatusCount{}
	err := r.db.Select(&out, `SELECT severity AS key, COUNT(*) AS count FROM alarms WHERE NOT resolved GROUP BY severity`)
	return out, err
}

func (r *Repos) CountRecentCommandsByStatus() ([]StatusCount, error) {
	out := []StatusCount{}
	err := r.db.Select(&out, `SELECT status AS key, COUNT(*) AS count FROM commands
		WHERE issued_at > now() - INTERVAL '24 hours' GROUP BY status`)
	return out, err
}
