package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Device statuses as stored in the devices table.
const (
	DeviceOnline      = "online"
	DeviceOffline     = "offline"
	DeviceWarning     = "warning"
	DeviceMaintenance = "maintenance"
)

// Alarm severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Command lifecycle statuses.
const (
	CommandPending   = "pending"
	CommandExecuting = "executing"
	CommandCompleted = "completed"
	CommandFailed    = "failed"
)

type Device struct {
	ID        int64          `db:"id" json:"id"`
	DeviceID  string         `db:"device_id" json:"device_id"`
	Name      string         `db:"name" json:"name"`
	Type      string         `db:"type" json:"type"`
	Location  string         `db:"location" json:"location"`
	Address   string         `db:"address" json:"address"`
	Protocol  string         `db:"protocol" json:"protocol"`
	Config    types.JSONText `db:"config" json:"config,omitempty"`
	Status    string         `db:"status" json:"status"`
	LastSeen  *time.Time     `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Reading is one sampled set of channel values for a device. Readings are
// not stored as rows; they go to the time-series sink and are fanned out to
// subscribed websocket clients.
type Reading struct {
	DeviceID         string    `json:"device_id"`
	Timestamp        time.Time `json:"timestamp"`
	Temperature      float64   `json:"temperature"`
	Pressure         float64   `json:"pressure"`
	FlowRate         float64   `json:"flow_rate"`
	PowerConsumption float64   `json:"power_consumption"`
	Vibration        float64   `json:"vibration"`
	Status           string    `json:"status"`
}

// Metrics returns the reading's channel values keyed by channel name.
func (r *Reading) Metrics() map[string]float64 {
	return map[string]float64{
		"temperature":       r.Temperature,
		"pressure":          r.Pressure,
		"flow_rate":         r.FlowRate,
		"power_consumption": r.PowerConsumption,
		"vibration":         r.Vibration,
	}
}

type Alarm struct {
	ID             int64      `db:"id" json:"id"`
	DeviceID       string     `db:"device_id" json:"device_id"`
	AlarmType      string     `db:"alarm_type" json:"alarm_type"`
	Severity       string     `db:"severity" json:"severity"`
	Message        string     `db:"message" json:"message"`
	Value          float64    `db:"value" json:"value"`
	Threshold      float64    `db:"threshold" json:"threshold"`
	Acknowledged   bool       `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	Resolved       bool       `db:"resolved" json:"resolved"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

type Command struct {
	ID          int64          `db:"id" json:"id"`
	DeviceID    string         `db:"device_id" json:"device_id"`
	CommandType string         `db:"command_type" json:"command_type"`
	CommandData types.JSONText `db:"command_data" json:"command_data,omitempty"`
	IssuedBy    string         `db:"issued_by" json:"issued_by"`
	Status      string         `db:"status" json:"status"`
	Response    *string        `db:"response" json:"response,omitempty"`
	IssuedAt    time.Time      `db:"issued_at" json:"issued_at"`
	ExecutedAt  *time.Time     `db:"executed_at" json:"executed_at,omitempty"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// ValidCommandTransition reports whether a command status change is allowed.
// The lifecycle is strictly forward: pending -> executing -> completed|failed.
func ValidCommandTransition(from, to string) bool {
	switch from {
	case CommandPending:
		return to == CommandExecuting
	case CommandExecuting:
		return to == CommandCompleted || to == CommandFailed
	}
	return false
}

// ValidDeviceStatus reports whether s is a known device status.
func ValidDeviceStatus(s string) bool {
	switch s {
	case DeviceOnline, DeviceOffline, DeviceWarning, DeviceMaintenance:
		return true
	}
	return false
}
