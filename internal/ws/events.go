package ws

import "time"

// Server -> client event names.
const (
	EventConnection         = "connection"
	EventDeviceData         = "device_data"
	EventNewAlarm           = "new_alarm"
	EventAlarmAcknowledged  = "alarm_acknowledged"
	EventAlarmResolved      = "alarm_resolved"
	EventDeviceStatusChange = "device_status_change"
	EventCriticalAlert      = "critical_alert"
	EventCommandQueued      = "command_queued"
	EventCommandError       = "command_error"
)

// Client -> server message types.
const (
	msgSubscribeDevice    = "subscribe_device"
	msgUnsubscribeDevice  = "unsubscribe_device"
	msgSubscribeDashboard = "subscribe_dashboard"
	msgDeviceCommand      = "device_command"
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// DeviceData is the subscription-filtered payload carrying one reading.
type DeviceData struct {
	DeviceID  string             `json:"deviceId"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// StatusChange notifies a device's subscribers of a status transition.
type StatusChange struct {
	DeviceID  string    `json:"deviceId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandQueued is unicast to the issuer after a command is persisted.
type CommandQueued struct {
	CommandID int64  `json:"commandId"`
	Status    string `json:"status"`
}

// CommandError is unicast to the issuer when its command is rejected.
type CommandError struct {
	Error string `json:"error"`
}

type welcome struct {
	Message      string    `json:"message"`
	ConnectionID string    `json:"connection_id"`
	Timestamp    time.Time `json:"timestamp"`
}
