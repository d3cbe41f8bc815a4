package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCommandTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{CommandPending, CommandExecuting, true},
		{CommandExecuting, CommandCompleted, true},
		{CommandExecuting, CommandFailed, true},
		{CommandPending, CommandCompleted, false},
		{CommandPending, CommandFailed, false},
		{CommandCompleted, CommandPending, false},
		{CommandCompleted, CommandExecuting, false},
		{CommandFailed, CommandPending, false},
		{CommandFailed, CommandExecuting, false},
		{CommandExecuting, CommandPending, false},
		{CommandCompleted, CommandFailed, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, ValidCommandTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestReadingMetrics(t *testing.T) {
	r := Reading{Temperature: 25, Pressure: 1050, FlowRate: 42, PowerConsumption: 180, Vibration: 2.5}
	m := r.Metrics()
	assert.Len(t, m, 5)
	assert.Equal(t, 25.0, m["temperature"])
	assert.Equal(t, 1050.0, m["pressure"])
	assert.Equal(t, 2.5, m["vibration"])
}

func TestValidDeviceStatus(t *testing.T) {
	for _, s := range []string{DeviceOnline, DeviceOffline, DeviceWarning, DeviceMaintenance} {
		assert.True(t, ValidDeviceStatus(s))
	}
	assert.False(t, ValidDeviceStatus("running"))
	assert.False(t, ValidDeviceStatus(""))
}
