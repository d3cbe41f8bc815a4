package http

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp() *fiber.App {
	app := fiber.New()
	Register(app, &Deps{})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) int {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestCreateDeviceRejectsMissingFields(t *testing.T) {
	app := testApp()
	assert.Equal(t, 400, doJSON(t, app, "POST", "/devices", `{"name":"Pump 1"}`))
	assert.Equal(t, 400, doJSON(t, app, "POST", "/devices", `{"device_id":"pump-1"}`))
	assert.Equal(t, 400, doJSON(t, app, "POST", "/devices", `not json`))
	assert.Equal(t, 400, doJSON(t, app, "POST", "/devices", `{"device_id":"pump-1","name":"Pump 1","status":"bogus"}`))
}

func TestUpdateDeviceStatusRejectsUnknownStatus(t *testing.T) {
	app := testApp()
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/devices/pump-1/status", `{"status":"exploded"}`))
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/devices/pump-1/status", ``))
}

func TestAcknowledgeAlarmValidation(t *testing.T) {
	app := testApp()
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/alarms/abc/acknowledge", `{"acknowledged_by":"op1"}`))
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/alarms/42/acknowledge", `{}`))
}

func TestResolveAlarmRejectsBadID(t *testing.T) {
	app := testApp()
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/alarms/xyz/resolve", ``))
}

func TestUpdateCommandStatusValidation(t *testing.T) {
	app := testApp()
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/commands/abc/status", `{"status":"executing"}`))
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/commands/1/status", `{"status":"pending"}`))
	assert.Equal(t, 400, doJSON(t, app, "PUT", "/commands/1/status", `{"status":"done"}`))
}
