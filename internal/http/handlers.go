package http

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/Wafik13/PFE-sub001/internal/cache"
	"github.com/Wafik13/PFE-sub001/internal/domain"
	"github.com/Wafik13/PFE-sub001/internal/relay"
	"github.com/Wafik13/PFE-sub001/internal/repository"
	"github.com/Wafik13/PFE-sub001/internal/service"
	"github.com/Wafik13/PFE-sub001/internal/tsdb"
	"github.com/Wafik13/PFE-sub001/internal/ws"
)

type Deps struct {
	Svcs  *service.Services
	TS    *tsdb.Sink
	Cache *cache.Cache
	Hub   *ws.Hub
	Relay *relay.Relay
}

func Register(app *fiber.App, d *Deps) {
	app.Post("/devices", d.createDevice)
	app.Get("/devices", d.listDevices)
	app.Get("/devices/:id", d.getDevice)
	app.Put("/devices/:id/status", d.updateDeviceStatus)

	app.Get("/alarms", d.listAlarms)
	app.Put("/alarms/:id/acknowledge", d.acknowledgeAlarm)
	app.Put("/alarms/:id/resolve", d.resolveAlarm)

	app.Put("/commands/:id/status", d.updateCommandStatus)

	app.Get("/metrics/realtime/:device_id", d.realtimeMetrics)
	app.Get("/overview", d.overview)
	app.Get("/health", d.health)
}

func errJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

type createDeviceRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location"`
	Address  string `json:"address"`
	Protocol string `json:"protocol"`
	Config   any    `json:"config"`
	Status   string `json:"status"`
}

func (d *Deps) createDevice(c *fiber.Ctx) error {
	var req createDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, 400, "invalid request body")
	}
	if req.DeviceID == "" || req.Name == "" {
		return errJSON(c, 400, "device_id and name are required")
	}
	if req.Status != "" && !domain.ValidDeviceStatus(req.Status) {
		return errJSON(c, 400, "invalid status")
	}

	dev := &domain.Device{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Type:     req.Type,
		Location: req.Location,
		Address:  req.Address,
		Protocol: req.Protocol,
		Status:   req.Status,
	}
	if req.Config != nil {
		raw, err := json.Marshal(req.Config)
		if err != nil {
			return errJSON(c, 400, "invalid config")
		}
		dev.Config = raw
	}
	if err := d.Svcs.Repos.CreateDevice(dev); err != nil {
		log.Error().Err(err).Str("device_id", req.DeviceID).Msg("device create failed")
		return errJSON(c, 500, "failed to create device")
	}
	return c.Status(201).JSON(dev)
}

func (d *Deps) listDevices(c *fiber.Ctx) error {
	items, err := d.Svcs.Repos.ListDevices(repository.DeviceFilter{
		Status:   c.Query("status"),
		Type:     c.Query("type"),
		Location: c.Query("location"),
	})
	if err != nil {
		return errJSON(c, 500, err.Error())
	}
	return c.JSON(items)
}

func (d *Deps) getDevice(c *fiber.Ctx) error {
	dev, err := d.Svcs.Repos.GetDevice(c.Params("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return errJSON(c, 404, "device not found")
	}
	if err != nil {
		return errJSON(c, 500, err.Error())
	}

	resp := fiber.Map{"device": dev}
	if d.Cache != nil {
		if latest, err := d.Cache.GetLatest(c.Context(), dev.DeviceID); err == nil {
			resp["latest_reading"] = latest
		}
	}
	return c.JSON(resp)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (d *Deps) updateDeviceStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, 400, "invalid request body")
	}
	if !domain.ValidDeviceStatus(req.Status) {
		return errJSON(c, 400, "invalid status")
	}

	deviceID := c.Params("id")
	err := d.Svcs.Repos.UpdateDeviceStatus(deviceID, req.Status)
	if errors.Is(err, repository.ErrNotFound) {
		return errJSON(c, 404, "device not found")
	}
	if err != nil {
		return errJSON(c, 500, err.Error())
	}

	if d.Hub != nil {
		d.Hub.BroadcastToDevice(deviceID, ws.EventDeviceStatusChange, ws.StatusChange{
			DeviceID:  deviceID,
			Status:    req.Status,
			Timestamp: time.Now().UTC(),
		})
	}
	return c.JSON(fiber.Map{"device_id": deviceID, "status": req.Status})
}

func (d *Deps) listAlarms(c *fiber.Ctx) error {
	f := repository.AlarmFilter{
		DeviceID: c.Query("device_id"),
		Severity: c.Query("severity"),
	}
	if v := c.Query("acknowledged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errJSON(c, 400, "invalid acknowledged value")
		}
		f.Acknowledged = &b
	}
	if v := c.Query("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errJSON(c, 400, "invalid resolved value")
		}
		f.Resolved = &b
	}
	f.Limit = c.QueryInt("limit", 100)

	items, err := d.Svcs.Repos.ListAlarms(f)
	if err != nil {
		return errJSON(c, 500, err.Error())
	}
	return c.JSON(items)
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

func (d *Deps) acknowledgeAlarm(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return errJSON(c, 400, "invalid alarm id")
	}
	var req acknowledgeRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, 400, "invalid request body")
	}
	if req.AcknowledgedBy == "" {
		return errJSON(c, 400, "acknowledged_by is required")
	}

	a, err := d.Svcs.Repos.AcknowledgeAlarm(id, req.AcknowledgedBy)
	if errors.Is(err, repository.ErrNotFound) {
		return errJSON(c, 404, "alarm not found")
	}
	if err != nil {
		return errJSON(c, 500, err.Error())
	}

	if d.Hub != nil {
		d.Hub.BroadcastAll(ws.EventAlarmAcknowledged, a)
	}
	return c.JSON(a)
}

func (d *Deps) resolveAlarm(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return errJSON(c, 400, "invalid alarm id")
	}

	a, err := d.Svcs.Repos.ResolveAlarm(id)
	if errors.Is(err, repository.ErrNotFound) {
		return errJSON(c, 404, "alarm not found")
	}
	if err != nil {
		return errJSON(c, 500, err.Error())
	}

	if d.Hub != nil {
		d.Hub.BroadcastAll(ws.EventAlarmResolved, a)
	}
	return c.JSON(a)
}

type commandStatusRequest struct {
	Status   string  `json:"status"`
	Response *string `json:"response"`
}

// updateCommandStatus is how the external command executor reports
// progress. The lifecycle is enforced server-side: no regressions, no
// skipped states.
func (d *Deps) updateCommandStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return errJSON(c, 400, "invalid command id")
	}
	var req commandStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, 400, "invalid request body")
	}
	switch req.Status {
	case domain.CommandExecuting, domain.CommandCompleted, domain.CommandFailed:
	default:
		return errJSON(c, 400, "invalid status")
	}

	err = d.Svcs.Repos.UpdateCommandStatus(id, req.Status, req.Response)
	if errors.Is(err, repository.ErrNotFound) {
		return errJSON(c, 404, "command not found")
	}
	if err != nil {
		return errJSON(c, 400, err.Error())
	}
	return c.JSON(fiber.Map{"command_id": id, "status": req.Status})
}

func (d *Deps) realtimeMetrics(c *fiber.Ctx) error {
	deviceID := c.Params("device_id")
	if _, err := d.Svcs.Repos.GetDevice(deviceID); errors.Is(err, repository.ErrNotFound) {
		return errJSON(c, 404, "device not found")
	} else if err != nil {
		return errJSON(c, 500, err.Error())
	}

	rows, err := d.TS.QueryRange(c.Context(), deviceID, c.Query("timeRange", "1h"))
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("time-series query failed")
		return errJSON(c, 500, "time-series query failed")
	}
	return c.JSON(fiber.Map{"device_id": deviceID, "metrics": rows})
}

func (d *Deps) overview(c *fiber.Ctx) error {
	devices, err := d.Svcs.Repos.CountDevicesByStatus()
	if err != nil {
		return errJSON(c, 500, err.Error())
	}
	alarms, err := d.Svcs.Repos.CountUnresolvedAlarmsBySeverity()
	if err != nil {
		return errJSON(c, 500, err.Error())
	}
	commands, err := d.Svcs.Repos.CountRecentCommandsByStatus()
	if err != nil {
		return errJSON(c, 500, err.Error())
	}

	connections := 0
	if d.Hub != nil {
		connections = d.Hub.Count()
	}
	return c.JSON(fiber.Map{
		"devices_by_status":  devices,
		"unresolved_alarms":  alarms,
		"commands_last_24h":  commands,
		"active_connections": connections,
	})
}

func (d *Deps) health(c *fiber.Ctx) error {
	checks := fiber.Map{}
	healthy := true

	dbOK := d.Svcs.Repos.Ping() == nil
	checks["database"] = dbOK
	healthy = healthy && dbOK

	if d.TS != nil {
		tsOK := d.TS.Ping(c.Context())
		checks["timeseries"] = tsOK
		healthy = healthy && tsOK
	}
	if d.Cache != nil {
		cacheOK := d.Cache.Ping(c.Context())
		checks["cache"] = cacheOK
		healthy = healthy && cacheOK
	}
	if d.Relay != nil {
		relayOK := d.Relay.Connected()
		checks["relay"] = relayOK
		healthy = healthy && relayOK
	}

	status := 200
	if !healthy {
		status = 503
	}
	return c.Status(status).JSON(fiber.Map{"healthy": healthy, "checks": checks})
}
