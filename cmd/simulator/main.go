package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/Wafik13/PFE-sub001/internal/config"
)

// Demo fixtures: a small plant worth of devices, registered online so the
// sampler picks them up on its next tick.
var demoDevices = []map[string]any{
	{"device_id": "pump-1", "name": "Feed Pump 1", "type": "pump", "location": "hall-a", "protocol": "modbus"},
	{"device_id": "pump-2", "name": "Feed Pump 2", "type": "pump", "location": "hall-a", "protocol": "modbus"},
	{"device_id": "valve-7", "name": "Control Valve 7", "type": "valve", "location": "hall-b", "protocol": "opcua"},
	{"device_id": "press-3", "name": "Hydraulic Press 3", "type": "press", "location": "hall-b", "protocol": "opcua"},
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	viper.SetDefault("API_BASE", "http://localhost:8080")
	viper.SetDefault("WS_URL", "ws://localhost:8081/ws")
	apiBase := viper.GetString("API_BASE")
	wsURL := viper.GetString("WS_URL")

	for _, dev := range demoDevices {
		if err := registerOnline(apiBase, dev); err != nil {
			log.Error().Err(err).Str("device_id", dev["device_id"].(string)).Msg("registration failed")
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("websocket dial failed")
	}
	defer conn.Close()

	for _, dev := range demoDevices {
		sub := map[string]any{"type": "subscribe_device", "device_id": dev["device_id"]}
		if err := conn.WriteJSON(sub); err != nil {
			log.Fatal().Err(err).Msg("subscribe failed")
		}
	}

	// One demo command to exercise the command path end to end.
	cmd := map[string]any{
		"type":         "device_command",
		"device_id":    "pump-1",
		"command_type": "restart",
		"command_data": map[string]any{"delay_seconds": 5},
		"user_id":      "simulator",
	}
	if err := conn.WriteJSON(cmd); err != nil {
		log.Error().Err(err).Msg("command send failed")
	}

	deadline := time.After(60 * time.Second)
	events := make(chan []byte)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				close(events)
				return
			}
			events <- raw
		}
	}()

	for {
		select {
		case raw, ok := <-events:
			if !ok {
				log.Info().Msg("connection closed")
				return
			}
			log.Info().RawJSON("event", raw).Msg("received")
		case <-deadline:
			log.Info().Msg("simulation done")
			return
		}
	}
}

func registerOnline(apiBase string, dev map[string]any) error {
	payload, _ := json.Marshal(dev)
	resp, err := http.Post(apiBase+"/devices", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp.Body.Close()
	// 500 on re-run means the device already exists; flip it online either way.
	if resp.StatusCode != 201 && resp.StatusCode != 500 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]string{"status": "online"})
	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/devices/%s/status", apiBase, dev["device_id"]), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("status update failed with %d", resp.StatusCode)
	}
	return nil
}
