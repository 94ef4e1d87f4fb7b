// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for pump events.
const Topic = "farm/irrigation/controller/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "farm/irrigation/controller/system"

// PumpEvent describes one pump transition.
type PumpEvent struct {
	Timestamp    time.Time
	Type         string // "PUMP_ON" or "PUMP_OFF"
	Reason       string // stop reason ("COMPLETED", "RUNTIME_EXCEEDED", "EMERGENCY"); empty for starts
	Manual       bool
	SoilMoisture float64
	Threshold    float64
	DailyCount   int
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pump event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event PumpEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Config     *SystemConfig
	Heartbeat  *HeartbeatInfo
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemConfig carries controller configuration on startup events.
type SystemConfig struct {
	PollMs     int64   `json:"poll_ms"`
	DurationMs int64   `json:"irrigation_duration_ms"`
	CooldownMs int64   `json:"cooldown_ms"`
	MaxDaily   int     `json:"max_daily_irrigations"`
	Threshold  float64 `json:"threshold"`
	Broker     string  `json:"broker"`
}

// HeartbeatInfo carries runtime state on heartbeat events.
type HeartbeatInfo struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	DailyCount    int   `json:"daily_irrigation_count"`
	PumpActive    bool  `json:"pump_active"`
	SystemHealthy bool  `json:"system_healthy"`
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Irrigation IrrigationPayload `json:"irrigation"`
}

// IrrigationPayload contains the pump event details.
type IrrigationPayload struct {
	Timestamp    string  `json:"timestamp"`
	Event        string  `json:"event"`
	Reason       string  `json:"reason,omitempty"`
	Manual       bool    `json:"manual,omitempty"`
	SoilMoisture float64 `json:"soil_moisture"`
	Threshold    float64 `json:"threshold"`
	DailyCount   int     `json:"daily_irrigation_count"`
}

// FormatPayload creates the JSON payload for a pump event.
func FormatPayload(event PumpEvent) ([]byte, error) {
	payload := Payload{
		Irrigation: IrrigationPayload{
			Timestamp:    event.Timestamp.UTC().Format(time.RFC3339),
			Event:        event.Type,
			Reason:       event.Reason,
			Manual:       event.Manual,
			SoilMoisture: event.SoilMoisture,
			Threshold:    event.Threshold,
			DailyCount:   event.DailyCount,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Reason    string         `json:"reason,omitempty"`
	Config    *SystemConfig  `json:"config,omitempty"`
	Heartbeat *HeartbeatInfo `json:"heartbeat,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Config:    event.Config,
			Heartbeat: event.Heartbeat,
		},
	}
	return json.Marshal(payload)
}
