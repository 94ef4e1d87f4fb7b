package status

import (
	"encoding/json"
	"time"

	"github.com/smartfarm/field-controller/internal/sensor"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string                `json:"event,omitempty"`
	Reason           string                `json:"reason,omitempty"`
	Phase            string                `json:"phase"`
	PumpActive       bool                  `json:"pump_active"`
	DailyCount       int                   `json:"daily_irrigation_count"`
	Threshold        float64               `json:"threshold"`
	SystemHealthy    bool                  `json:"system_healthy"`
	EmergencyStopped bool                  `json:"emergency_stopped"`
	RecoveryAttempts int                   `json:"recovery_attempts"`
	Sensors          map[string]SensorJSON `json:"sensors"`
	UptimeSeconds    int64                 `json:"uptime_seconds"`
	StartTime        string                `json:"start_time"`
	Timestamp        string                `json:"timestamp"`
	MQTT             MQTTStatus            `json:"mqtt"`
	Counts           CountsJSON            `json:"event_counts"`
	Config           ConfigJSON            `json:"config"`
}

// SensorJSON is the JSON representation of one channel reading.
type SensorJSON struct {
	Value        float64 `json:"value"`
	Valid        bool    `json:"valid"`
	Reason       string  `json:"reason,omitempty"`
	Disconnected bool    `json:"disconnected,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Cycles      int `json:"cycles"`
	PumpStarts  int `json:"pump_starts"`
	NormalStops int `json:"normal_stops"`
	ForcedStops int `json:"forced_stops"`
	Rejections  int `json:"rejections"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	PollMs     int64  `json:"poll_ms"`
	DurationMs int64  `json:"irrigation_duration_ms"`
	CooldownMs int64  `json:"cooldown_ms"`
	MaxDaily   int    `json:"max_daily_irrigations"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	phase := string(snap.Phase)
	if phase == "" {
		phase = "UNKNOWN"
	}

	sensors := make(map[string]SensorJSON, len(sensor.Channels))
	for _, ch := range sensor.Channels {
		r := snap.Channels[ch]
		sensors[ch.String()] = SensorJSON{
			Value:        r.Value,
			Valid:        r.Valid,
			Reason:       string(r.Reason),
			Disconnected: r.Disconnected,
		}
	}

	return StatusInner{
		Phase:            phase,
		PumpActive:       snap.PumpActive,
		DailyCount:       snap.DailyCount,
		Threshold:        snap.Threshold,
		SystemHealthy:    snap.SystemHealthy,
		EmergencyStopped: snap.EmergencyStopped,
		RecoveryAttempts: snap.RecoveryAttempts,
		Sensors:          sensors,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:      snap.Counts.Cycles,
			PumpStarts:  snap.Counts.PumpStarts,
			NormalStops: snap.Counts.NormalStops,
			ForcedStops: snap.Counts.ForcedStops,
			Rejections:  snap.Counts.TotalRejections(),
		},
		Config: ConfigJSON{
			PollMs:     snap.Config.PollMs,
			DurationMs: snap.Config.DurationMs,
			CooldownMs: snap.Config.CooldownMs,
			MaxDaily:   snap.Config.MaxDaily,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
