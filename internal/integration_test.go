package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/smartfarm/field-controller/internal/gpio"
	"github.com/smartfarm/field-controller/internal/irrigation"
	"github.com/smartfarm/field-controller/internal/mqtt"
	"github.com/smartfarm/field-controller/internal/safety"
	"github.com/smartfarm/field-controller/internal/sensor"
	"github.com/smartfarm/field-controller/internal/status"
)

func soilValidator(maxErrors int) *sensor.Validator {
	v := sensor.NewValidator()
	v.Register(sensor.NewChannelState(sensor.ChannelSoil, sensor.Limits{
		RangeCheck: true,
		Min:        0,
		Max:        100,
		MaxChange:  20,
	}, 3, 5, maxErrors))
	return v
}

// TestIntegrationDryCycleEndToEnd drives the full pipeline with fakes:
// validated soil readings feed the supervisor and the decision engine, and
// pump transitions come out as MQTT events.
func TestIntegrationDryCycleEndToEnd(t *testing.T) {
	sensors := gpio.NewFakeSensors([]gpio.Sample{{Soil: 12}})
	publisher := mqtt.NewFakePublisher()
	validator := soilValidator(10)
	supervisor := safety.New(safety.Config{
		MaxConsecutiveErrors: 5,
		MaxRecoveryAttempts:  3,
		RecoveryDelay:        time.Second,
		MaxPumpRuntime:       5 * time.Minute,
	}, validator, sensors)
	engine := irrigation.NewEngine(irrigation.Config{
		Duration:       5 * time.Second,
		ManualDuration: 10 * time.Second,
		Cooldown:       5 * time.Minute,
		MaxDaily:       10,
	}, time.UTC)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	threshold := 30.0

	for i := 0; i < 8; i++ {
		now := start.Add(time.Duration(i) * time.Second)

		sample, err := sensors.Read()
		if err != nil {
			t.Fatalf("step %d: read error: %v", i, err)
		}
		res := validator.Validate(sensor.ChannelSoil, sample.Soil)
		supervisor.Observe(res)
		supervisor.Check(now)

		decision := engine.Decide(irrigation.Input{
			Now:              now,
			SoilValid:        res.Valid,
			SoilPercent:      res.Value,
			Threshold:        threshold,
			Healthy:          supervisor.Healthy(),
			EmergencyStopped: supervisor.EmergencyStopped(),
			CeilingExceeded:  supervisor.RuntimeExceeded(now, engine.PumpActive(), engine.PumpStart()),
		})

		if decision.Started {
			publisher.Publish(mqtt.PumpEvent{
				Timestamp:    now,
				Type:         "PUMP_ON",
				SoilMoisture: res.Value,
				Threshold:    threshold,
				DailyCount:   engine.DailyCount(),
			})
		}
		if decision.Stopped {
			publisher.Publish(mqtt.PumpEvent{
				Timestamp:    now,
				Type:         "PUMP_OFF",
				Reason:       string(decision.Reason),
				SoilMoisture: res.Value,
				Threshold:    threshold,
				DailyCount:   engine.DailyCount(),
			})
		}
	}

	if len(publisher.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(publisher.Events))
	}
	if publisher.Events[0].Type != "PUMP_ON" {
		t.Errorf("event 0: expected PUMP_ON, got %s", publisher.Events[0].Type)
	}
	if publisher.Events[1].Type != "PUMP_OFF" {
		t.Errorf("event 1: expected PUMP_OFF, got %s", publisher.Events[1].Type)
	}
	if publisher.Events[1].Reason != string(irrigation.StopCompleted) {
		t.Errorf("event 1: expected COMPLETED, got %s", publisher.Events[1].Reason)
	}

	for i, payload := range publisher.Payloads {
		var parsed mqtt.Payload
		if err := json.Unmarshal(payload, &parsed); err != nil {
			t.Errorf("payload %d: invalid JSON: %v", i, err)
		}
		if parsed.Irrigation.Timestamp == "" {
			t.Errorf("payload %d: missing timestamp", i)
		}
		if parsed.Irrigation.Event == "" {
			t.Errorf("payload %d: missing event", i)
		}
		if parsed.Irrigation.DailyCount != 1 {
			t.Errorf("payload %d: daily count = %d, want 1", i, parsed.Irrigation.DailyCount)
		}
	}
}

// TestIntegrationPumpEventPayloadFormat verifies the exact JSON structure.
func TestIntegrationPumpEventPayloadFormat(t *testing.T) {
	publisher := mqtt.NewFakePublisher()
	publisher.Publish(mqtt.PumpEvent{
		Timestamp:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Type:         "PUMP_ON",
		SoilMoisture: 22.5,
		Threshold:    30,
		DailyCount:   1,
	})

	expected := `{"irrigation":{"timestamp":"2026-03-01T09:00:00Z","event":"PUMP_ON","soil_moisture":22.5,"threshold":30,"daily_irrigation_count":1}}`

	if string(publisher.Payloads[0]) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(publisher.Payloads[0]), expected)
	}
}

// TestIntegrationDisconnectAndRecovery walks a channel through the full fault
// arc: repeated rejections, disconnect declaration, automatic recovery via
// the hardware resetter, and the delayed return to healthy.
func TestIntegrationDisconnectAndRecovery(t *testing.T) {
	sensors := gpio.NewFakeSensors([]gpio.Sample{{Soil: 50}})
	sensors.RecoverySample = 50
	validator := soilValidator(3)
	supervisor := safety.New(safety.Config{
		MaxConsecutiveErrors: 3,
		MaxRecoveryAttempts:  3,
		RecoveryDelay:        time.Second,
		MaxPumpRuntime:       5 * time.Minute,
	}, validator, sensors)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Three out-of-range readings: the third crosses both the health limit
	// and the disconnect threshold.
	for i := 0; i < 3; i++ {
		res := validator.Validate(sensor.ChannelSoil, 150)
		supervisor.Observe(res)
		if i == 2 && !res.Disconnected {
			t.Fatal("third rejection should declare the channel disconnected")
		}
	}

	// The check pass flags unhealthy and immediately attempts recovery,
	// which succeeds against the scripted re-test sample.
	supervisor.Check(start)
	if supervisor.Healthy() {
		t.Error("system should be unhealthy after the error streak")
	}
	if len(sensors.Resets) != 1 || sensors.Resets[0] != sensor.ChannelSoil {
		t.Fatalf("expected one soil reset, got %v", sensors.Resets)
	}

	// Health returns one pass later.
	supervisor.Check(start.Add(time.Second))
	if !supervisor.Healthy() {
		t.Error("system should re-heal after successful recovery")
	}

	// The recovered channel accepts readings again.
	res := validator.Validate(sensor.ChannelSoil, 52)
	if !res.Valid {
		t.Errorf("post-recovery reading rejected: %+v", res)
	}
}

// TestIntegrationStatusEventRoundTrip verifies a heartbeat built from the
// tracker carries the controller state in the status envelope.
func TestIntegrationStatusEventRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(start, status.Config{MaxDaily: 10})

	var readings [sensor.NumChannels]status.ChannelReading
	readings[sensor.ChannelSoil] = status.ChannelReading{Value: 27.5, Valid: true}
	tracker.Update(status.Cycle{
		Channels:      readings,
		Phase:         irrigation.PhaseIrrigating,
		PumpActive:    true,
		DailyCount:    2,
		Threshold:     30,
		SystemHealthy: true,
	})

	publisher := mqtt.NewFakePublisher()
	snap := tracker.Snapshot()
	publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	})

	var parsed struct {
		Status map[string]json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	var event string
	if err := json.Unmarshal(parsed.Status["event"], &event); err != nil || event != "HEARTBEAT" {
		t.Errorf("event = %q (%v), want HEARTBEAT", event, err)
	}
	var pump bool
	if err := json.Unmarshal(parsed.Status["pump_active"], &pump); err != nil || !pump {
		t.Errorf("pump_active = %v (%v), want true", pump, err)
	}
	var daily int
	if err := json.Unmarshal(parsed.Status["daily_irrigation_count"], &daily); err != nil || daily != 2 {
		t.Errorf("daily_irrigation_count = %d (%v), want 2", daily, err)
	}
}
