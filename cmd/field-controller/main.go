// Command field-controller runs the irrigation control loop: it polls the
// field sensors, validates their readings, decides when to water, and
// enforces the safety limits. State is published to MQTT and served over
// HTTP; telemetry goes to ThingSpeak when an API key is configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smartfarm/field-controller/internal/cloud"
	"github.com/smartfarm/field-controller/internal/config"
	"github.com/smartfarm/field-controller/internal/gpio"
	"github.com/smartfarm/field-controller/internal/irrigation"
	"github.com/smartfarm/field-controller/internal/metrics"
	"github.com/smartfarm/field-controller/internal/mqtt"
	"github.com/smartfarm/field-controller/internal/safety"
	"github.com/smartfarm/field-controller/internal/sensor"
	"github.com/smartfarm/field-controller/internal/status"
	"github.com/smartfarm/field-controller/internal/watchdog"
	"github.com/smartfarm/field-controller/internal/web"
)

func main() {
	cfg := config.Default()
	cfg.ApplyEnv()

	poll := flag.Duration("poll", cfg.CycleInterval, "control cycle interval")
	threshold := flag.Float64("threshold", cfg.ThresholdPercent, "soil moisture threshold (%)")
	duration := flag.Duration("duration", cfg.IrrigationDuration, "watering duration per event")
	cooldown := flag.Duration("cooldown", cfg.Cooldown, "minimum gap between waterings")
	maxDaily := flag.Int("max-daily", cfg.MaxDailyIrrigations, "max waterings per day")
	maxRuntime := flag.Duration("max-runtime", cfg.MaxPumpRuntime, "absolute pump runtime ceiling")
	heartbeat := flag.Duration("heartbeat", cfg.Heartbeat, "heartbeat interval (0 to disable)")
	broker := flag.String("broker", cfg.Broker, "MQTT broker address")
	httpAddr := flag.String("http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	iioDir := flag.String("iio", gpio.DefaultIIODir, "IIO sysfs device directory")
	pinRelay := flag.Int("pin-relay", gpio.DefaultPinRelay, "BCM pin for the pump relay")
	pinStop := flag.Int("pin-stop", gpio.DefaultPinStop, "BCM pin for the emergency stop button (-1 to disable)")
	pinGreen := flag.Int("pin-led-green", gpio.DefaultPinLEDGreen, "BCM pin for the system status LED")
	pinRed := flag.Int("pin-led-red", gpio.DefaultPinLEDRed, "BCM pin for the pump LED")
	leds := flag.Bool("leds", true, "drive the status LEDs")
	enableDHT := flag.Bool("dht", false, "enable the temperature/humidity sensor")
	enableLight := flag.Bool("light", false, "enable the light sensor")
	pot := flag.Bool("pot", false, "read the threshold from the potentiometer dial")
	wdDevice := flag.String("watchdog", "", "hardware watchdog device (empty to disable)")
	tsInterval := flag.Duration("thingspeak-interval", cfg.ThingSpeakInterval, "ThingSpeak upload interval")
	readOnce := flag.Bool("read-once", false, "print one sensor sample and exit")

	flag.Parse()

	cfg.CycleInterval = *poll
	cfg.ThresholdPercent = *threshold
	cfg.IrrigationDuration = *duration
	cfg.Cooldown = *cooldown
	cfg.MaxDailyIrrigations = *maxDaily
	cfg.MaxPumpRuntime = *maxRuntime
	cfg.Heartbeat = *heartbeat
	cfg.Broker = *broker
	cfg.HTTPAddr = *httpAddr
	cfg.ThingSpeakInterval = *tsInterval
	cfg.Temperature.Enabled = *enableDHT
	cfg.Humidity.Enabled = *enableDHT
	cfg.Light.Enabled = *enableLight

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := run(cfg, *iioDir, *pinRelay, *pinStop, *pinGreen, *pinRed, *leds, *pot, *wdDevice, *readOnce); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, iioDir string, pinRelay, pinStop, pinGreen, pinRed int, useLEDs, usePot bool, wdDevice string, readOnce bool) error {
	adc := gpio.NewADC(iioDir)
	sensors := gpio.NewIIOSensors(adc, gpio.SensorsConfig{
		SoilDry:            cfg.SoilDryValue,
		SoilWet:            cfg.SoilWetValue,
		LightDark:          cfg.LightDarkValue,
		LightBright:        cfg.LightBrightValue,
		EnableDHT:          cfg.Temperature.Enabled,
		EnableLight:        cfg.Light.Enabled,
		TemperatureDefault: cfg.Temperature.Default,
		HumidityDefault:    cfg.Humidity.Default,
		LightDefault:       cfg.Light.Default,
	})
	defer sensors.Close()

	if readOnce {
		s, err := sensors.Read()
		if err != nil {
			return fmt.Errorf("read sensors: %w", err)
		}
		fmt.Printf("soil=%.1f%% temp=%.1fC humidity=%.1f%% light=%.1f%%\n",
			s.Soil, s.Temperature, s.Humidity, s.Light)
		return nil
	}

	pump, err := gpio.NewRealPump(pinRelay)
	if err != nil {
		return fmt.Errorf("init pump relay: %w", err)
	}
	defer pump.Close()

	var stop gpio.StopInput
	var stopEvents <-chan struct{}
	if pinStop >= 0 {
		realStop, err := gpio.NewRealStop(pinStop)
		if err != nil {
			return fmt.Errorf("init emergency stop input: %w", err)
		}
		defer realStop.Close()
		stop = realStop
		stopEvents = realStop.Events()
	}

	var statusLEDs gpio.StatusLEDs = gpio.NopLEDs{}
	if useLEDs {
		realLEDs, err := gpio.NewRealLEDs(pinGreen, pinRed)
		if err != nil {
			return fmt.Errorf("init status LEDs: %w", err)
		}
		defer realLEDs.Close()
		statusLEDs = realLEDs
	}

	var control gpio.ThresholdControl
	if usePot {
		control = gpio.NewPotentiometer(adc, gpio.ADCChannelPot,
			gpio.NewSmoother(cfg.PotSmoothingSamples, cfg.PotHysteresis),
			cfg.PotMinThreshold, cfg.PotMaxThreshold)
	}

	var feeder watchdog.Feeder = watchdog.Nop{}
	if wdDevice != "" {
		wd, err := watchdog.Open(wdDevice)
		if err != nil {
			return fmt.Errorf("init watchdog: %w", err)
		}
		defer wd.Close()
		feeder = wd
	}

	publisher, err := mqtt.NewRealPublisher(cfg.Broker, "field-controller")
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	var uploader *cloud.Uploader
	if cfg.ThingSpeakKey != "" {
		uploader = cloud.New(cloud.Config{APIKey: cfg.ThingSpeakKey})
	}

	met := metrics.NewMetrics()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:     cfg.CycleInterval.Milliseconds(),
		DurationMs: cfg.IrrigationDuration.Milliseconds(),
		CooldownMs: cfg.Cooldown.Milliseconds(),
		MaxDaily:   cfg.MaxDailyIrrigations,
		Broker:     cfg.Broker,
		HTTPAddr:   cfg.HTTPAddr,
	})

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	controls := &controlFlags{}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, controls, met.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: poll=%v threshold=%.1f%% duration=%v cooldown=%v max-daily=%d broker=%s",
		cfg.CycleInterval, cfg.ThresholdPercent, cfg.IrrigationDuration, cfg.Cooldown,
		cfg.MaxDailyIrrigations, cfg.Broker)

	ticker := time.NewTicker(cfg.CycleInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	validator := buildValidator(cfg)
	supervisor := safety.New(safety.Config{
		MaxConsecutiveErrors: cfg.MaxSensorErrors,
		MaxRecoveryAttempts:  cfg.RecoveryAttempts,
		RecoveryDelay:        cfg.RecoveryDelay,
		MaxPumpRuntime:       cfg.MaxPumpRuntime,
	}, validator, sensors)

	d := deps{
		sensors:    sensors,
		pump:       pump,
		stop:       stop,
		leds:       statusLEDs,
		control:    control,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		validator:  validator,
		engine:     irrigation.NewEngine(engineConfig(cfg), nil),
		supervisor: supervisor,
		metrics:    met,
		feeder:     feeder,
		uploader:   uploader,
	}

	return runLoop(d, cfg, controls, time.Now, ticker.C, sigCh, stopEvents)
}

// controlFlags carries requests from HTTP handlers into the control loop.
// Set from handler goroutines, consumed once per cycle.
type controlFlags struct {
	irrigate atomic.Bool
	reset    atomic.Bool
}

func (c *controlFlags) RequestManualIrrigation() { c.irrigate.Store(true) }
func (c *controlFlags) RequestReset()            { c.reset.Store(true) }

// deps bundles the loop's collaborators so tests can swap in fakes.
type deps struct {
	sensors    gpio.SensorSource
	pump       gpio.PumpDriver
	stop       gpio.StopInput // nil when no stop button is fitted
	leds       gpio.StatusLEDs
	control    gpio.ThresholdControl // nil when no dial is fitted
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	validator  *sensor.Validator
	engine     *irrigation.Engine
	supervisor *safety.Supervisor
	metrics    *metrics.Metrics
	feeder     watchdog.Feeder
	uploader   *cloud.Uploader
}

// buildValidator registers validation state for each enabled channel.
func buildValidator(cfg config.Config) *sensor.Validator {
	v := sensor.NewValidator()
	channels := []struct {
		ch sensor.Channel
		cc config.ChannelConfig
	}{
		{sensor.ChannelSoil, cfg.Soil},
		{sensor.ChannelTemperature, cfg.Temperature},
		{sensor.ChannelHumidity, cfg.Humidity},
		{sensor.ChannelLight, cfg.Light},
	}
	for _, c := range channels {
		if !c.cc.Enabled {
			v.SetDefault(c.ch, c.cc.Default)
			continue
		}
		v.Register(sensor.NewChannelState(c.ch, sensor.Limits{
			RangeCheck: c.cc.RangeCheck,
			Min:        c.cc.Min,
			Max:        c.cc.Max,
			MaxChange:  c.cc.MaxChange,
		}, cfg.ConsistencyWindow, cfg.ConsistencyThreshold, cfg.DisconnectThreshold))
	}
	return v
}

func engineConfig(cfg config.Config) irrigation.Config {
	return irrigation.Config{
		Duration:       cfg.IrrigationDuration,
		ManualDuration: cfg.ManualDuration,
		Cooldown:       cfg.Cooldown,
		MaxDaily:       cfg.MaxDailyIrrigations,
	}
}

func runLoop(d deps, cfg config.Config, controls *controlFlags, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, stopEvents <-chan struct{}) error {
	var counts status.Counts
	var lastHeartbeat time.Time
	var lastUpload time.Time
	var lastSample gpio.Sample
	prevRecoveryAttempts := 0

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			// The relay must not stay energized across a restart.
			if err := d.pump.Set(false); err != nil {
				log.Printf("pump off on shutdown: %v", err)
			}

			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if d.tracker != nil {
				if d.mqttStatus != nil {
					d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
				}
				snap := d.tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-stopEvents:
			// Button edge between ticks: latch immediately, cut the pump on
			// the next cycle at the latest.
			d.supervisor.TripEmergencyStop()

		case <-tick:
			t := now()
			counts.Cycles++

			if err := d.feeder.Feed(); err != nil {
				log.Printf("watchdog feed: %v", err)
			}

			if controls.reset.Swap(false) {
				d.supervisor.ClearEmergencyStop()
				d.supervisor.ManualReset()
			}

			if d.stop != nil {
				engaged, err := d.stop.Engaged()
				if err != nil {
					log.Printf("stop input read error: %v", err)
				} else if engaged {
					d.supervisor.TripEmergencyStop()
				}
			}

			// Acquire and validate. A hardware read failure counts toward
			// the health limit; the cycle still runs so an active pump can
			// be stopped.
			var readings [sensor.NumChannels]status.ChannelReading
			var soilRes sensor.Result
			sample, err := d.sensors.Read()
			if err != nil {
				log.Printf("sensor read error: %v", err)
				d.supervisor.ObserveReadError()
				sample = lastSample
				soilRes = sensor.Result{Channel: sensor.ChannelSoil, Valid: false}
			} else {
				lastSample = sample
				for _, ch := range sensor.Channels {
					res := d.validator.Validate(ch, sample.Value(ch))
					// Disabled channels always validate; feeding them to the
					// supervisor would mask a failing enabled channel's streak.
					if d.validator.Enabled(ch) {
						d.supervisor.Observe(res)
					}
					readings[ch] = status.ChannelReading{
						Value:        res.Value,
						Valid:        res.Valid,
						Reason:       res.Reason,
						Disconnected: res.Disconnected,
					}
					if !res.Valid {
						counts.Rejections[ch]++
						d.metrics.SensorRejected(ch.String(), string(res.Reason))
						log.Printf("sensor: %s reading %.1f rejected (%s)", ch, res.Value, res.Reason)
					}
					if ch == sensor.ChannelSoil {
						soilRes = res
					}
				}
			}

			d.supervisor.Check(t)
			if ra := d.supervisor.RecoveryAttempts(); ra > prevRecoveryAttempts {
				d.metrics.RecoveryAttempt()
			}
			prevRecoveryAttempts = d.supervisor.RecoveryAttempts()

			threshold := cfg.ThresholdPercent
			if d.control != nil {
				if v, ok := d.control.Threshold(); ok {
					threshold = v
				}
			}

			ceiling := d.supervisor.RuntimeExceeded(t, d.engine.PumpActive(), d.engine.PumpStart())

			decision := d.engine.Decide(irrigation.Input{
				Now:              t,
				SoilValid:        soilRes.Valid,
				SoilPercent:      soilRes.Value,
				Threshold:        threshold,
				Healthy:          d.supervisor.Healthy(),
				EmergencyStopped: d.supervisor.EmergencyStopped(),
				CeilingExceeded:  ceiling,
				ManualRequest:    controls.irrigate.Swap(false),
			})

			if err := d.pump.Set(decision.PumpOn); err != nil {
				log.Printf("pump relay error: %v", err)
			}

			if decision.Started {
				counts.PumpStarts++
				d.metrics.PumpStarted(decision.Manual)
				log.Printf("pump ON (manual=%v soil=%.1f%% threshold=%.1f%% today=%d/%d)",
					decision.Manual, soilRes.Value, threshold, d.engine.DailyCount(), cfg.MaxDailyIrrigations)
				publishPumpEvent(d.publisher, mqtt.PumpEvent{
					Timestamp:    t,
					Type:         "PUMP_ON",
					Manual:       decision.Manual,
					SoilMoisture: soilRes.Value,
					Threshold:    threshold,
					DailyCount:   d.engine.DailyCount(),
				})
			}
			if decision.Stopped {
				if decision.Reason == irrigation.StopCompleted {
					counts.NormalStops++
				} else {
					counts.ForcedStops++
				}
				d.metrics.PumpStopped(string(decision.Reason))
				log.Printf("pump OFF (%s)", decision.Reason)
				publishPumpEvent(d.publisher, mqtt.PumpEvent{
					Timestamp:    t,
					Type:         "PUMP_OFF",
					Reason:       string(decision.Reason),
					SoilMoisture: soilRes.Value,
					Threshold:    threshold,
					DailyCount:   d.engine.DailyCount(),
				})
			}

			healthyAndClear := d.supervisor.Healthy() && !d.supervisor.EmergencyStopped()
			if err := d.leds.SetSystemOK(healthyAndClear); err != nil {
				log.Printf("status LED error: %v", err)
			}
			if err := d.leds.SetPump(decision.PumpOn); err != nil {
				log.Printf("pump LED error: %v", err)
			}

			if d.tracker != nil {
				if d.mqttStatus != nil {
					d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
				}
				d.tracker.Update(status.Cycle{
					Channels:         readings,
					Phase:            decision.Phase,
					PumpActive:       decision.PumpOn,
					DailyCount:       d.engine.DailyCount(),
					Threshold:        threshold,
					SystemHealthy:    d.supervisor.Healthy(),
					EmergencyStopped: d.supervisor.EmergencyStopped(),
					RecoveryAttempts: d.supervisor.RecoveryAttempts(),
					Counts:           counts,
				})
			}

			d.metrics.Cycle()
			d.metrics.ObserveCycleState(d.supervisor.Healthy(), d.supervisor.EmergencyStopped(),
				decision.PumpOn, soilRes.Value, threshold, d.engine.DailyCount())

			if cfg.Heartbeat > 0 && (lastHeartbeat.IsZero() || t.Sub(lastHeartbeat) >= cfg.Heartbeat) {
				lastHeartbeat = t
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if d.tracker != nil {
					snap := d.tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := d.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			if d.uploader != nil && t.Sub(lastUpload) >= cfg.ThingSpeakInterval {
				lastUpload = t
				tel := cloud.Telemetry{
					Temperature:  sample.Temperature,
					Humidity:     sample.Humidity,
					SoilMoisture: soilRes.Value,
					Light:        sample.Light,
					PumpActive:   decision.PumpOn,
					DailyCount:   d.engine.DailyCount(),
				}
				// Upload off the loop goroutine: retries can take seconds.
				go func() {
					if err := d.uploader.Upload(tel); err != nil {
						log.Printf("thingspeak upload: %v", err)
					}
					d.metrics.SetCircuitBreakerState("thingspeak", float64(d.uploader.State()))
				}()
			}
		}
	}
}

func publishPumpEvent(pub mqtt.Publisher, event mqtt.PumpEvent) {
	if err := pub.Publish(event); err != nil {
		log.Printf("publish error: %v", err)
	}
}
