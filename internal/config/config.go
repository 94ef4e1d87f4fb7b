// Package config holds the load-time configuration for the field controller.
// Values are fixed at startup: the only setting that can move at runtime is
// the irrigation threshold, via an optional control collaborator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ChannelConfig describes validation limits for one sensor channel.
type ChannelConfig struct {
	Enabled    bool
	RangeCheck bool    // when false the range check always passes
	Min        float64 // lower bound after scaling
	Max        float64 // upper bound after scaling
	MaxChange  float64 // max delta vs last accepted reading; 0 disables
	Default    float64 // reported value while the channel is disabled
}

// Config is the complete controller configuration.
type Config struct {
	// Irrigation behaviour
	ThresholdPercent    float64
	IrrigationDuration  time.Duration
	Cooldown            time.Duration
	MaxDailyIrrigations int
	ManualDuration      time.Duration

	// Cycle cadence
	CycleInterval time.Duration
	Heartbeat     time.Duration

	// Safety limits
	MaxPumpRuntime      time.Duration
	MaxSensorErrors     int
	RecoveryAttempts    int
	RecoveryDelay       time.Duration
	DisconnectThreshold int

	// Consistency checking (shared across channels)
	ConsistencyWindow    int
	ConsistencyThreshold float64

	// Per-channel validation
	Soil        ChannelConfig
	Temperature ChannelConfig
	Humidity    ChannelConfig
	Light       ChannelConfig

	// ADC calibration (raw counts)
	SoilDryValue     int
	SoilWetValue     int
	LightDarkValue   int
	LightBrightValue int

	// Potentiometer threshold control
	PotMinThreshold     float64
	PotMaxThreshold     float64
	PotSmoothingSamples int
	PotHysteresis       float64

	// Collaborators
	Broker             string
	HTTPAddr           string
	ThingSpeakKey      string
	ThingSpeakInterval time.Duration
}

// Default returns the configuration matching the stock firmware settings.
// Temperature, humidity and light start disabled; soil moisture is always on.
func Default() Config {
	return Config{
		ThresholdPercent:    30,
		IrrigationDuration:  5 * time.Second,
		Cooldown:            5 * time.Minute,
		MaxDailyIrrigations: 10,
		ManualDuration:      10 * time.Second,

		CycleInterval: 5 * time.Second,
		Heartbeat:     time.Minute,

		MaxPumpRuntime:      5 * time.Minute,
		MaxSensorErrors:     5,
		RecoveryAttempts:    3,
		RecoveryDelay:       5 * time.Second,
		DisconnectThreshold: 10,

		ConsistencyWindow:    3,
		ConsistencyThreshold: 5,

		Soil: ChannelConfig{
			Enabled:    true,
			RangeCheck: true,
			Min:        0,
			Max:        100,
			MaxChange:  20,
		},
		Temperature: ChannelConfig{
			RangeCheck: true,
			Min:        -10,
			Max:        60,
			Default:    20,
		},
		Humidity: ChannelConfig{
			RangeCheck: true,
			Min:        0,
			Max:        100,
			Default:    50,
		},
		Light: ChannelConfig{
			RangeCheck: true,
			Min:        0,
			Max:        100,
			MaxChange:  30,
			Default:    50,
		},

		SoilDryValue:     4095,
		SoilWetValue:     0,
		LightDarkValue:   4095,
		LightBrightValue: 0,

		PotMinThreshold:     5,
		PotMaxThreshold:     50,
		PotSmoothingSamples: 5,
		PotHysteresis:       2,

		Broker:             "tcp://192.168.1.200:1883",
		HTTPAddr:           ":8080",
		ThingSpeakInterval: time.Minute,
	}
}

// Env var names recognized by ApplyEnv. Flags take precedence: main applies
// env first, then flags.
const (
	envThreshold     = "SOIL_MOISTURE_THRESHOLD"
	envBroker        = "MQTT_BROKER"
	envThingSpeakKey = "THINGSPEAK_API_KEY"
	envHTTPAddr      = "HTTP_ADDR"
)

// ApplyEnv overrides settings from the environment where set.
func (c *Config) ApplyEnv() {
	if v := getenvFloat(envThreshold); v != nil {
		c.ThresholdPercent = *v
	}
	if v := strings.TrimSpace(os.Getenv(envBroker)); v != "" {
		c.Broker = v
	}
	if v := strings.TrimSpace(os.Getenv(envThingSpeakKey)); v != "" {
		c.ThingSpeakKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envHTTPAddr)); v != "" {
		c.HTTPAddr = v
	}
}

// Validate rejects configurations the firmware refused at compile time.
func (c *Config) Validate() error {
	if c.ThresholdPercent < 0 || c.ThresholdPercent > 100 {
		return fmt.Errorf("threshold must be between 0 and 100, got %.1f", c.ThresholdPercent)
	}
	if c.IrrigationDuration < time.Second {
		return fmt.Errorf("irrigation duration must be at least 1s, got %v", c.IrrigationDuration)
	}
	if c.MaxPumpRuntime < c.IrrigationDuration {
		return fmt.Errorf("max pump runtime %v is shorter than irrigation duration %v", c.MaxPumpRuntime, c.IrrigationDuration)
	}
	if c.MaxDailyIrrigations < 1 {
		return fmt.Errorf("max daily irrigations must be positive, got %d", c.MaxDailyIrrigations)
	}
	if c.ConsistencyWindow < 1 {
		return fmt.Errorf("consistency window must be positive, got %d", c.ConsistencyWindow)
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive, got %v", c.CycleInterval)
	}
	if c.Cooldown < time.Minute {
		// Not fatal in the firmware either, just a bad idea.
		fmt.Fprintf(os.Stderr, "warning: cooldown %v is under 1 minute, may overwater\n", c.Cooldown)
	}
	return nil
}

func getenvFloat(key string) *float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
