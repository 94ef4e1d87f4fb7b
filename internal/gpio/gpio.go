// Package gpio is the hardware boundary: sensor acquisition, the pump relay,
// status LEDs, the emergency-stop line and the threshold potentiometer.
// The real implementations use the Linux GPIO character device and IIO sysfs;
// fakes allow testing without hardware.
package gpio

import "github.com/smartfarm/field-controller/internal/sensor"

// Sample carries one scaled reading per channel. Disabled channels hold
// their configured default; the validator treats them as always valid.
type Sample struct {
	Soil        float64
	Temperature float64
	Humidity    float64
	Light       float64
}

// Value returns the reading for one channel.
func (s Sample) Value(ch sensor.Channel) float64 {
	switch ch {
	case sensor.ChannelSoil:
		return s.Soil
	case sensor.ChannelTemperature:
		return s.Temperature
	case sensor.ChannelHumidity:
		return s.Humidity
	case sensor.ChannelLight:
		return s.Light
	}
	return 0
}

// SensorSource acquires raw samples. ResetChannel and SampleChannel serve
// the safety supervisor's recovery path: re-initialize one channel and
// re-test it with a single fresh reading.
type SensorSource interface {
	Read() (Sample, error)
	ResetChannel(ch sensor.Channel) error
	SampleChannel(ch sensor.Channel) (float64, error)
	Close() error
}

// PumpDriver controls the irrigation pump relay. Set is idempotent: writing
// the value already on the line is a no-op for the hardware.
type PumpDriver interface {
	Set(on bool) error
	Close() error
}

// StopInput reads the emergency-stop level line.
type StopInput interface {
	Engaged() (bool, error)
}

// ThresholdControl supplies the live irrigation threshold. ok=false means
// no control surface is fitted and the configured default applies.
type ThresholdControl interface {
	Threshold() (float64, bool)
}

// StatusLEDs drives the green system-OK and red pump-active indicators.
type StatusLEDs interface {
	SetSystemOK(on bool) error
	SetPump(on bool) error
	Close() error
}

// Pin definitions (BCM numbering), matching the reference wiring.
const (
	DefaultPinRelay    = 19 // water pump relay
	DefaultPinLEDGreen = 18 // system status
	DefaultPinLEDRed   = 23 // pump active
	DefaultPinStop     = 0  // emergency stop button (optional)
)

// ADC channel indices on the IIO device.
const (
	ADCChannelSoil = 0
	ADCChannelLDR  = 3
	ADCChannelPot  = 6
)

// ScalePercent maps a raw ADC count onto 0–100%, clamped. zeroCount is the
// raw reading at 0% and fullCount at 100%; an inverted sensor (dry = max
// count) just swaps the two.
func ScalePercent(raw, zeroCount, fullCount int) float64 {
	span := fullCount - zeroCount
	if span == 0 {
		return 0
	}
	pct := float64(raw-zeroCount) / float64(span) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// NopLEDs satisfies StatusLEDs when no indicators are fitted.
type NopLEDs struct{}

func (NopLEDs) SetSystemOK(bool) error { return nil }
func (NopLEDs) SetPump(bool) error     { return nil }
func (NopLEDs) Close() error           { return nil }
