package gpio

import (
	"fmt"

	"github.com/smartfarm/field-controller/internal/sensor"
)

// SensorsConfig describes which channels are fitted and how raw counts map
// onto physical units.
type SensorsConfig struct {
	// Calibration (raw counts)
	SoilDry     int // count when completely dry → 0%
	SoilWet     int // count when completely wet → 100%
	LightDark   int
	LightBright int

	// Optional channels
	EnableDHT   bool // temperature + humidity
	EnableLight bool

	// Values reported for channels that are not fitted
	TemperatureDefault float64
	HumidityDefault    float64
	LightDefault       float64
}

// IIOSensors reads the soil/light ADC channels and the DHT temperature and
// humidity attributes from IIO sysfs.
type IIOSensors struct {
	adc *ADC
	cfg SensorsConfig
}

// NewIIOSensors creates a sensor source over the given ADC.
func NewIIOSensors(adc *ADC, cfg SensorsConfig) *IIOSensors {
	return &IIOSensors{adc: adc, cfg: cfg}
}

// Read acquires one scaled sample per channel. Channels that are not fitted
// report their configured defaults.
func (s *IIOSensors) Read() (Sample, error) {
	out := Sample{
		Temperature: s.cfg.TemperatureDefault,
		Humidity:    s.cfg.HumidityDefault,
		Light:       s.cfg.LightDefault,
	}

	soilRaw, err := s.adc.ReadRaw(ADCChannelSoil)
	if err != nil {
		return out, fmt.Errorf("soil: %w", err)
	}
	out.Soil = ScalePercent(soilRaw, s.cfg.SoilDry, s.cfg.SoilWet)

	if s.cfg.EnableDHT {
		t, err := s.adc.ReadAttr("in_temp_input")
		if err != nil {
			return out, fmt.Errorf("temperature: %w", err)
		}
		h, err := s.adc.ReadAttr("in_humidityrelative_input")
		if err != nil {
			return out, fmt.Errorf("humidity: %w", err)
		}
		out.Temperature = float64(t) / 1000
		out.Humidity = float64(h) / 1000
	}

	if s.cfg.EnableLight {
		raw, err := s.adc.ReadRaw(ADCChannelLDR)
		if err != nil {
			return out, fmt.Errorf("light: %w", err)
		}
		out.Light = ScalePercent(raw, s.cfg.LightDark, s.cfg.LightBright)
	}

	return out, nil
}

// ResetChannel re-initializes one channel. IIO devices re-sample on every
// read, so re-init amounts to a discarded settle read.
func (s *IIOSensors) ResetChannel(ch sensor.Channel) error {
	_, err := s.SampleChannel(ch)
	return err
}

// SampleChannel takes one fresh scaled reading from a single channel.
func (s *IIOSensors) SampleChannel(ch sensor.Channel) (float64, error) {
	switch ch {
	case sensor.ChannelSoil:
		raw, err := s.adc.ReadRaw(ADCChannelSoil)
		if err != nil {
			return 0, err
		}
		return ScalePercent(raw, s.cfg.SoilDry, s.cfg.SoilWet), nil
	case sensor.ChannelTemperature:
		v, err := s.adc.ReadAttr("in_temp_input")
		if err != nil {
			return 0, err
		}
		return float64(v) / 1000, nil
	case sensor.ChannelHumidity:
		v, err := s.adc.ReadAttr("in_humidityrelative_input")
		if err != nil {
			return 0, err
		}
		return float64(v) / 1000, nil
	case sensor.ChannelLight:
		raw, err := s.adc.ReadRaw(ADCChannelLDR)
		if err != nil {
			return 0, err
		}
		return ScalePercent(raw, s.cfg.LightDark, s.cfg.LightBright), nil
	}
	return 0, fmt.Errorf("unknown channel %d", ch)
}

// Close releases nothing: sysfs files are opened per read.
func (s *IIOSensors) Close() error { return nil }

// Potentiometer is a ThresholdControl backed by an ADC channel, smoothed and
// mapped onto the configured threshold range.
type Potentiometer struct {
	adc      *ADC
	channel  int
	smoother *Smoother
	min, max float64
}

// NewPotentiometer creates the dial control. rawMax is the full-scale ADC
// count (4095 for a 12-bit converter).
func NewPotentiometer(adc *ADC, channel int, smoother *Smoother, min, max float64) *Potentiometer {
	return &Potentiometer{adc: adc, channel: channel, smoother: smoother, min: min, max: max}
}

// Threshold reads the dial. A read failure reports ok=false so the caller
// falls back to the configured default rather than acting on garbage.
func (p *Potentiometer) Threshold() (float64, bool) {
	raw, err := p.adc.ReadRaw(p.channel)
	if err != nil {
		return 0, false
	}
	pct := ScalePercent(raw, 0, 4095)
	return MapThreshold(p.smoother.Add(pct), p.min, p.max), true
}
