package gpio

import (
	"errors"

	"github.com/smartfarm/field-controller/internal/sensor"
)

// FakeSensors is a test double that returns scripted samples.
type FakeSensors struct {
	// Samples contains scripted readings. Each call to Read() consumes the
	// next one; when exhausted, the last sample repeats.
	Samples []Sample

	// ReadError, if set, is returned by Read().
	ReadError error

	// RecoverySample is returned by SampleChannel (the recovery re-test).
	RecoverySample float64

	// ResetError, if set, is returned by ResetChannel.
	ResetError error

	// Resets records the channels passed to ResetChannel.
	Resets []sensor.Channel

	// Closed tracks if Close was called.
	Closed bool

	index int
}

// NewFakeSensors creates a FakeSensors with the given samples.
func NewFakeSensors(samples []Sample) *FakeSensors {
	return &FakeSensors{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeSensors) Read() (Sample, error) {
	if f.ReadError != nil {
		return Sample{}, f.ReadError
	}
	if len(f.Samples) == 0 {
		return Sample{}, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// ResetChannel records the reset request.
func (f *FakeSensors) ResetChannel(ch sensor.Channel) error {
	f.Resets = append(f.Resets, ch)
	return f.ResetError
}

// SampleChannel returns the scripted recovery sample.
func (f *FakeSensors) SampleChannel(ch sensor.Channel) (float64, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.RecoverySample, nil
}

// Close marks the source as closed.
func (f *FakeSensors) Close() error {
	f.Closed = true
	return nil
}

// FakePump records relay commands for test assertions.
type FakePump struct {
	// On is the current commanded state.
	On bool

	// SetCalls records every Set invocation, including redundant ones —
	// tests use it to verify the caller's idempotence expectations.
	SetCalls []bool

	// SetError, if set, is returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePump creates a FakePump, initially off.
func NewFakePump() *FakePump {
	return &FakePump{}
}

// Set records the command.
func (f *FakePump) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.SetCalls = append(f.SetCalls, on)
	f.On = on
	return nil
}

// Close marks the pump as closed.
func (f *FakePump) Close() error {
	f.Closed = true
	return nil
}

// FakeStop is a settable emergency-stop level.
type FakeStop struct {
	Level bool
	Err   error
}

// Engaged returns the scripted level.
func (f *FakeStop) Engaged() (bool, error) {
	return f.Level, f.Err
}

// FakeThreshold is a scriptable threshold control.
type FakeThreshold struct {
	Value float64
	OK    bool
}

// Threshold returns the scripted dial value.
func (f *FakeThreshold) Threshold() (float64, bool) {
	return f.Value, f.OK
}

// FakeLEDs records indicator states.
type FakeLEDs struct {
	SystemOK bool
	Pump     bool
	Closed   bool
}

func (f *FakeLEDs) SetSystemOK(on bool) error { f.SystemOK = on; return nil }
func (f *FakeLEDs) SetPump(on bool) error     { f.Pump = on; return nil }
func (f *FakeLEDs) Close() error              { f.Closed = true; return nil }
