//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPump drives the pump relay through the Linux GPIO character device.
// The last commanded value is tracked so repeated Set calls with the same
// value never touch the hardware.
type RealPump struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	on   bool
	set  bool
}

// NewRealPump requests the relay line as output, initially off.
func NewRealPump(pin int) (*RealPump, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &RealPump{chip: chip, line: line}, nil
}

// Set switches the relay. Idempotent.
func (p *RealPump) Set(on bool) error {
	if p.set && p.on == on {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	p.on = on
	p.set = true
	return nil
}

// Close forces the relay off before releasing the line, so a controller
// shutdown can never leave the pump running.
func (p *RealPump) Close() error {
	var errs []error
	if p.line != nil {
		if err := p.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("relay off: %w", err))
		}
		if err := p.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealStop reads the emergency-stop button. The line is pulled up and the
// button shorts it to ground: raw 0 = pressed. Falling edges additionally
// fire on the Events channel so the control loop can react mid-sleep.
type RealStop struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	events chan struct{}
}

// NewRealStop requests the stop line with pull-up and edge detection.
func NewRealStop(pin int) (*RealStop, error) {
	s := &RealStop{events: make(chan struct{}, 1)}

	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			select {
			case s.events <- struct{}{}:
			default:
			}
		}))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request stop pin %d: %w", pin, err)
	}
	s.chip = chip
	s.line = line
	return s, nil
}

// Engaged samples the stop level.
func (s *RealStop) Engaged() (bool, error) {
	v, err := s.line.Value()
	if err != nil {
		return false, fmt.Errorf("read stop pin: %w", err)
	}
	return v == 0, nil
}

// Events delivers a notification per button press, coalesced.
func (s *RealStop) Events() <-chan struct{} {
	return s.events
}

// Close releases the stop line.
func (s *RealStop) Close() error {
	var errs []error
	if s.line != nil {
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stop line: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLEDs drives the green (system OK) and red (pump active) indicators.
type RealLEDs struct {
	chip  *gpiocdev.Chip
	green *gpiocdev.Line
	red   *gpiocdev.Line
}

// NewRealLEDs requests both indicator lines as outputs, initially off.
func NewRealLEDs(pinGreen, pinRed int) (*RealLEDs, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	green, err := chip.RequestLine(pinGreen, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request green LED pin %d: %w", pinGreen, err)
	}
	red, err := chip.RequestLine(pinRed, gpiocdev.AsOutput(0))
	if err != nil {
		green.Close()
		chip.Close()
		return nil, fmt.Errorf("request red LED pin %d: %w", pinRed, err)
	}
	return &RealLEDs{chip: chip, green: green, red: red}, nil
}

func (l *RealLEDs) SetSystemOK(on bool) error { return setLine(l.green, on) }
func (l *RealLEDs) SetPump(on bool) error     { return setLine(l.red, on) }

func setLine(line *gpiocdev.Line, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return line.SetValue(v)
}

// Close turns both LEDs off and releases the lines.
func (l *RealLEDs) Close() error {
	var errs []error
	for _, line := range []*gpiocdev.Line{l.green, l.red} {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, err)
		}
		if err := line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
