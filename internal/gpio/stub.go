//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealPump is not available on non-Linux platforms.
type RealPump struct{}

func NewRealPump(pin int) (*RealPump, error) { return nil, errUnsupported }
func (p *RealPump) Set(on bool) error        { return errUnsupported }
func (p *RealPump) Close() error             { return nil }

// RealStop is not available on non-Linux platforms.
type RealStop struct{}

func NewRealStop(pin int) (*RealStop, error) { return nil, errUnsupported }
func (s *RealStop) Engaged() (bool, error)   { return false, errUnsupported }
func (s *RealStop) Events() <-chan struct{}  { return nil }
func (s *RealStop) Close() error             { return nil }

// RealLEDs is not available on non-Linux platforms.
type RealLEDs struct{}

func NewRealLEDs(pinGreen, pinRed int) (*RealLEDs, error) { return nil, errUnsupported }
func (l *RealLEDs) SetSystemOK(on bool) error             { return errUnsupported }
func (l *RealLEDs) SetPump(on bool) error                 { return errUnsupported }
func (l *RealLEDs) Close() error                          { return nil }
