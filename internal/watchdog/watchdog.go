// Package watchdog feeds the kernel hardware watchdog so a hung control
// loop gets the board rebooted instead of leaving the pump in its last state.
package watchdog

import (
	"fmt"
	"os"
)

// DefaultDevice is the kernel watchdog device node.
const DefaultDevice = "/dev/watchdog"

// Feeder keeps a watchdog from firing.
type Feeder interface {
	// Feed pets the watchdog. Must be called at least once per timeout
	// period.
	Feed() error

	// Close disarms the watchdog where supported.
	Close() error
}

// FileFeeder feeds a kernel watchdog device.
type FileFeeder struct {
	f *os.File
}

// Open arms the watchdog at the given device path.
func Open(device string) (*FileFeeder, error) {
	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog: %w", err)
	}
	return &FileFeeder{f: f}, nil
}

// Feed writes one byte to the device.
func (w *FileFeeder) Feed() error {
	if _, err := w.f.Write([]byte{0}); err != nil {
		return fmt.Errorf("feed watchdog: %w", err)
	}
	return nil
}

// Close writes the magic close character so the kernel disarms the timer,
// then closes the device.
func (w *FileFeeder) Close() error {
	// 'V' tells drivers with CONFIG_WATCHDOG_NOWAYOUT unset to stop the
	// countdown on close.
	if _, err := w.f.Write([]byte{'V'}); err != nil {
		w.f.Close()
		return fmt.Errorf("disarm watchdog: %w", err)
	}
	return w.f.Close()
}

// Nop is a Feeder that does nothing, for boards without a watchdog.
type Nop struct{}

func (Nop) Feed() error  { return nil }
func (Nop) Close() error { return nil }

// Fake records feeds for tests.
type Fake struct {
	Feeds    int
	Closed   bool
	FeedErr  error
	CloseErr error
}

func (f *Fake) Feed() error {
	if f.FeedErr != nil {
		return f.FeedErr
	}
	f.Feeds++
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return f.CloseErr
}
