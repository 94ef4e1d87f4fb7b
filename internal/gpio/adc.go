package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultIIODir is the sysfs directory of the first IIO device. The ADC (and
// the kernel dht11 driver, when fitted) expose their readings there as plain
// text files.
const DefaultIIODir = "/sys/bus/iio/devices/iio:device0"

// ADC reads raw counts from Linux IIO sysfs attribute files. The directory
// is injectable so tests can point it at a temp dir.
type ADC struct {
	dir string
}

// NewADC creates an ADC rooted at the given sysfs directory.
func NewADC(dir string) *ADC {
	if dir == "" {
		dir = DefaultIIODir
	}
	return &ADC{dir: dir}
}

// ReadRaw returns the raw count of in_voltage<channel>_raw.
func (a *ADC) ReadRaw(channel int) (int, error) {
	return a.readInt(fmt.Sprintf("in_voltage%d_raw", channel))
}

// ReadAttr returns the integer value of an arbitrary attribute file, e.g.
// in_temp_input (millidegrees) or in_humidityrelative_input (milli-%).
func (a *ADC) ReadAttr(name string) (int, error) {
	return a.readInt(name)
}

func (a *ADC) readInt(name string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}
