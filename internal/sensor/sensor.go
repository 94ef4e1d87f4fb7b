// Package sensor contains the pure sample validation logic: range,
// sudden-change and consistency checks over a short rolling history, plus
// disconnect detection. This package has NO external dependencies (no GPIO,
// MQTT, OS, or time.Sleep) — it operates only on values handed to it.
package sensor

// Channel identifies one monitored quantity.
type Channel int

const (
	ChannelSoil Channel = iota
	ChannelTemperature
	ChannelHumidity
	ChannelLight

	numChannels
)

// NumChannels is the number of monitored channels, for sizing per-channel
// arrays in other packages.
const NumChannels = int(numChannels)

// Channels lists all channels in cycle order.
var Channels = []Channel{ChannelSoil, ChannelTemperature, ChannelHumidity, ChannelLight}

func (c Channel) String() string {
	switch c {
	case ChannelSoil:
		return "soil_moisture"
	case ChannelTemperature:
		return "temperature"
	case ChannelHumidity:
		return "humidity"
	case ChannelLight:
		return "light"
	}
	return "unknown"
}

// Reason classifies why a reading was rejected.
type Reason string

const (
	ReasonOutOfRange   Reason = "OUT_OF_RANGE"
	ReasonSuddenChange Reason = "SUDDEN_CHANGE"
	ReasonInconsistent Reason = "INCONSISTENT"
)

// Result is the outcome of validating one reading.
type Result struct {
	Channel Channel
	Value   float64
	Valid   bool
	Reason  Reason // empty when Valid

	// Disconnected is set once the channel has accumulated enough
	// consecutive rejections. It is a distinct escalation signal for the
	// safety supervisor, not just another invalid reading.
	Disconnected bool
}

// Limits holds the validation parameters for one channel.
type Limits struct {
	RangeCheck bool    // when false the range check always passes
	Min        float64
	Max        float64
	MaxChange  float64 // max |new - last accepted|; 0 disables the check
}
