// Package status provides a thread-safe status tracker for the field
// controller. It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/smartfarm/field-controller/internal/irrigation"
	"github.com/smartfarm/field-controller/internal/sensor"
)

// ChannelReading is the last observation for one channel.
type ChannelReading struct {
	Value        float64
	Valid        bool
	Reason       sensor.Reason
	Disconnected bool
}

// Counts accumulates controller events since startup.
type Counts struct {
	Cycles      int
	PumpStarts  int
	NormalStops int
	ForcedStops int
	Rejections  [sensor.NumChannels]int
}

// TotalRejections sums rejections across all channels.
func (c Counts) TotalRejections() int {
	var n int
	for _, r := range c.Rejections {
		n += r
	}
	return n
}

// Config contains controller configuration for display.
type Config struct {
	PollMs     int64
	DurationMs int64
	CooldownMs int64
	MaxDaily   int
	Broker     string
	HTTPAddr   string
}

// Snapshot is a point-in-time view of controller state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Channels         [sensor.NumChannels]ChannelReading
	Phase            irrigation.Phase
	PumpActive       bool
	DailyCount       int
	Threshold        float64
	SystemHealthy    bool
	EmergencyStopped bool
	RecoveryAttempts int
	Counts           Counts
	StartTime        time.Time
	Now              time.Time
	MQTTConnected    bool
	Config           Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:     startTime,
			Config:        cfg,
			SystemHealthy: true,
			Phase:         irrigation.PhaseIdle,
		},
	}
}

// Cycle holds everything the control loop reports after one pass.
type Cycle struct {
	Channels         [sensor.NumChannels]ChannelReading
	Phase            irrigation.Phase
	PumpActive       bool
	DailyCount       int
	Threshold        float64
	SystemHealthy    bool
	EmergencyStopped bool
	RecoveryAttempts int
	Counts           Counts
}

// Update records the outcome of one control cycle.
func (t *Tracker) Update(c Cycle) {
	t.mu.Lock()
	t.snap.Channels = c.Channels
	t.snap.Phase = c.Phase
	t.snap.PumpActive = c.PumpActive
	t.snap.DailyCount = c.DailyCount
	t.snap.Threshold = c.Threshold
	t.snap.SystemHealthy = c.SystemHealthy
	t.snap.EmergencyStopped = c.EmergencyStopped
	t.snap.RecoveryAttempts = c.RecoveryAttempts
	t.snap.Counts = c.Counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
