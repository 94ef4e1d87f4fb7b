// Package irrigation contains the pump decision state machine. Like the
// validation logic it is pure: time is injected per cycle and all hardware
// effects are expressed as a Decision for the caller to apply.
package irrigation

import "time"

// Phase is the externally visible engine state.
type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseCoolingDown Phase = "COOLING_DOWN"
	PhaseIrrigating  Phase = "IRRIGATING"
	PhaseSuspended   Phase = "SUSPENDED"
)

// StopReason classifies why the pump was switched off.
type StopReason string

const (
	StopCompleted StopReason = "COMPLETED"
	StopRuntime   StopReason = "RUNTIME_EXCEEDED"
	StopEmergency StopReason = "EMERGENCY"
)

// Config holds the static irrigation parameters.
type Config struct {
	Duration       time.Duration // normal pump runtime per irrigation event
	ManualDuration time.Duration // pump runtime for operator-triggered runs
	Cooldown       time.Duration // minimum gap between irrigation starts
	MaxDaily       int           // watering events allowed per calendar day
}

// Input is everything the engine reads for one cycle. Threshold is passed in
// fresh every cycle so a live control surface is never read through a stale
// cached copy.
type Input struct {
	Now time.Time

	SoilValid   bool
	SoilPercent float64
	Threshold   float64

	Healthy          bool
	EmergencyStopped bool

	// CeilingExceeded is the safety supervisor's runtime-ceiling verdict.
	// The supervisor owns that check; the engine only defers to it.
	CeilingExceeded bool

	// ManualRequest asks for a bounded manual run this cycle.
	ManualRequest bool
}

// Decision is the engine's output for one cycle.
type Decision struct {
	PumpOn  bool
	Phase   Phase
	Started bool
	Stopped bool
	Reason  StopReason // set when Stopped
	Manual  bool       // set when Started by a manual request
}

// Engine tracks irrigation state across cycles.
type Engine struct {
	cfg Config
	loc *time.Location

	pumpActive  bool
	pumpStart   time.Time
	runDuration time.Duration // duration of the current run (normal or manual)

	lastIrrigation time.Time
	hasIrrigated   bool

	dailyCount int
	dailyDay   time.Time // local midnight the counter belongs to
}

// NewEngine creates an engine with conservative initial state: pump off,
// zero daily count. The location fixes the calendar day used for the daily
// cap; nil means time.Local.
func NewEngine(cfg Config, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{cfg: cfg, loc: loc}
}

// Decide evaluates the transition rules for one cycle, in priority order:
// emergency stop, runtime ceiling, normal completion, start.
func (e *Engine) Decide(in Input) Decision {
	e.rollDay(in.Now)

	// Rule 1: emergency stop preempts everything, including an in-flight run.
	if in.EmergencyStopped {
		d := Decision{PumpOn: false, Phase: PhaseSuspended}
		if e.pumpActive {
			e.stop()
			d.Stopped = true
			d.Reason = StopEmergency
		}
		return d
	}

	// Rule 2: the supervisor's runtime ceiling wins over normal completion
	// and over any start condition.
	if e.pumpActive && in.CeilingExceeded {
		e.stop()
		return Decision{PumpOn: false, Phase: e.idlePhase(in), Stopped: true, Reason: StopRuntime}
	}

	// Rule 3: normal stop once the configured duration has elapsed. The
	// daily counter was already incremented at start.
	if e.pumpActive && in.Now.Sub(e.pumpStart) >= e.runDuration {
		e.stop()
		return Decision{PumpOn: false, Phase: e.idlePhase(in), Stopped: true, Reason: StopCompleted}
	}

	if e.pumpActive {
		return Decision{PumpOn: true, Phase: PhaseIrrigating}
	}

	// Manual runs skip the moisture and cooldown gates but stay behind the
	// safety gates: health, daily cap, emergency (already handled above).
	if in.ManualRequest && in.Healthy && e.dailyCount < e.cfg.MaxDaily {
		e.start(in.Now, e.cfg.ManualDuration)
		return Decision{PumpOn: true, Phase: PhaseIrrigating, Started: true, Manual: true}
	}

	// Rule 4: gated automatic start.
	if in.SoilValid &&
		in.SoilPercent < in.Threshold &&
		e.cooldownElapsed(in.Now) &&
		e.dailyCount < e.cfg.MaxDaily &&
		in.Healthy {
		e.start(in.Now, e.cfg.Duration)
		return Decision{PumpOn: true, Phase: PhaseIrrigating, Started: true}
	}

	// Rule 5: no transition.
	return Decision{PumpOn: false, Phase: e.idlePhase(in)}
}

func (e *Engine) start(now time.Time, d time.Duration) {
	e.pumpActive = true
	e.pumpStart = now
	e.runDuration = d
	e.lastIrrigation = now
	e.hasIrrigated = true
	e.dailyCount++
}

func (e *Engine) stop() {
	e.pumpActive = false
	e.runDuration = 0
}

func (e *Engine) cooldownElapsed(now time.Time) bool {
	if !e.hasIrrigated {
		return true
	}
	return now.Sub(e.lastIrrigation) >= e.cfg.Cooldown
}

// idlePhase distinguishes the idle flavors for the snapshot: suspended when
// unhealthy, cooling down while the gap timer runs, plain idle otherwise.
func (e *Engine) idlePhase(in Input) Phase {
	if !in.Healthy {
		return PhaseSuspended
	}
	if !e.cooldownElapsed(in.Now) {
		return PhaseCoolingDown
	}
	return PhaseIdle
}

// rollDay zeroes the daily counter when the local calendar day changes.
// The firmware only reset the counter on restart; a long-running controller
// needs a real day boundary.
func (e *Engine) rollDay(now time.Time) {
	midnight := midnightLocal(now, e.loc)
	if !e.dailyDay.Equal(midnight) {
		e.dailyDay = midnight
		e.dailyCount = 0
	}
}

func midnightLocal(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// PumpActive reports whether the pump is currently commanded on.
func (e *Engine) PumpActive() bool {
	return e.pumpActive
}

// PumpStart returns the start time of the current run. Only meaningful
// while PumpActive is true.
func (e *Engine) PumpStart() time.Time {
	return e.pumpStart
}

// DailyCount returns the number of irrigation events started today.
func (e *Engine) DailyCount() int {
	return e.dailyCount
}

// LastIrrigation returns the start time of the most recent irrigation and
// whether one has occurred since startup.
func (e *Engine) LastIrrigation() (time.Time, bool) {
	return e.lastIrrigation, e.hasIrrigated
}
