// Package safety implements the supervisor that gates the irrigation engine:
// health aggregation over consecutive sensor errors, bounded automatic
// recovery of failed channels, the emergency-stop latch, and the pump
// runtime ceiling. It is the single authority for the ceiling check — the
// decision engine only defers to its verdict.
package safety

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/smartfarm/field-controller/internal/sensor"
)

// ChannelResetter re-initializes a sensor channel and takes one fresh raw
// reading from it. Implemented by the hardware layer; faked in tests.
type ChannelResetter interface {
	ResetChannel(ch sensor.Channel) error
	SampleChannel(ch sensor.Channel) (float64, error)
}

// Config holds the supervisor limits.
type Config struct {
	MaxConsecutiveErrors int           // invalid events before unhealthy
	MaxRecoveryAttempts  int           // recovery tries before giving up
	RecoveryDelay        time.Duration // initial gap between recovery tries
	MaxPumpRuntime       time.Duration // absolute pump-on ceiling
}

// Supervisor tracks system health across cycles. All methods are called from
// the single control loop; no locking.
type Supervisor struct {
	cfg       Config
	validator *sensor.Validator
	resetter  ChannelResetter

	consecutiveErrors int
	healthy           bool
	emergencyStopped  bool

	recoveryAttempts int
	nextRecovery     time.Time
	backoff          *backoff.ExponentialBackOff
	pending          map[sensor.Channel]bool // channels awaiting recovery
}

// New creates a Supervisor in the healthy state.
func New(cfg Config, validator *sensor.Validator, resetter ChannelResetter) *Supervisor {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.RecoveryDelay
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0 // the attempt cap bounds recovery, not elapsed time
	bo.Reset()

	return &Supervisor{
		cfg:       cfg,
		validator: validator,
		resetter:  resetter,
		healthy:   true,
		backoff:   bo,
		pending:   make(map[sensor.Channel]bool),
	}
}

// Observe records one channel's validation outcome. Invalid readings grow
// the consecutive-error count; a valid reading resets the count but does NOT
// flip the health flag — that happens on the next Check pass, giving one
// cycle of hysteresis. A disconnect marks the channel for forced recovery.
func (s *Supervisor) Observe(res sensor.Result) {
	if res.Valid {
		s.consecutiveErrors = 0
		return
	}
	s.consecutiveErrors++
	if res.Disconnected {
		if !s.pending[res.Channel] {
			log.Printf("safety: channel %s disconnected, scheduling recovery", res.Channel)
		}
		s.pending[res.Channel] = true
	}
}

// ObserveReadError records a failed hardware read, which counts like an
// invalid reading for health purposes.
func (s *Supervisor) ObserveReadError() {
	s.consecutiveErrors++
}

// Check runs the per-cycle status pass: health transitions and, when due,
// one recovery attempt.
func (s *Supervisor) Check(now time.Time) {
	if s.healthy && s.consecutiveErrors >= s.cfg.MaxConsecutiveErrors {
		s.healthy = false
		log.Printf("safety: %d consecutive sensor errors, system unhealthy", s.consecutiveErrors)
	}

	// Re-heal only here, one cycle after the counter reset.
	if !s.healthy && s.consecutiveErrors == 0 && len(s.pending) == 0 {
		s.healthy = true
		s.recoveryAttempts = 0
		s.backoff.Reset()
		s.nextRecovery = time.Time{}
		log.Printf("safety: sensors recovered, system healthy")
	}

	if len(s.pending) > 0 {
		s.tryRecovery(now)
	}
}

// tryRecovery re-initializes each pending channel and re-tests it with a
// fresh sample. Attempts are bounded; past the cap the system stays
// unhealthy until manual intervention.
func (s *Supervisor) tryRecovery(now time.Time) {
	if s.recoveryAttempts >= s.cfg.MaxRecoveryAttempts {
		return
	}
	if !s.nextRecovery.IsZero() && now.Before(s.nextRecovery) {
		return
	}

	s.recoveryAttempts++
	log.Printf("safety: recovery attempt %d/%d", s.recoveryAttempts, s.cfg.MaxRecoveryAttempts)

	for ch := range s.pending {
		if err := s.recoverChannel(ch); err != nil {
			log.Printf("safety: recovery of %s failed: %v", ch, err)
			s.nextRecovery = now.Add(s.backoff.NextBackOff())
			return
		}
		delete(s.pending, ch)
		log.Printf("safety: channel %s recovered", ch)
	}

	// All channels back; counters clear now, health flag flips on the next
	// Check pass.
	s.consecutiveErrors = 0
	s.recoveryAttempts = 0
	s.backoff.Reset()
	s.nextRecovery = time.Time{}
}

func (s *Supervisor) recoverChannel(ch sensor.Channel) error {
	if s.resetter == nil {
		return fmt.Errorf("no resetter configured")
	}
	if err := s.resetter.ResetChannel(ch); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	raw, err := s.resetter.SampleChannel(ch)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}

	if st := s.validator.State(ch); st != nil {
		st.Reset()
	}
	res := s.validator.Validate(ch, raw)
	if !res.Valid {
		return fmt.Errorf("re-test reading %.1f rejected (%s)", raw, res.Reason)
	}
	return nil
}

// RuntimeExceeded is the authoritative pump-runtime ceiling check, evaluated
// every cycle without exception while the pump is active.
func (s *Supervisor) RuntimeExceeded(now time.Time, pumpActive bool, pumpStart time.Time) bool {
	if !pumpActive {
		return false
	}
	if now.Sub(pumpStart) >= s.cfg.MaxPumpRuntime {
		log.Printf("safety: pump runtime %v reached ceiling %v, forcing off", now.Sub(pumpStart), s.cfg.MaxPumpRuntime)
		return true
	}
	return false
}

// TripEmergencyStop sets the one-way latch. Only ClearEmergencyStop — an
// explicit external action — releases it.
func (s *Supervisor) TripEmergencyStop() {
	if !s.emergencyStopped {
		log.Printf("safety: EMERGENCY STOP engaged")
	}
	s.emergencyStopped = true
}

// ClearEmergencyStop releases the latch. Called from the external reset
// surface, never internally.
func (s *Supervisor) ClearEmergencyStop() {
	if s.emergencyStopped {
		log.Printf("safety: emergency stop cleared by external reset")
	}
	s.emergencyStopped = false
}

// EmergencyStopped reports the latch state.
func (s *Supervisor) EmergencyStopped() bool {
	return s.emergencyStopped
}

// Healthy reports the aggregate health flag.
func (s *Supervisor) Healthy() bool {
	return s.healthy
}

// ConsecutiveErrors returns the current cross-channel error streak.
func (s *Supervisor) ConsecutiveErrors() int {
	return s.consecutiveErrors
}

// RecoveryAttempts returns the used recovery attempts for the current
// unhealthy episode.
func (s *Supervisor) RecoveryAttempts() int {
	return s.recoveryAttempts
}

// RecoveryExhausted reports whether automatic recovery has given up.
func (s *Supervisor) RecoveryExhausted() bool {
	return len(s.pending) > 0 && s.recoveryAttempts >= s.cfg.MaxRecoveryAttempts
}

// ManualReset clears the unhealthy episode: pending recoveries, counters and
// attempt budget. The operator's equivalent of a power cycle, minus the
// power cycle.
func (s *Supervisor) ManualReset() {
	s.pending = make(map[sensor.Channel]bool)
	s.consecutiveErrors = 0
	s.recoveryAttempts = 0
	s.backoff.Reset()
	s.nextRecovery = time.Time{}
	log.Printf("safety: manual reset")
}
