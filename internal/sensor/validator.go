package sensor

// ChannelState holds the rolling validation state for a single channel.
type ChannelState struct {
	channel Channel
	limits  Limits

	window              int // history capacity K
	consistencyLimit    float64
	disconnectThreshold int

	history []float64 // ring of the last K accepted raw readings
	head    int       // next write position
	count   int       // filled slots, <= window

	lastAccepted float64
	hasAccepted  bool

	consecutiveInvalid int
}

// NewChannelState creates validation state for one channel.
func NewChannelState(ch Channel, limits Limits, window int, consistencyLimit float64, disconnectThreshold int) *ChannelState {
	if window < 1 {
		window = 1
	}
	return &ChannelState{
		channel:             ch,
		limits:              limits,
		window:              window,
		consistencyLimit:    consistencyLimit,
		disconnectThreshold: disconnectThreshold,
		history:             make([]float64, window),
	}
}

// Validate classifies one scaled reading. On acceptance the rolling history
// is updated and the invalid counter resets; on rejection the counter
// increments and the history is untouched. Deterministic for a given state.
func (s *ChannelState) Validate(value float64) Result {
	res := Result{Channel: s.channel, Value: value, Valid: true}

	if s.limits.RangeCheck && (value < s.limits.Min || value > s.limits.Max) {
		res.Valid = false
		res.Reason = ReasonOutOfRange
	}

	// Sudden-change only applies to readings that are in range.
	if res.Valid && s.limits.MaxChange > 0 && s.hasAccepted {
		if abs(value-s.lastAccepted) > s.limits.MaxChange {
			res.Valid = false
			res.Reason = ReasonSuddenChange
		}
	}

	// Consistency is evaluated independently and ANDed with the other two.
	// Skipped until the history is fully warmed up: comparing against
	// zero-filled slots would reject the first real readings after start.
	if s.count == s.window {
		if abs(value-s.average()) > s.consistencyLimit {
			res.Valid = false
			if res.Reason == "" {
				res.Reason = ReasonInconsistent
			}
		}
	}

	if res.Valid {
		s.accept(value)
		return res
	}

	s.consecutiveInvalid++
	if s.consecutiveInvalid >= s.disconnectThreshold {
		res.Disconnected = true
	}
	return res
}

func (s *ChannelState) accept(value float64) {
	s.history[s.head] = value
	s.head = (s.head + 1) % s.window
	if s.count < s.window {
		s.count++
	}
	s.lastAccepted = value
	s.hasAccepted = true
	s.consecutiveInvalid = 0
}

// average returns the integer average of the buffered readings, matching the
// firmware's integer arithmetic.
func (s *ChannelState) average() float64 {
	var sum float64
	for i := 0; i < s.count; i++ {
		sum += s.history[i]
	}
	return float64(int(sum) / s.count)
}

// Reset clears history and counters. Used by the safety supervisor when it
// re-initializes a channel during automatic recovery.
func (s *ChannelState) Reset() {
	s.head = 0
	s.count = 0
	s.hasAccepted = false
	s.consecutiveInvalid = 0
}

// ConsecutiveInvalid returns the current rejection streak.
func (s *ChannelState) ConsecutiveInvalid() int {
	return s.consecutiveInvalid
}

// LastAccepted returns the most recently accepted reading, if any.
func (s *ChannelState) LastAccepted() (float64, bool) {
	return s.lastAccepted, s.hasAccepted
}

// Warmed reports whether the history buffer is full.
func (s *ChannelState) Warmed() bool {
	return s.count == s.window
}

// Validator owns per-channel state for all configured channels. Channels not
// registered are treated as disabled: they report a fixed value and always
// validate.
type Validator struct {
	states   [numChannels]*ChannelState
	defaults [numChannels]float64
}

// NewValidator creates an empty validator; register channels with Register.
func NewValidator() *Validator {
	return &Validator{}
}

// Register enables validation for a channel.
func (v *Validator) Register(state *ChannelState) {
	v.states[state.channel] = state
}

// SetDefault sets the value reported for a disabled channel.
func (v *Validator) SetDefault(ch Channel, value float64) {
	v.defaults[ch] = value
}

// Enabled reports whether a channel has validation state registered.
func (v *Validator) Enabled(ch Channel) bool {
	return v.states[ch] != nil
}

// Validate runs the check pipeline for one channel reading. Disabled
// channels pass unconditionally with their configured default value.
func (v *Validator) Validate(ch Channel, value float64) Result {
	st := v.states[ch]
	if st == nil {
		return Result{Channel: ch, Value: v.defaults[ch], Valid: true}
	}
	return st.Validate(value)
}

// State returns the channel state, or nil for disabled channels.
func (v *Validator) State(ch Channel) *ChannelState {
	return v.states[ch]
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
