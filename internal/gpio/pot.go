package gpio

// Smoother averages potentiometer readings over a small window and applies
// hysteresis so electrical jitter does not flap the irrigation threshold.
type Smoother struct {
	window []float64
	head   int
	count  int

	hysteresis float64
	last       float64
	hasLast    bool
}

// NewSmoother creates a Smoother with the given window size and hysteresis
// band (in the same unit as the values fed to Add).
func NewSmoother(size int, hysteresis float64) *Smoother {
	if size < 1 {
		size = 1
	}
	return &Smoother{
		window:     make([]float64, size),
		hysteresis: hysteresis,
	}
}

// Add feeds one reading and returns the smoothed output. The output only
// moves when the window average leaves the hysteresis band around the
// previous output.
func (s *Smoother) Add(v float64) float64 {
	s.window[s.head] = v
	s.head = (s.head + 1) % len(s.window)
	if s.count < len(s.window) {
		s.count++
	}

	var sum float64
	for i := 0; i < s.count; i++ {
		sum += s.window[i]
	}
	avg := sum / float64(s.count)

	if !s.hasLast || avg > s.last+s.hysteresis || avg < s.last-s.hysteresis {
		s.last = avg
		s.hasLast = true
	}
	return s.last
}

// MapThreshold converts a 0–100% dial position into a threshold within
// [min, max].
func MapThreshold(pct, min, max float64) float64 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return min + pct/100*(max-min)
}
