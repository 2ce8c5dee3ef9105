package telemetry

// SuccessTracker keeps a moving success rate over the last N episodes in a
// circular buffer. Slots not yet written count as failures, so the rate
// ramps up over the first N episodes.
type SuccessTracker struct {
	window []uint8
	idx    int
	sum    int
	count  int
}

// NewSuccessTracker creates a tracker over the last size episodes.
func NewSuccessTracker(size int) *SuccessTracker {
	if size < 1 {
		size = 1
	}
	return &SuccessTracker{window: make([]uint8, size)}
}

// Record adds one episode outcome, evicting the oldest.
func (s *SuccessTracker) Record(success bool) {
	var v uint8
	if success {
		v = 1
	}
	s.sum += int(v) - int(s.window[s.idx])
	s.window[s.idx] = v
	s.idx = (s.idx + 1) % len(s.window)
	if s.count < len(s.window) {
		s.count++
	}
}

// Rate returns successes in the window divided by the window size.
func (s *SuccessTracker) Rate() float64 {
	return float64(s.sum) / float64(len(s.window))
}

// Count returns how many outcomes the window holds.
func (s *SuccessTracker) Count() int { return s.count }

// Size returns the window length.
func (s *SuccessTracker) Size() int { return len(s.window) }

// Reset clears the window for a new session.
func (s *SuccessTracker) Reset() {
	clear(s.window)
	s.idx, s.sum, s.count = 0, 0, 0
}
