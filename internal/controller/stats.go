package controller

import "time"

// tokenStats tracks time-to-first-token and the steady-state decode rate.
// The first token's latency is excluded from tokens/sec.
type tokenStats struct {
	start time.Time
	first time.Time
	last  time.Time
	n     int
}

func newTokenStats(start time.Time) *tokenStats {
	return &tokenStats{start: start}
}

// observe counts one generation step at now.
func (s *tokenStats) observe(now time.Time) {
	s.n++
	if s.n == 1 {
		s.first = now
	}
	s.last = now
}

// TTFT in milliseconds; nil before the first token.
func (s *tokenStats) ttft() *float64 {
	if s.n == 0 {
		return nil
	}
	v := millis(s.first.Sub(s.start))
	return &v
}

// tps is tokens after the first divided by seconds since the first.
func (s *tokenStats) tps() float64 {
	if s.n < 2 {
		return 0
	}
	el := s.last.Sub(s.first).Seconds()
	if el <= 0 {
		return 0
	}
	return float64(s.n-1) / el
}
