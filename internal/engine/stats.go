package engine

import "time"

// Stats is the per-session instrumentation. Reset clears it.
type Stats struct {
	Cycles    int
	Steps     int
	Total     time.Duration
	Last      time.Duration
	StepTotal time.Duration
}

func (s *Stats) record(r Report) {
	s.Cycles++
	s.Steps += r.Steps
	s.Total += r.Elapsed
	s.Last = r.Elapsed
	s.StepTotal += r.StepTime
}

// Average returns the mean go cycle time.
func (s Stats) Average() time.Duration {
	if s.Cycles == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Cycles)
}

// Bookkeeping returns the time spent outside solver steps.
func (s Stats) Bookkeeping() time.Duration {
	return s.Total - s.StepTotal
}

// StepShare returns the percentage of total time spent in solver steps.
func (s Stats) StepShare() float64 {
	if s.Total <= 0 {
		return 0
	}
	return 100 * float64(s.StepTotal) / float64(s.Total)
}
