package worker

import "time"

// RunStats summarises one reminder sweep
type RunStats struct {
	Checked int
	Sent    int
	// Skipped counts due reminders with no recipient
	Skipped int
	Failed  int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the sweep wall time
func (s *RunStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
