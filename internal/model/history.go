/*
PURPOSE:
  Ordered trial history of one inner loop.

IMPLEMENTATION RULES:
  - Append only. Trials() returns a copy.
*/

package model

// TrialHistory is the append-only sequence of trials for one job count,
// in execution order.
type TrialHistory struct {
	JobCount int
	trials   []Trial
}

// NewTrialHistory returns an empty history for jobCount.
func NewTrialHistory(jobCount int) *TrialHistory {
	return &TrialHistory{JobCount: jobCount}
}

// Append records t. It returns the index t was stored at.
func (h *TrialHistory) Append(t Trial) int {
	h.trials = append(h.trials, t)
	return len(h.trials) - 1
}

// Len returns the number of recorded trials.
func (h *TrialHistory) Len() int {
	return len(h.trials)
}

// Trials returns a copy of the recorded trials.
func (h *TrialHistory) Trials() []Trial {
	out := make([]Trial, len(h.trials))
	copy(out, h.trials)
	return out
}
