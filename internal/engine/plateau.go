/*
PURPOSE:
  Significance test shared by both search loops.

REQUIREMENTS:
  User-specified:
  - A result is significant only if it beats the max of the last W results by more than the threshold.

  Implementation-discovered:
  - With fewer than W prior results the window shrinks to what exists.
  - The first result of a loop has nothing to compare against and always counts.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/inner.go, internal/engine/search.go

IMPLEMENTATION RULES:
  - Pure. Never mutates the history it is handed.
*/

package engine

// Decision is the outcome of one plateau check.
type Decision struct {
	// Significant is true when the trial beat the window by more than the threshold.
	Significant bool
	// Reference is the max IOPS of the comparison window, 0 if the window was empty.
	Reference float64
	// Compared is the number of prior values in the window.
	Compared int
}

// Detector decides whether the latest value is still a significant
// improvement over the most recent Window values before it.
type Detector struct {
	// Threshold is the required ratio, e.g. 1.05 for a strictly-greater 5% gain.
	Threshold float64
	Window    int
}

// Check compares current against the last Window entries of prior. An empty
// prior is always significant.
func (d Detector) Check(prior []float64, current float64) Decision {
	n := min(d.Window, len(prior))
	if n <= 0 {
		return Decision{Significant: true}
	}

	window := prior[len(prior)-n:]
	ref := window[0]
	for _, v := range window[1:] {
		ref = max(ref, v)
	}
	return Decision{
		Significant: current > ref*d.Threshold,
		Reference:   ref,
		Compared:    n,
	}
}
