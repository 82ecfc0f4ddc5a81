package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetector_Check(t *testing.T) {
	d := Detector{Threshold: 1.05, Window: 3}

	tests := []struct {
		name        string
		prior       []float64
		current     float64
		significant bool
		reference   float64
		compared    int
	}{
		{"empty prior", nil, 10, true, 0, 0},
		{"empty prior zero value", []float64{}, 0, true, 0, 0},
		{"clear gain", []float64{100}, 200, true, 100, 1},
		{"exactly five percent is not enough", []float64{100}, 105, false, 100, 1},
		{"just above five percent", []float64{100}, 105.0001, true, 100, 1},
		{"window uses max not last", []float64{300, 100, 200}, 250, false, 300, 3},
		{"older values fall out of the window", []float64{1000, 100, 100, 100}, 110, true, 100, 3},
		{"regression", []float64{500, 400}, 300, false, 500, 2},
		{"ceiling reached", []float64{3100, 7000, 14517.11}, 14725.47, false, 14517.11, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := d.Check(tt.prior, tt.current)
			assert.Equal(t, tt.significant, dec.Significant)
			assert.InDelta(t, tt.reference, dec.Reference, 1e-9)
			assert.Equal(t, tt.compared, dec.Compared)
		})
	}
}

func TestDetector_CheckMatchesDefinition(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for window := 1; window <= 5; window++ {
		d := Detector{Threshold: 1.05, Window: window}
		for range 500 {
			prior := make([]float64, r.IntN(8))
			for i := range prior {
				prior[i] = r.Float64() * 10000
			}
			current := r.Float64() * 10000

			want := true
			if n := min(window, len(prior)); n > 0 {
				ref := 0.0
				for _, v := range prior[len(prior)-n:] {
					ref = max(ref, v)
				}
				want = current > ref*1.05
			}
			assert.Equal(t, want, d.Check(prior, current).Significant,
				"window=%d prior=%v current=%v", window, prior, current)
		}
	}
}

func TestDetector_CheckDoesNotMutatePrior(t *testing.T) {
	prior := []float64{1, 2, 3, 4}
	Detector{Threshold: 1.05, Window: 3}.Check(prior, 5)
	assert.Equal(t, []float64{1, 2, 3, 4}, prior)
}
