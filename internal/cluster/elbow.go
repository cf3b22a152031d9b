package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DegenerateDataError is returned when the WCSS curve has no detectable elbow.
type DegenerateDataError struct {
	WCSS []float64
}

func (e *DegenerateDataError) Error() string {
	return fmt.Sprintf("no elbow found in WCSS curve over k=1..%d", len(e.WCSS))
}

// SelectOptions control cluster-count selection.
type SelectOptions struct {
	MaxK        int
	Sensitivity float64
	KMeans      Options
}

// DefaultSelectOptions returns max k 10 and sensitivity 1.
func DefaultSelectOptions() SelectOptions {
	return SelectOptions{MaxK: 10, Sensitivity: 1, KMeans: DefaultOptions()}
}

// Selection is the outcome of the elbow search.
type Selection struct {
	K    int       `json:"k" yaml:"k"`
	MaxK int       `json:"max_k" yaml:"max_k"`
	WCSS []float64 `json:"wcss" yaml:"wcss"`
}

// SelectK fits K-means for k = 1..min(MaxK, rows), records the WCSS of each
// fit and returns the elbow of that curve.
func SelectK(x mat.Matrix, opt SelectOptions) (*Selection, error) {
	if opt.MaxK <= 0 {
		opt.MaxK = DefaultSelectOptions().MaxK
	}
	if opt.Sensitivity <= 0 {
		opt.Sensitivity = 1
	}
	n, _ := x.Dims()
	maxK := opt.MaxK
	if n < maxK {
		maxK = n
	}
	if maxK < 1 {
		return nil, fmt.Errorf("select k: no rows")
	}
	sel := &Selection{MaxK: maxK, WCSS: make([]float64, 0, maxK)}
	ks := make([]float64, 0, maxK)
	for k := 1; k <= maxK; k++ {
		m, err := Fit(x, k, opt.KMeans)
		if err != nil {
			return nil, fmt.Errorf("select k: fit k=%d: %w", k, err)
		}
		ks = append(ks, float64(k))
		sel.WCSS = append(sel.WCSS, m.Inertia)
	}
	if maxK == 1 {
		sel.K = 1
		return sel, nil
	}
	knee, ok := Elbow(ks, sel.WCSS, opt.Sensitivity)
	if !ok {
		return nil, &DegenerateDataError{WCSS: sel.WCSS}
	}
	sel.K = int(knee)
	return sel, nil
}

// Elbow locates the knee of a convex, decreasing curve with the Kneedle
// method. The second result is false when no knee exists.
func Elbow(x, y []float64, sensitivity float64) (float64, bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, false
	}
	xn, okX := normalize(x)
	yn, okY := normalize(y)
	if !okX || !okY {
		return 0, false
	}
	// flip the decreasing convex curve so the knee is a local maximum of
	// the distance to the diagonal
	diff := make([]float64, n)
	for i := range yn {
		diff[i] = (1 - yn[i]) - xn[i]
	}
	maxima, first := extrema(diff, func(a, b float64) bool { return a >= b })
	minima, _ := extrema(diff, func(a, b float64) bool { return a <= b })
	if first < 0 {
		return 0, false
	}

	steps := make([]float64, n-1)
	floats.SubTo(steps, xn[1:], xn[:n-1])
	step := floats.Sum(steps) / float64(n-1)

	threshold, thresholdIdx := 0.0, 0
	for i := first; i < n-1; i++ {
		if maxima[i] {
			threshold = diff[i] - sensitivity*step
			thresholdIdx = i
		}
		if minima[i] {
			threshold = 0
		}
		if diff[i+1] < threshold {
			return x[thresholdIdx], true
		}
	}
	return 0, false
}

// extrema flags the relative extrema of v under cmp, comparing each point
// with its neighbours and clamping at the ends. It also returns the first
// flagged index, or -1.
func extrema(v []float64, cmp func(a, b float64) bool) ([]bool, int) {
	set := make([]bool, len(v))
	first := -1
	for i := range v {
		prev, next := i-1, i+1
		if prev < 0 {
			prev = 0
		}
		if next > len(v)-1 {
			next = len(v) - 1
		}
		if cmp(v[i], v[prev]) && cmp(v[i], v[next]) {
			set[i] = true
			if first < 0 {
				first = i
			}
		}
	}
	return set, first
}

func normalize(v []float64) ([]float64, bool) {
	lo, hi := floats.Min(v), floats.Max(v)
	if hi == lo {
		return nil, false
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - lo) / (hi - lo)
	}
	return out, true
}
