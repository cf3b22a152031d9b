package preprocess

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit population variance.
// Columns with zero standard deviation transform to 0.
type Scaler struct {
	Mean []float64 `json:"mean" yaml:"mean"`
	Std  []float64 `json:"std" yaml:"std"`
}

// Fit learns per-column mean and standard deviation.
func (s *Scaler) Fit(x mat.Matrix) error {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return errors.New("scaler: empty matrix")
	}
	s.Mean = make([]float64, c)
	s.Std = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		s.Mean[j], s.Std[j] = stat.PopMeanStdDev(col, nil)
	}
	return nil
}

// Transform returns a standardized copy of x.
func (s *Scaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(s.Mean) {
		return nil, fmt.Errorf("scaler: fitted on %d columns, got %d", len(s.Mean), c)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		if s.Std[j] == 0 {
			return 0
		}
		return (v - s.Mean[j]) / s.Std[j]
	}, x)
	return out, nil
}

// FitTransform fits and transforms in one step.
func (s *Scaler) FitTransform(x mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}
