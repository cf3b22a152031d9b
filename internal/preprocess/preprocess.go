package preprocess

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"gonum.org/v1/gonum/mat"
)

// EmptySelectionError is returned when no features are selected.
type EmptySelectionError struct{}

func (e *EmptySelectionError) Error() string { return "no features selected" }

// UnknownFeatureError names a selected column that is not in the dataset.
type UnknownFeatureError struct {
	Feature string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature %q", e.Feature)
}

// NoVarianceError is returned when every selected column is constant.
type NoVarianceError struct {
	Dropped []string
}

func (e *NoVarianceError) Error() string {
	return fmt.Sprintf("no feature varies across rows (dropped: %s)", strings.Join(e.Dropped, ", "))
}

// NonFiniteError names a feature holding an infinite value.
type NonFiniteError struct {
	Feature string
	Row     int
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("feature %q has a non-finite value in row %d", e.Feature, e.Row+1)
}

// Result is the encoded, imputed and standardized view of a selection.
type Result struct {
	// Matrix has one row per dataset row and one column per retained feature.
	Matrix    *mat.Dense
	Columns   []string
	Dropped   []string
	Encodings Encodings
	Scaler    *Scaler
	Selection []string
}

// Run restricts ds to features, encodes categoricals, imputes missing values
// with the column mean, standardizes and drops constant columns.
func Run(ds *dataset.Dataset, features []string) (*Result, error) {
	if len(features) == 0 {
		return nil, &EmptySelectionError{}
	}
	if ds == nil {
		return nil, fmt.Errorf("preprocess: dataset is nil")
	}
	res := &Result{
		Encodings: Encodings{},
		Selection: append([]string(nil), features...),
	}

	var kept [][]float64
	for _, name := range features {
		c, ok := ds.Column(name)
		if !ok {
			return nil, &UnknownFeatureError{Feature: name}
		}
		if c.Kind == dataset.KindCategorical {
			res.Encodings[name] = NewEncoding(c)
		}
		vals := impute(res.Encodings.Numeric(c))
		for i, v := range vals {
			if math.IsInf(v, 0) {
				return nil, &NonFiniteError{Feature: name, Row: i}
			}
		}
		if constant(vals) {
			res.Dropped = append(res.Dropped, name)
			continue
		}
		res.Columns = append(res.Columns, name)
		kept = append(kept, vals)
	}
	if len(kept) == 0 {
		return nil, &NoVarianceError{Dropped: res.Dropped}
	}

	raw := mat.NewDense(ds.Len(), len(kept), nil)
	for j, col := range kept {
		raw.SetCol(j, col)
	}
	res.Scaler = &Scaler{}
	m, err := res.Scaler.FitTransform(raw)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	res.Matrix = m
	return res, nil
}

// impute replaces NaN with the mean of the remaining values, or 0.
func impute(vals []float64) []float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	fill := 0.0
	if n > 0 {
		fill = sum / float64(n)
	}
	for i, v := range vals {
		if math.IsNaN(v) {
			vals[i] = fill
		}
	}
	return vals
}

func constant(vals []float64) bool {
	if len(vals) == 0 {
		return true
	}
	for _, v := range vals[1:] {
		if v != vals[0] {
			return false
		}
	}
	return true
}
