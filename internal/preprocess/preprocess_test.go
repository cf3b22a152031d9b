package preprocess

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func load(t *testing.T, csv string) *dataset.Dataset {
	t.Helper()
	d, err := dataset.ReadCSV(strings.NewReader(csv), "t.csv", dataset.DefaultOptions())
	require.NoError(t, err)
	return d
}

const mixed = `x,color,flat
1,red,7
2,blue,7
3,green,7
,red,7
6,blue,7
`

func TestRunStandardizesRetainedColumns(t *testing.T) {
	res, err := Run(load(t, mixed), []string{"x", "color", "flat"})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "color"}, res.Columns)
	assert.Equal(t, []string{"flat"}, res.Dropped)
	r, c := res.Matrix.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 2, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, res.Matrix)
		mean, std := stat.PopMeanStdDev(col, nil)
		assert.InDelta(t, 0, mean, 1e-9)
		assert.InDelta(t, 1, std, 1e-9)
	}
}

func TestRunImputesColumnMean(t *testing.T) {
	res, err := Run(load(t, mixed), []string{"x"})
	require.NoError(t, err)
	// mean of 1,2,3,6 is 3, which standardizes to the same value as row 2.
	assert.InDelta(t, res.Matrix.At(2, 0), res.Matrix.At(3, 0), 1e-12)
	assert.InDelta(t, 3, res.Scaler.Mean[0], 1e-12)
}

func TestRunKeepsEncodingForEveryCategorical(t *testing.T) {
	d := load(t, "a,b,c\nx,1,k\ny,2,k\nx,3,k\n")
	res, err := Run(d, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.Dropped)
	require.Contains(t, res.Encodings, "c")
	assert.Equal(t, []string{"k"}, res.Encodings["c"].Classes)
	assert.Equal(t, []string{"x", "y"}, res.Encodings["a"].Classes)
	assert.Equal(t, []string{"a", "b", "c"}, res.Selection)
}

func TestRunErrors(t *testing.T) {
	d := load(t, mixed)

	_, err := Run(d, nil)
	var empty *EmptySelectionError
	assert.True(t, errors.As(err, &empty))

	_, err = Run(d, []string{"x", "nope"})
	var unknown *UnknownFeatureError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nope", unknown.Feature)

	_, err = Run(d, []string{"flat"})
	var nv *NoVarianceError
	require.True(t, errors.As(err, &nv))
	assert.Equal(t, []string{"flat"}, nv.Dropped)
}

func TestEncodingSortedOrder(t *testing.T) {
	d := load(t, "c\nzebra\napple\nMango\napple\n")
	col, _ := d.Column("c")
	e := NewEncoding(col)
	assert.Equal(t, []string{"Mango", "apple", "zebra"}, e.Classes)
	code, ok := e.Code("apple")
	assert.True(t, ok)
	assert.Equal(t, 1, code)
	label, ok := e.Label(2)
	assert.True(t, ok)
	assert.Equal(t, "zebra", label)
	_, ok = e.Label(3)
	assert.False(t, ok)
}

func TestEncodingNearest(t *testing.T) {
	e := newEncoding("c", []string{"a", "b", "c"})
	tests := []struct {
		v    float64
		want string
	}{
		{0, "a"},
		{0.49, "a"},
		{0.5, "a"},
		{0.51, "b"},
		{1.5, "b"},
		{9, "c"},
		{-3, "a"},
		{math.NaN(), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Nearest(tt.v), "value %v", tt.v)
	}
}

func TestScalerZeroStd(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{1, 5, 2, 5, 3, 5})
	s := &Scaler{}
	out, err := s.FitTransform(x)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.At(0, 1))
	assert.InDelta(t, -math.Sqrt(1.5), out.At(0, 0), 1e-12)

	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}

func TestRunRejectsInfiniteValues(t *testing.T) {
	d := load(t, "a,b\n1,2\n2,3\n3,4\n5,1\n")
	b, _ := d.Column("b")
	b.Values[2] = math.Inf(-1)

	_, err := Run(d, []string{"a", "b"})
	var nfe *NonFiniteError
	require.True(t, errors.As(err, &nfe), "got %v", err)
	assert.Equal(t, "b", nfe.Feature)
	assert.Equal(t, 2, nfe.Row)
	assert.Contains(t, err.Error(), "row 3")

	_, err = Run(d, []string{"a"})
	assert.NoError(t, err)
}
