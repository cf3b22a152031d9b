package chart

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func labeled(t *testing.T) *dataset.Labeled {
	t.Helper()
	in := "income,city,flag\n10,Paris,1\n12,Lyon,1\n15,Paris,1\n,Nice,2\n"
	d, err := dataset.ReadCSV(strings.NewReader(in), "c.csv", dataset.DefaultOptions())
	require.NoError(t, err)
	l, err := dataset.NewLabeled(d, []int{0, 0, 0, 1}, 2, []string{"income", "city"})
	require.NoError(t, err)
	return l
}

func TestPNGHistogramAndBars(t *testing.T) {
	l := labeled(t)
	for _, f := range []string{"income", "city", "flag"} {
		b, err := PNG(l, f, 0, DefaultOptions())
		require.NoError(t, err, f)
		assert.True(t, bytes.HasPrefix(b, pngMagic), "%s: not a PNG", f)
	}
}

func TestPlotLabels(t *testing.T) {
	p, err := Plot(labeled(t), "city", 1, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Cluster 2", p.Title.Text)
	assert.Equal(t, "city", p.X.Label.Text)
}

func TestPlotNoData(t *testing.T) {
	_, err := Plot(labeled(t), "income", 1, DefaultOptions())
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = Plot(labeled(t), "nope", 0, DefaultOptions())
	assert.Error(t, err)
}

func TestValueCountsOrder(t *testing.T) {
	l := labeled(t)
	c, _ := l.Column("city")
	labels, counts := valueCounts(c, []int{0, 1, 2, 3})
	assert.Equal(t, []string{"Paris", "Lyon", "Nice"}, labels)
	assert.Equal(t, []float64{2, 1, 1}, []float64(counts))
}

func TestWriteDirSkipsEmptyPairs(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteDir(dir, labeled(t), []string{"income", "city"}, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	_, err = os.Stat(filepath.Join(dir, "income_cluster_2.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "city_cluster_2.png"))
	assert.NoError(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "a_b_cluster_3.png", FileName("a/b", 2))
	assert.Equal(t, "feature_cluster_1.png", FileName("", 0))
}
