// Package chart renders per-cluster feature distributions as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/utils"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoData is returned when a cluster has no values for a feature.
var ErrNoData = errors.New("chart: no data for feature in cluster")

// Options control chart rendering.
type Options struct {
	Bins   int
	Width  vg.Length
	Height vg.Length
}

// DefaultOptions returns 15 bins on a 4x3 inch canvas.
func DefaultOptions() Options {
	return Options{Bins: 15, Width: 4 * vg.Inch, Height: 3 * vg.Inch}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Bins <= 0 {
		o.Bins = d.Bins
	}
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Height <= 0 {
		o.Height = d.Height
	}
	return o
}

// Plot builds the chart of one feature within one cluster: a histogram for
// numeric columns, a bar chart of value counts for categorical ones.
func Plot(l *dataset.Labeled, feature string, cluster int, opt Options) (*plot.Plot, error) {
	opt = opt.withDefaults()
	c, ok := l.Column(feature)
	if !ok {
		return nil, fmt.Errorf("chart: unknown feature %q", feature)
	}
	rows := l.Members(cluster)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cluster %d", cluster+1)
	p.X.Label.Text = feature
	p.Y.Label.Text = "count"
	col := plotutil.Color(cluster)

	if c.Kind == dataset.KindNumeric {
		var vals plotter.Values
		for _, r := range rows {
			if !c.Missing[r] {
				vals = append(vals, c.Values[r])
			}
		}
		if len(vals) == 0 {
			return nil, ErrNoData
		}
		if !constant(vals) {
			h, err := plotter.NewHist(vals, opt.Bins)
			if err != nil {
				return nil, fmt.Errorf("chart: histogram: %w", err)
			}
			h.FillColor = col
			p.Add(h)
			return p, nil
		}
	}

	labels, counts := valueCounts(c, rows)
	if len(labels) == 0 {
		return nil, ErrNoData
	}
	bars, err := plotter.NewBarChart(counts, vg.Points(18))
	if err != nil {
		return nil, fmt.Errorf("chart: bar chart: %w", err)
	}
	bars.Color = col
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)
	return p, nil
}

// PNG renders the chart of one feature within one cluster.
func PNG(l *dataset.Labeled, feature string, cluster int, opt Options) ([]byte, error) {
	opt = opt.withDefaults()
	p, err := Plot(l, feature, cluster, opt)
	if err != nil {
		return nil, err
	}
	wt, err := p.WriterTo(opt.Width, opt.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("chart: png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("chart: render png: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDir renders every (feature, cluster) chart into dir and returns the
// written paths. Pairs without data are skipped.
func WriteDir(dir string, l *dataset.Labeled, features []string, opt Options) ([]string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}
	var written []string
	for _, f := range features {
		for _, id := range l.ClusterIDs() {
			b, err := PNG(l, f, id, opt)
			if errors.Is(err, ErrNoData) {
				continue
			}
			if err != nil {
				return written, err
			}
			path := filepath.Join(dir, FileName(f, id))
			if err := utils.SafeWriteFile(path, b); err != nil {
				return written, fmt.Errorf("write %s: %w", path, err)
			}
			written = append(written, path)
		}
	}
	return written, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns the PNG file name of a (feature, cluster) chart.
func FileName(feature string, cluster int) string {
	name := unsafeChars.ReplaceAllString(feature, "_")
	if name == "" || name == "_" {
		name = "feature"
	}
	return fmt.Sprintf("%s_cluster_%d.png", name, cluster+1)
}

// valueCounts counts the non-missing cells of c over rows, ordered by
// descending count then label.
func valueCounts(c *dataset.Column, rows []int) ([]string, plotter.Values) {
	counts := map[string]int{}
	for _, r := range rows {
		if c.Missing[r] {
			continue
		}
		key := c.Cells[r]
		if c.Kind == dataset.KindNumeric {
			key = strconv.FormatFloat(c.Values[r], 'g', -1, 64)
		}
		counts[key]++
	}
	labels := make([]string, 0, len(counts))
	for k := range counts {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] == counts[labels[j]] {
			return labels[i] < labels[j]
		}
		return counts[labels[i]] > counts[labels[j]]
	})
	vals := make(plotter.Values, len(labels))
	for i, k := range labels {
		vals[i] = float64(counts[k])
	}
	return labels, vals
}

func constant(vals []float64) bool {
	for _, v := range vals[1:] {
		if v != vals[0] || math.IsNaN(v) {
			return false
		}
	}
	return true
}
