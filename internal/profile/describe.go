package profile

import (
	"math"
	"sort"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/preprocess"
	"gonum.org/v1/gonum/stat"
)

// ColumnStats are the descriptive statistics of one column within a cluster.
type ColumnStats struct {
	Column string `json:"column" yaml:"column"`
	Count  int    `json:"count" yaml:"count"`
	Mean   Number `json:"mean" yaml:"mean"`
	Std    Number `json:"std" yaml:"std"`
	Min    Number `json:"min" yaml:"min"`
	Q25    Number `json:"p25" yaml:"p25"`
	Q50    Number `json:"p50" yaml:"p50"`
	Q75    Number `json:"p75" yaml:"p75"`
	Max    Number `json:"max" yaml:"max"`
}

// Describe holds the statistics of every dataset column for one cluster.
// Categorical columns are described by their codes.
type Describe struct {
	Cluster int           `json:"cluster" yaml:"cluster"`
	Columns []ColumnStats `json:"columns" yaml:"columns"`
}

func describeClusters(l *dataset.Labeled, ids []int, enc preprocess.Encodings) []Describe {
	all := make([][]float64, len(l.Columns))
	for j, c := range l.Columns {
		all[j] = enc.Numeric(c)
	}
	out := make([]Describe, 0, len(ids))
	for _, id := range ids {
		rows := l.Members(id)
		d := Describe{Cluster: id}
		for j, c := range l.Columns {
			d.Columns = append(d.Columns, describe(c.Name, all[j], rows))
		}
		out = append(out, d)
	}
	return out
}

func describe(name string, vals []float64, rows []int) ColumnStats {
	xs := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v := vals[r]; !math.IsNaN(v) {
			xs = append(xs, v)
		}
	}
	cs := ColumnStats{Column: name, Count: len(xs)}
	nan := Number(math.NaN())
	if len(xs) == 0 {
		cs.Mean, cs.Std, cs.Min, cs.Q25, cs.Q50, cs.Q75, cs.Max = nan, nan, nan, nan, nan, nan, nan
		return cs
	}
	sort.Float64s(xs)
	mean, std := stat.MeanStdDev(xs, nil)
	cs.Mean = Number(mean)
	cs.Std = Number(std)
	if len(xs) < 2 {
		cs.Std = nan
	}
	cs.Min = Number(xs[0])
	cs.Q25 = Number(quantile(xs, 0.25))
	cs.Q50 = Number(quantile(xs, 0.5))
	cs.Q75 = Number(quantile(xs, 0.75))
	cs.Max = Number(xs[len(xs)-1])
	return cs
}

// quantile linearly interpolates between closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
