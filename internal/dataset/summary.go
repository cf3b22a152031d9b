package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ColumnSummary describes one column for the inspect view.
type ColumnSummary struct {
	Name    string          `json:"name" yaml:"name"`
	Kind    Kind            `json:"kind" yaml:"kind"`
	NonNull int             `json:"non_null" yaml:"non_null"`
	Missing int             `json:"missing" yaml:"missing"`
	Unique  int             `json:"unique" yaml:"unique"`
	Mean    float64         `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std     float64         `json:"std,omitempty" yaml:"std,omitempty"`
	Min     float64         `json:"min,omitempty" yaml:"min,omitempty"`
	Max     float64         `json:"max,omitempty" yaml:"max,omitempty"`
	Top     []CategoryCount `json:"top,omitempty" yaml:"top,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// Summary is a compact schema report of a dataset.
type Summary struct {
	Name       string          `json:"name" yaml:"name"`
	Rows       int             `json:"rows" yaml:"rows"`
	Duplicates int             `json:"duplicates_dropped" yaml:"duplicates_dropped"`
	Columns    []ColumnSummary `json:"columns" yaml:"columns"`
}

// Summarize computes per-column counts and statistics.
func (d *Dataset) Summarize() Summary {
	s := Summary{Name: d.Name, Rows: d.rows, Duplicates: d.Duplicates}
	for _, c := range d.Columns {
		cs := ColumnSummary{Name: c.Name, Kind: c.Kind}
		counts := map[string]int{}
		var vals []float64
		for i, cell := range c.Cells {
			if c.Missing[i] {
				cs.Missing++
				continue
			}
			cs.NonNull++
			counts[cell]++
			if c.Kind == KindNumeric {
				vals = append(vals, c.Values[i])
			}
		}
		cs.Unique = len(counts)
		if c.Kind == KindNumeric && len(vals) > 0 {
			cs.Mean, cs.Std = stat.MeanStdDev(vals, nil)
			if math.IsNaN(cs.Std) {
				cs.Std = 0
			}
			cs.Min, cs.Max = vals[0], vals[0]
			for _, v := range vals[1:] {
				cs.Min = math.Min(cs.Min, v)
				cs.Max = math.Max(cs.Max, v)
			}
		}
		if c.Kind == KindCategorical {
			for k, v := range counts {
				cs.Top = append(cs.Top, CategoryCount{Value: k, Count: v})
			}
			sort.Slice(cs.Top, func(i, j int) bool {
				if cs.Top[i].Count == cs.Top[j].Count {
					return cs.Top[i].Value < cs.Top[j].Value
				}
				return cs.Top[i].Count > cs.Top[j].Count
			})
			if len(cs.Top) > 8 {
				cs.Top = cs.Top[:8]
			}
		}
		s.Columns = append(s.Columns, cs)
	}
	return s
}

// Markdown renders the summary in the same sectioned layout used by reports.
func (s Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d", s.Rows))
	if s.Duplicates > 0 {
		b.WriteString(fmt.Sprintf(" (%d duplicate rows dropped)", s.Duplicates))
	}
	b.WriteString(fmt.Sprintf("\nColumns: %d\n\n[SCHEMA]\n", len(s.Columns)))
	for _, c := range s.Columns {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%, unique %d)", c.Name, c.Kind, c.NonNull, missPct, c.Unique))
		switch c.Kind {
		case KindNumeric:
			if c.NonNull > 0 {
				b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			}
		case KindCategorical:
			if len(c.Top) > 0 {
				b.WriteString(": top ")
				for i, kv := range c.Top {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", kv.Value, kv.Count))
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
