// Package profile describes how the clusters of a labeled dataset differ.
package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/preprocess"
	"gonum.org/v1/gonum/stat"
)

// topFeatures is how many ranked features the summary text mentions.
const topFeatures = 3

// NoClusterColumnError is returned when there is no assignment to profile,
// or when the assignment was produced by a different feature selection.
type NoClusterColumnError struct {
	Current  []string
	Assigned []string
}

func (e *NoClusterColumnError) Error() string {
	if e.Assigned == nil {
		return "no clusters found yet; run clustering first"
	}
	return fmt.Sprintf("clusters were computed for [%s] but the selection is now [%s]; run clustering again",
		strings.Join(e.Assigned, ", "), strings.Join(e.Current, ", "))
}

// Number is a float that encodes NaN as null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(n))
}

func (n Number) MarshalYAML() (interface{}, error) {
	if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
		return nil, nil
	}
	return float64(n), nil
}

// ClusterMeans holds one cluster's rounded feature means, aligned with
// Profile.Features. Values carries the display form: the decoded label for
// categorical features, the two-decimal mean otherwise.
type ClusterMeans struct {
	Cluster int      `json:"cluster" yaml:"cluster"`
	Size    int      `json:"size" yaml:"size"`
	Means   []Number `json:"means" yaml:"means"`
	Values  []string `json:"values" yaml:"values"`
}

// Importance scores how strongly a feature separates clusters.
type Importance struct {
	Feature  string  `json:"feature" yaml:"feature"`
	Variance float64 `json:"variance" yaml:"variance"`
	Spread   float64 `json:"spread" yaml:"spread"`
}

// Profile is the full per-cluster report.
type Profile struct {
	Features []string       `json:"features" yaml:"features"`
	Clusters []ClusterMeans `json:"clusters" yaml:"clusters"`
	Ranking  []Importance   `json:"ranking" yaml:"ranking"`
	Summary  string         `json:"summary" yaml:"summary"`
	Stats    []Describe     `json:"stats" yaml:"stats"`
}

// Build profiles a labeled dataset for the given selection, reusing enc for
// categorical columns.
func Build(l *dataset.Labeled, features []string, enc preprocess.Encodings) (*Profile, error) {
	if l == nil || l.Labels == nil {
		return nil, &NoClusterColumnError{Current: features}
	}
	if !sameSelection(l.Selection, features) {
		return nil, &NoClusterColumnError{Current: features, Assigned: l.Selection}
	}
	if enc == nil {
		enc = preprocess.Encodings{}
	}

	cols := make([][]float64, len(features))
	kinds := make([]*preprocess.Encoding, len(features))
	for j, name := range features {
		c, ok := l.Column(name)
		if !ok {
			return nil, &preprocess.UnknownFeatureError{Feature: name}
		}
		cols[j] = enc.Numeric(c)
		if c.Kind == dataset.KindCategorical {
			kinds[j] = enc.For(c)
		}
	}

	p := &Profile{Features: append([]string(nil), features...)}
	ids := l.ClusterIDs()
	for _, id := range ids {
		rows := l.Members(id)
		cm := ClusterMeans{Cluster: id, Size: len(rows)}
		for j := range features {
			m := round2(meanAt(cols[j], rows))
			cm.Means = append(cm.Means, Number(m))
			switch {
			case kinds[j] != nil:
				cm.Values = append(cm.Values, kinds[j].Nearest(m))
			case math.IsNaN(m):
				cm.Values = append(cm.Values, "")
			default:
				cm.Values = append(cm.Values, fmt.Sprintf("%.2f", m))
			}
		}
		p.Clusters = append(p.Clusters, cm)
	}

	p.Ranking = rank(features, p.Clusters)
	p.Summary = summarize(p.Ranking)
	p.Stats = describeClusters(l, ids, enc)
	return p, nil
}

func sameSelection(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// meanAt averages vals over rows, skipping NaN. No values gives NaN.
func meanAt(vals []float64, rows []int) float64 {
	var sum float64
	var n int
	for _, r := range rows {
		if v := vals[r]; !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func round2(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}

// rank orders features by the sample variance of their cluster means.
func rank(features []string, clusters []ClusterMeans) []Importance {
	out := make([]Importance, len(features))
	for j, f := range features {
		var means []float64
		for _, c := range clusters {
			if m := float64(c.Means[j]); !math.IsNaN(m) {
				means = append(means, m)
			}
		}
		imp := Importance{Feature: f}
		if len(means) >= 2 {
			imp.Variance = stat.Variance(means, nil)
		}
		if len(means) > 0 {
			lo, hi := means[0], means[0]
			for _, m := range means[1:] {
				lo = math.Min(lo, m)
				hi = math.Max(hi, m)
			}
			imp.Spread = hi - lo
		}
		out[j] = imp
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Variance > out[b].Variance })
	return out
}

func summarize(ranking []Importance) string {
	top := ranking
	if len(top) > topFeatures {
		top = top[:topFeatures]
	}
	names := make([]string, len(top))
	for i, imp := range top {
		names[i] = imp.Feature
	}
	var b strings.Builder
	b.WriteString("The clusters differ most based on: " + strings.Join(names, ", ") + ".\n\n")
	for _, imp := range top {
		b.WriteString(fmt.Sprintf("- **%s** varies by ~%.2f across clusters.\n", imp.Feature, imp.Spread))
	}
	return b.String()
}

// Markdown renders the means table, the ranking and the summary.
func (p *Profile) Markdown() string {
	var b strings.Builder
	b.WriteString("## Cluster profiles (mean feature values)\n\n")
	b.WriteString("| Cluster | Size | " + strings.Join(p.Features, " | ") + " |\n")
	b.WriteString("|---|---|" + strings.Repeat("---|", len(p.Features)) + "\n")
	for _, c := range p.Clusters {
		b.WriteString(fmt.Sprintf("| %d | %d | %s |\n", c.Cluster+1, c.Size, strings.Join(c.Values, " | ")))
	}
	b.WriteString("\n## Features separating clusters the most\n\n| Feature | Variance |\n|---|---|\n")
	for _, imp := range p.Ranking {
		b.WriteString(fmt.Sprintf("| %s | %.4f |\n", imp.Feature, imp.Variance))
	}
	b.WriteString("\n## Summary of differences\n\n")
	b.WriteString(p.Summary)
	return b.String()
}
