package dataset

import (
	"fmt"
	"sort"
)

// Labeled joins a cluster assignment to a dataset together with the feature
// selection that produced it.
type Labeled struct {
	*Dataset
	Labels    []int
	K         int
	Selection []string
}

// NewLabeled validates that labels align with rows and lie in [0, k).
func NewLabeled(d *Dataset, labels []int, k int, selection []string) (*Labeled, error) {
	if d == nil {
		return nil, fmt.Errorf("dataset is nil")
	}
	if len(labels) != d.Len() {
		return nil, fmt.Errorf("label count %d does not match row count %d", len(labels), d.Len())
	}
	for i, l := range labels {
		if l < 0 || l >= k {
			return nil, fmt.Errorf("row %d: label %d outside [0,%d)", i, l, k)
		}
	}
	sel := make([]string, len(selection))
	copy(sel, selection)
	return &Labeled{Dataset: d, Labels: labels, K: k, Selection: sel}, nil
}

// ClusterIDs returns the distinct labels in ascending order.
func (l *Labeled) ClusterIDs() []int {
	seen := map[int]bool{}
	var ids []int
	for _, c := range l.Labels {
		if !seen[c] {
			seen[c] = true
			ids = append(ids, c)
		}
	}
	sort.Ints(ids)
	return ids
}

// Members returns the row indices belonging to a cluster, in row order.
func (l *Labeled) Members(cluster int) []int {
	var rows []int
	for i, c := range l.Labels {
		if c == cluster {
			rows = append(rows, i)
		}
	}
	return rows
}

// Sizes returns the row count per cluster id.
func (l *Labeled) Sizes() map[int]int {
	out := make(map[int]int, l.K)
	for _, c := range l.Labels {
		out[c]++
	}
	return out
}
