package preprocess

import (
	"math"
	"sort"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
)

// Encoding maps the labels of one categorical column to integer codes.
// Codes follow the sorted (byte-wise) order of the distinct labels, so the same
// column always encodes the same way regardless of row order.
type Encoding struct {
	Column  string   `json:"column" yaml:"column"`
	Classes []string `json:"classes" yaml:"classes"`

	codes map[string]int
}

// NewEncoding fits an encoding over the non-missing cells of a column.
func NewEncoding(c *dataset.Column) *Encoding {
	seen := map[string]struct{}{}
	for i, cell := range c.Cells {
		if c.Missing[i] {
			continue
		}
		seen[cell] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for k := range seen {
		classes = append(classes, k)
	}
	sort.Strings(classes)
	return newEncoding(c.Name, classes)
}

func newEncoding(column string, classes []string) *Encoding {
	e := &Encoding{Column: column, Classes: classes, codes: make(map[string]int, len(classes))}
	for i, cl := range classes {
		e.codes[cl] = i
	}
	return e
}

// Code returns the integer code of a label.
func (e *Encoding) Code(label string) (int, bool) {
	c, ok := e.codes[label]
	return c, ok
}

// Label returns the label of a code.
func (e *Encoding) Label(code int) (string, bool) {
	if code < 0 || code >= len(e.Classes) {
		return "", false
	}
	return e.Classes[code], true
}

// Encode returns the column as codes, NaN where missing.
func (e *Encoding) Encode(c *dataset.Column) []float64 {
	out := make([]float64, len(c.Cells))
	for i, cell := range c.Cells {
		code, ok := e.codes[cell]
		if c.Missing[i] || !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(code)
	}
	return out
}

// Nearest decodes a continuous value to the label whose code is closest.
// Exact ties go to the smaller code. NaN or an empty table decodes to "".
func (e *Encoding) Nearest(v float64) string {
	if len(e.Classes) == 0 || math.IsNaN(v) {
		return ""
	}
	best, bestDist := 0, math.Inf(1)
	for code := range e.Classes {
		d := math.Abs(float64(code) - v)
		if d < bestDist {
			best, bestDist = code, d
		}
	}
	return e.Classes[best]
}

// Encodings indexes encoding tables by column name.
type Encodings map[string]*Encoding

// For returns the table of a categorical column, fitting one with the same
// sorted strategy when none was recorded.
func (es Encodings) For(c *dataset.Column) *Encoding {
	if e, ok := es[c.Name]; ok && e != nil {
		return e
	}
	return NewEncoding(c)
}

// Numeric returns a column as float64 values (codes for categorical columns),
// NaN where missing.
func (es Encodings) Numeric(c *dataset.Column) []float64 {
	if c.Kind == dataset.KindCategorical {
		return es.For(c).Encode(c)
	}
	out := make([]float64, len(c.Values))
	copy(out, c.Values)
	return out
}
