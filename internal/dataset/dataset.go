package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Kind classifies a column for encoding purposes.
type Kind int

const (
	KindNumeric Kind = iota
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// MarshalText lets reports render the kind by name in JSON and YAML.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Column stores one column of the table. Cells holds the trimmed source text,
// Values the parsed numbers for numeric columns (NaN where missing).
type Column struct {
	Name    string
	Kind    Kind
	Cells   []string
	Values  []float64
	Missing []bool
}

// Dataset is an in-memory, de-duplicated table with typed columns.
type Dataset struct {
	Name       string
	Columns    []*Column
	Duplicates int

	rows  int
	index map[string]int
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return d.rows
}

// ColumnNames returns the header in source order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by exact name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.Columns[i], true
}

// Row returns the source cells of row i.
func (d *Dataset) Row(i int) []string {
	out := make([]string, len(d.Columns))
	for j, c := range d.Columns {
		out[j] = c.Cells[i]
	}
	return out
}

// Subset returns a new dataset holding the given rows in the given order.
// Column kinds are preserved even if the subset alone would infer differently.
func (d *Dataset) Subset(rows []int) *Dataset {
	out := &Dataset{Name: d.Name, rows: len(rows), index: make(map[string]int, len(d.Columns))}
	for j, c := range d.Columns {
		nc := &Column{
			Name:    c.Name,
			Kind:    c.Kind,
			Cells:   make([]string, len(rows)),
			Missing: make([]bool, len(rows)),
		}
		if c.Kind == KindNumeric {
			nc.Values = make([]float64, len(rows))
		}
		for i, r := range rows {
			nc.Cells[i] = c.Cells[r]
			nc.Missing[i] = c.Missing[r]
			if nc.Values != nil {
				nc.Values[i] = c.Values[r]
			}
		}
		out.Columns = append(out.Columns, nc)
		out.index[c.Name] = j
	}
	return out
}

// ContentHash identifies the dataset by its content: header and every row.
func (d *Dataset) ContentHash() string {
	h := sha256.New()
	for _, name := range d.ColumnNames() {
		io.WriteString(h, name)
		h.Write([]byte{0x1f})
	}
	h.Write([]byte{0x1e})
	for i := 0; i < d.rows; i++ {
		for _, c := range d.Columns {
			if c.Missing[i] {
				h.Write([]byte{0x00})
			} else {
				io.WriteString(h, c.Cells[i])
			}
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WriteCSV serializes the dataset with its header. Missing cells are written empty.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(d.Columns))
	for i := 0; i < d.rows; i++ {
		for j, c := range d.Columns {
			if c.Missing[i] {
				rec[j] = ""
			} else {
				rec[j] = c.Cells[i]
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV returns the dataset serialized as CSV text.
func (d *Dataset) CSV() (string, error) {
	var b strings.Builder
	if err := d.WriteCSV(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// FromRecords builds a dataset from a header and raw records. Duplicate rows
// are dropped keeping the first occurrence.
func FromRecords(name string, header []string, records [][]string, opt Options) (*Dataset, error) {
	if len(header) == 0 {
		return nil, &UploadFormatError{Name: name, Err: errNoHeader}
	}
	d := &Dataset{Name: name, index: make(map[string]int, len(header))}
	for j, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", j)
		}
		if _, dup := d.index[h]; dup {
			return nil, &UploadFormatError{Name: name, Line: 1, Err: fmt.Errorf("duplicate column name %q", h)}
		}
		d.index[h] = j
		d.Columns = append(d.Columns, &Column{Name: h})
	}
	ncol := len(header)
	for i, rec := range records {
		if len(rec) > ncol {
			return nil, &UploadFormatError{
				Name: name,
				Line: i + 2,
				Err:  fmt.Errorf("expected %d fields, saw %d", ncol, len(rec)),
			}
		}
		for j, c := range d.Columns {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			c.Cells = append(c.Cells, v)
			c.Missing = append(c.Missing, opt.isMissing(v))
		}
	}
	d.rows = len(records)
	for _, c := range d.Columns {
		if row, bad := inferKind(c, opt); bad {
			return nil, &UploadFormatError{
				Name: name,
				Line: row + 2,
				Err:  fmt.Errorf("column %q: non-finite number %q", c.Name, c.Cells[row]),
			}
		}
	}

	// Rows are compared by value, so 1 and 1.0 are the same number.
	seen := make(map[string]struct{}, d.rows)
	keep := make([]int, 0, d.rows)
	var key strings.Builder
	for i := 0; i < d.rows; i++ {
		key.Reset()
		for _, c := range d.Columns {
			switch {
			case c.Missing[i]:
				key.WriteByte(0)
			case c.Kind == KindNumeric:
				key.WriteString(strconv.FormatFloat(c.Values[i]+0, 'g', -1, 64)) // +0 folds -0 into 0
			default:
				key.WriteString(c.Cells[i])
			}
			key.WriteByte(0x1f)
		}
		k := key.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == d.rows {
		return d, nil
	}
	out := d.Subset(keep)
	out.Duplicates = d.rows - len(keep)
	return out, nil
}

// inferKind marks a column numeric when every non-missing cell parses as a number.
// It reports the first row holding an infinite value, which no column may contain.
func inferKind(c *Column, opt Options) (int, bool) {
	vals := make([]float64, len(c.Cells))
	for i, cell := range c.Cells {
		if c.Missing[i] {
			vals[i] = math.NaN()
			continue
		}
		x, ok := parseNumeric(cell, opt)
		if !ok {
			c.Kind = KindCategorical
			c.Values = nil
			return 0, false
		}
		vals[i] = x
	}
	c.Kind = KindNumeric
	c.Values = vals
	for i, x := range vals {
		if math.IsInf(x, 0) {
			return i, true
		}
		if math.IsNaN(x) {
			c.Missing[i] = true
		}
	}
	return 0, false
}
