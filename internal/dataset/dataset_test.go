package dataset

import (
	"archive/zip"
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `age,city,income
34,Paris,52000
29,Lyon,
34,Paris,52000
41,Nice,61000
NA,Lyon,48000
`

func TestReadCSVInfersKindsAndDropsDuplicates(t *testing.T) {
	d, err := ReadCSV(strings.NewReader(sampleCSV), "people.csv", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 4, d.Len())
	assert.Equal(t, 1, d.Duplicates)
	assert.Equal(t, []string{"age", "city", "income"}, d.ColumnNames())

	age, ok := d.Column("age")
	require.True(t, ok)
	assert.Equal(t, KindNumeric, age.Kind)
	assert.True(t, age.Missing[3])
	assert.True(t, math.IsNaN(age.Values[3]))
	assert.Equal(t, 41.0, age.Values[2])

	city, _ := d.Column("city")
	assert.Equal(t, KindCategorical, city.Kind)
	assert.Nil(t, city.Values)

	income, _ := d.Column("income")
	assert.Equal(t, KindNumeric, income.Kind)
	assert.True(t, income.Missing[1])
}

func TestReadCSVStripsBOMAndNamesBlankHeaders(t *testing.T) {
	in := "\ufeffx,,y\n1,2,3\n"
	d, err := ReadCSV(strings.NewReader(in), "bom.csv", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "Unnamed: 1", "y"}, d.ColumnNames())
}

func TestReadCSVPadsShortRows(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("a,b,c\n1,2\n3,4,5\n"), "short.csv", DefaultOptions())
	require.NoError(t, err)
	c, _ := d.Column("c")
	assert.True(t, c.Missing[0])
	assert.Equal(t, KindNumeric, c.Kind)
}

func TestReadCSVRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"too many fields", "a,b\n1,2,3\n"},
		{"duplicate header", "a,a\n1,2\n"},
		{"bare quote", "a,b\n\"1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in), "bad.csv", DefaultOptions())
			var ufe *UploadFormatError
			require.Error(t, err)
			assert.True(t, errors.As(err, &ufe), "want UploadFormatError, got %T", err)
		})
	}
}

func TestReadCSVLocaleNumbers(t *testing.T) {
	opt := DefaultOptions()
	opt.Delimiter = ';'
	opt.DecimalSeparator = ','
	opt.ThousandsSeparator = '.'
	d, err := ReadCSV(strings.NewReader("v;w\n1.000,5;a\n2,25;b\n"), "eu.csv", opt)
	require.NoError(t, err)
	v, _ := d.Column("v")
	require.Equal(t, KindNumeric, v.Kind)
	assert.InDelta(t, 1000.5, v.Values[0], 1e-9)
	assert.InDelta(t, 2.25, v.Values[1], 1e-9)
}

func TestLoadFileDetectsTSV(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data.tsv")
	require.NoError(t, os.WriteFile(p, []byte("a\tb\n1\tx\n2\ty\n"), 0o644))
	d, err := LoadFile(p, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "data.tsv", d.Name)
	assert.Equal(t, 2, d.Len())
}

func TestContentHashIgnoresIdentity(t *testing.T) {
	a, err := ReadCSV(strings.NewReader(sampleCSV), "a.csv", DefaultOptions())
	require.NoError(t, err)
	b, err := ReadCSV(strings.NewReader(sampleCSV), "b.csv", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a.ContentHash(), b.ContentHash())

	c, err := ReadCSV(strings.NewReader(strings.Replace(sampleCSV, "Nice", "Nizza", 1)), "c.csv", DefaultOptions())
	require.NoError(t, err)
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())
}

func TestSubsetAndWriteCSV(t *testing.T) {
	d, err := ReadCSV(strings.NewReader(sampleCSV), "p.csv", DefaultOptions())
	require.NoError(t, err)
	sub := d.Subset([]int{2, 0})
	out, err := sub.CSV()
	require.NoError(t, err)
	assert.Equal(t, "age,city,income\n41,Nice,61000\n34,Paris,52000\n", out)
}

func TestSummarize(t *testing.T) {
	d, err := ReadCSV(strings.NewReader(sampleCSV), "p.csv", DefaultOptions())
	require.NoError(t, err)
	s := d.Summarize()
	require.Len(t, s.Columns, 3)
	assert.Equal(t, 1, s.Columns[0].Missing)
	assert.Equal(t, 3, s.Columns[1].Unique)
	assert.Equal(t, "Lyon", s.Columns[1].Top[0].Value)
	md := s.Markdown()
	assert.Contains(t, md, "1 duplicate rows dropped")
	assert.Contains(t, md, "- city: categorical")
}

func TestNewLabeledValidates(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("a\n1\n2\n3\n"), "l.csv", DefaultOptions())
	require.NoError(t, err)

	_, err = NewLabeled(d, []int{0, 1}, 2, []string{"a"})
	assert.Error(t, err)
	_, err = NewLabeled(d, []int{0, 1, 2}, 2, []string{"a"})
	assert.Error(t, err)

	l, err := NewLabeled(d, []int{1, 0, 1}, 2, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, l.ClusterIDs())
	assert.Equal(t, []int{0, 2}, l.Members(1))
	assert.Equal(t, map[int]int{0: 1, 1: 2}, l.Sizes())
}

func buildXLSX(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"xl/workbook.xml": `<workbook xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>` +
			`<sheet name="Data" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships><Relationship Id="rId1" Target="/xl/worksheets/sheet1.xml"/></Relationships>`,
		"xl/sharedStrings.xml":       `<sst><si><t>x</t></si><si><t>label</t></si><si><t>red</t></si><si><t>blue</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>` +
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>` +
			`<row r="2"><c r="A2"><v>1.5</v></c><c r="B2" t="s"><v>2</v></c></row>` +
			`<row r="3"><c r="B3" t="s"><v>3</v></c></row>` +
			`</sheetData></worksheet>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	d, err := ReadXLSX(buildXLSX(t), "book.xlsx", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "label"}, d.ColumnNames())
	assert.Equal(t, 2, d.Len())
	x, _ := d.Column("x")
	assert.Equal(t, KindNumeric, x.Kind)
	assert.True(t, x.Missing[1])
	label, _ := d.Column("label")
	assert.Equal(t, []string{"red", "blue"}, label.Cells)

	opt := DefaultOptions()
	opt.SheetName = "Missing"
	_, err = ReadXLSX(buildXLSX(t), "book.xlsx", opt)
	var ufe *UploadFormatError
	assert.True(t, errors.As(err, &ufe))
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeRelPath(tt.in), tt.in)
	}
}

func TestReadCSVDropsDuplicatesByValue(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("a,b\n1,2\n1.0,2.00\n3,4\n"), "dups.csv", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 1, d.Duplicates)
	assert.Equal(t, []string{"1", "2"}, d.Row(0))
	assert.Equal(t, []string{"3", "4"}, d.Row(1))
	a, _ := d.Column("a")
	assert.Equal(t, []float64{1, 3}, a.Values)

	// text columns still compare verbatim
	d, err = ReadCSV(strings.NewReader("a,b\n1,x\n1.0,x\n1,X\n"), "mixed.csv", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
}

func TestReadCSVRejectsInfiniteNumbers(t *testing.T) {
	for _, in := range []string{"a,b\n1,2\ninf,3\n3,4\n", "a,b\n1,2\n3,-Infinity\n"} {
		_, err := ReadCSV(strings.NewReader(in), "inf.csv", DefaultOptions())
		var ufe *UploadFormatError
		require.True(t, errors.As(err, &ufe), "want UploadFormatError, got %v", err)
		assert.Contains(t, err.Error(), "non-finite")
	}
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\ninf,3\n"), "inf.csv", DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestReadCSVTreatsNaNSpellingsAsMissing(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("a\n1\nNAN\n3\n"), "nan.csv", DefaultOptions())
	require.NoError(t, err)
	a, _ := d.Column("a")
	assert.Equal(t, KindNumeric, a.Kind)
	assert.True(t, a.Missing[1])
}

func TestReadCSVKeepsNaNTextInCategoricalColumns(t *testing.T) {
	d, err := ReadCSV(strings.NewReader("a\nNAN\napple\n"), "cat.csv", DefaultOptions())
	require.NoError(t, err)
	a, _ := d.Column("a")
	assert.Equal(t, KindCategorical, a.Kind)
	assert.False(t, a.Missing[0])
}
