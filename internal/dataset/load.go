package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options controls how uploads are parsed.
type Options struct {
	// Delimiter for CSV. If 0, '\t' for .tsv names and ',' otherwise.
	Delimiter rune
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
	// Numeric parsing locale. Zero values mean '.' decimal and no thousands separator.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// MissingTokens overrides the default set of cell values treated as missing.
	MissingTokens []string
	// XLSX sheet selection. Empty name and index <= 0 select the first sheet.
	SheetName  string
	SheetIndex int
}

var defaultMissing = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None", "#N/A"}

// DefaultOptions returns reasonable defaults for uploads.
func DefaultOptions() Options {
	return Options{}
}

func (o Options) isMissing(v string) bool {
	tokens := o.MissingTokens
	if tokens == nil {
		tokens = defaultMissing
	}
	if v == "" {
		return true
	}
	for _, t := range tokens {
		if v == t {
			return true
		}
	}
	return false
}

var errNoHeader = errors.New("missing header row")

// UploadFormatError reports a malformed upload.
type UploadFormatError struct {
	Name string
	Line int
	Err  error
}

func (e *UploadFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed upload %s (line %d): %v", e.Name, e.Line, e.Err)
	}
	return fmt.Sprintf("malformed upload %s: %v", e.Name, e.Err)
}

func (e *UploadFormatError) Unwrap() error { return e.Err }

// ReadCSV parses CSV text into a Dataset. The name is used for delimiter
// sniffing and error messages.
func ReadCSV(r io.Reader, name string, opt Options) (*Dataset, error) {
	// Strip a UTF-8 byte-order mark so it does not leak into the first column name.
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = opt.Delimiter
	if cr.Comma == 0 {
		cr.Comma = sniffDelimiter(name)
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &UploadFormatError{Name: name, Err: errNoHeader}
		}
		return nil, &UploadFormatError{Name: name, Line: 1, Err: err}
	}
	var records [][]string
	for {
		if opt.MaxRows > 0 && len(records) >= opt.MaxRows {
			break
		}
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &UploadFormatError{Name: name, Line: perr.Line, Err: perr.Err}
			}
			return nil, &UploadFormatError{Name: name, Line: len(records) + 2, Err: err}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(header) > 1 {
			continue
		}
		records = append(records, rec)
	}
	return FromRecords(name, header, records, opt)
}

// LoadFile reads a CSV, TSV or XLSX file from disk.
func LoadFile(path string, opt Options) (*Dataset, error) {
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read xlsx: %w", err)
		}
		return ReadXLSX(b, name, opt)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, name, opt)
}

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(s, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	dec, thou := opt.DecimalSeparator, opt.ThousandsSeparator
	if thou != 0 && thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != 0 && dec != '.' {
		if strings.ContainsRune(raw, '.') && thou != '.' {
			return 0, false
		}
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
