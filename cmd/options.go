package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/clusterlens/internal/ai"
	"github.com/KaramelBytes/clusterlens/internal/assistant"
	"github.com/KaramelBytes/clusterlens/internal/chart"
	"github.com/KaramelBytes/clusterlens/internal/cluster"
	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/session"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// loadFlags are the parsing flags shared by every command that reads a dataset.
type loadFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
}

func (lf *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lf.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default from file extension)")
	cmd.Flags().StringVar(&lf.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma'")
	cmd.Flags().StringVar(&lf.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space'")
	cmd.Flags().IntVar(&lf.maxRows, "max-rows", 0, "maximum rows to read (0 = unlimited)")
	cmd.Flags().StringVar(&lf.sheetName, "sheet-name", "", "XLSX: sheet name to load")
	cmd.Flags().IntVar(&lf.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

func (lf *loadFlags) options() (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	opt.MaxRows = lf.maxRows
	opt.SheetName = lf.sheetName
	opt.SheetIndex = lf.sheetIndex
	switch lf.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", lf.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(lf.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", lf.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(lf.thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", lf.thousands)
	}
	return opt, nil
}

func (lf *loadFlags) load(cmd *cobra.Command, path string) (*dataset.Dataset, error) {
	opt, err := lf.options()
	if err != nil {
		return nil, err
	}
	ds, err := dataset.LoadFile(path, opt)
	if err != nil {
		return nil, err
	}
	if ds.Duplicates > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Dropped %d duplicate rows\n", ds.Duplicates)
	}
	return ds, nil
}

// sessionOptions maps the configuration onto pipeline options.
func sessionOptions() session.Options {
	opt := session.DefaultOptions()
	sel := cluster.DefaultSelectOptions()
	if cfg.MaxK > 0 {
		sel.MaxK = cfg.MaxK
	}
	if cfg.KneeSensitivity > 0 {
		sel.Sensitivity = cfg.KneeSensitivity
	}
	// zero is a valid seed
	sel.KMeans.Seed = cfg.Seed
	if cfg.NInit > 0 {
		sel.KMeans.NInit = cfg.NInit
	}
	if cfg.MaxIter > 0 {
		sel.KMeans.MaxIter = cfg.MaxIter
	}
	if cfg.Tolerance >= 0 {
		sel.KMeans.Tolerance = cfg.Tolerance
	}
	opt.Select = sel
	opt.FallbackK = cfg.FallbackK
	if cfg.CacheSize > 0 {
		opt.CacheSize = cfg.CacheSize
	}
	ch := chart.DefaultOptions()
	if cfg.ChartBins > 0 {
		ch.Bins = cfg.ChartBins
	}
	opt.Charts = ch
	return opt
}

// newRuntime builds the model runtime of the configured provider.
func newRuntime() (ai.Runtime, error) {
	baseDelay, maxDelay := cfg.RetryDelays()
	rc := ai.RuntimeConfig{
		HTTPTimeout: cfg.HTTPTimeout(),
		RetryMax:    cfg.RetryMaxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Host:        cfg.OllamaHost,
	}
	rt, ok := ai.GetRuntime(cfg.Provider, rc)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", cfg.Provider, strings.Join(ai.Providers(), ", "))
	}
	return rt, nil
}

func assistantOptions() assistant.Options {
	return assistant.Options{
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		PromptTokenLimit: cfg.PromptTokenLimit,
		Logger:           log,
	}
}

// render encodes v as JSON or YAML, or returns md for markdown.
func render(format, md string, v any) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "markdown", "md":
		return []byte(md), nil
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(b, '\n'), nil
	case "yaml", "yml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported --format: %s (use markdown|json|yaml)", format)
}

// emit writes out to path, or to the command's stdout when path is empty.
func emit(cmd *cobra.Command, path string, out []byte, what string) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(out)
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s to %s\n", what, path)
	return nil
}
