package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/clusterlens/internal/chart"
	"github.com/KaramelBytes/clusterlens/internal/export"
	"github.com/KaramelBytes/clusterlens/internal/profile"
	"github.com/KaramelBytes/clusterlens/internal/session"
	"github.com/spf13/cobra"
)

var (
	cluLoad      loadFlags
	cluFeatures  []string
	cluK         int
	cluFallbackK int
	cluMaxK      int
	cluSeed      int64
	cluExportDir string
	cluChartDir  string
	cluFormat    string
	cluOutput    string
)

// report is the machine-readable result of the cluster command.
type report struct {
	Dataset string           `json:"dataset" yaml:"dataset"`
	Rows    int              `json:"rows" yaml:"rows"`
	Result  *session.Result  `json:"result" yaml:"result"`
	Profile *profile.Profile `json:"profile" yaml:"profile"`
	Exports *export.Manifest `json:"exports,omitempty" yaml:"exports,omitempty"`
	Charts  []string         `json:"charts,omitempty" yaml:"charts,omitempty"`
}

func (r *report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Clusters in %s\n\n", r.Dataset)
	fmt.Fprintf(&b, "- Rows: %d\n- Features: %s\n", r.Rows, strings.Join(r.Result.Selection, ", "))
	if len(r.Result.Dropped) > 0 {
		fmt.Fprintf(&b, "- Constant features ignored: %s\n", strings.Join(r.Result.Dropped, ", "))
	}
	switch {
	case r.Result.Fallback:
		fmt.Fprintf(&b, "- Clusters: %d (no elbow found, fallback)\n", r.Result.K)
	case r.Result.Elbow != nil:
		fmt.Fprintf(&b, "- Clusters: %d (elbow over k=1..%d)\n", r.Result.K, r.Result.Elbow.MaxK)
	default:
		fmt.Fprintf(&b, "- Clusters: %d (fixed)\n", r.Result.K)
	}
	fmt.Fprintf(&b, "- Inertia: %.4f after %d iterations\n", r.Result.Inertia, r.Result.Iterations)
	if r.Result.Elbow != nil && len(r.Result.Elbow.WCSS) > 0 {
		b.WriteString("\n## Within-cluster sum of squares\n\n| k | WCSS |\n|---|---|\n")
		for i, w := range r.Result.Elbow.WCSS {
			fmt.Fprintf(&b, "| %d | %.4f |\n", i+1, w)
		}
	}
	b.WriteString("\n")
	b.WriteString(r.Profile.Markdown())
	b.WriteString("\n")
	if r.Exports != nil {
		b.WriteString("\n## Exports\n\n")
		for _, e := range r.Exports.Clusters {
			fmt.Fprintf(&b, "- Cluster %d: %s (%d rows)\n", e.Cluster, e.File, e.Rows)
		}
	}
	if len(r.Charts) > 0 {
		fmt.Fprintf(&b, "\n%d charts written.\n", len(r.Charts))
	}
	return b.String()
}

var clusterCmd = &cobra.Command{
	Use:   "cluster <file>",
	Short: "Cluster a dataset on the selected features and profile the clusters",
	Example: `  clusterlens cluster customers.csv -f age,income,segment
  clusterlens cluster sales.xlsx -f revenue,units --k 4 --export-dir out/
  clusterlens cluster data.csv -f a,b --format json -o report.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := cluLoad.load(cmd, args[0])
		if err != nil {
			return err
		}
		opt := sessionOptions()
		f := cmd.Flags()
		if f.Changed("fallback-k") {
			opt.FallbackK = cluFallbackK
		}
		if f.Changed("max-k") {
			opt.Select.MaxK = cluMaxK
		}
		if f.Changed("seed") {
			opt.Select.KMeans.Seed = cluSeed
		}
		if cluK < 0 {
			return fmt.Errorf("--k must be positive, got %d", cluK)
		}

		s := session.New(opt, log)
		s.Load(ds)
		if err := s.Select(cluFeatures); err != nil {
			return err
		}
		res, _, err := s.ClusterK(cluK)
		if err != nil {
			return err
		}
		prof, err := s.Profile()
		if err != nil {
			return err
		}
		rep := &report{Dataset: ds.Name, Rows: ds.Len(), Result: res, Profile: prof}

		if cluExportDir != "" {
			m, err := s.ExportDir(cluExportDir)
			if err != nil {
				return err
			}
			rep.Exports = m
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d clusters to %s\n", len(m.Clusters), cluExportDir)
		}
		if cluChartDir != "" {
			paths, err := chart.WriteDir(cluChartDir, res.Labeled, res.Selection, opt.Charts)
			if err != nil {
				return err
			}
			rep.Charts = paths
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %d charts to %s\n", len(paths), cluChartDir)
		}

		out, err := render(cluFormat, rep.Markdown(), rep)
		if err != nil {
			return err
		}
		return emit(cmd, cluOutput, out, "report")
	},
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	cluLoad.register(clusterCmd)
	clusterCmd.Flags().StringSliceVarP(&cluFeatures, "features", "f", nil, "comma-separated columns to cluster on (required)")
	clusterCmd.Flags().IntVar(&cluK, "k", 0, "fixed number of clusters (skips the elbow search)")
	clusterCmd.Flags().IntVar(&cluFallbackK, "fallback-k", 0, "clusters to use when the WCSS curve has no elbow (overrides config)")
	clusterCmd.Flags().IntVar(&cluMaxK, "max-k", 10, "largest k tried by the elbow search (overrides config)")
	clusterCmd.Flags().Int64Var(&cluSeed, "seed", 42, "random seed for K-means (overrides config)")
	clusterCmd.Flags().StringVar(&cluExportDir, "export-dir", "", "write one CSV per cluster plus manifest.json into this directory")
	clusterCmd.Flags().StringVar(&cluChartDir, "chart-dir", "", "write per-cluster feature charts (PNG) into this directory")
	clusterCmd.Flags().StringVar(&cluFormat, "format", "markdown", "report format: markdown|json|yaml")
	clusterCmd.Flags().StringVarP(&cluOutput, "output", "o", "", "optional path to write the report")
	_ = clusterCmd.MarkFlagRequired("features")
}
