package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/KaramelBytes/clusterlens/internal/ai"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models, their context windows and pricing",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tCONTEXT\tIN $/1K\tOUT $/1K")
		for _, m := range ai.Catalog() {
			fmt.Fprintf(tw, "%s\t%d\t%.5f\t%.5f\n", m.Name, m.ContextTokens, m.InputPerK, m.OutputPerK)
		}
		fmt.Fprintf(tw, "\nproviders: %v\n", ai.Providers())
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
