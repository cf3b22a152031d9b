package cmd

import (
	"github.com/spf13/cobra"
)

var (
	inspLoad   loadFlags
	inspFormat string
	inspOutput string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Summarize the columns of a CSV/TSV/XLSX dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := inspLoad.load(cmd, args[0])
		if err != nil {
			return err
		}
		sum := ds.Summarize()
		out, err := render(inspFormat, sum.Markdown(), sum)
		if err != nil {
			return err
		}
		return emit(cmd, inspOutput, out, "summary")
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspLoad.register(inspectCmd)
	inspectCmd.Flags().StringVar(&inspFormat, "format", "markdown", "output format: markdown|json|yaml")
	inspectCmd.Flags().StringVarP(&inspOutput, "output", "o", "", "optional path to write the summary")
}
