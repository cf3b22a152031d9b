package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/KaramelBytes/clusterlens/internal/assistant"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	askLoad        loadFlags
	askModel       string
	askProvider    string
	askTemperature float64
	askMaxTokens   int
	askPromptLimit int
	askFormat      string
)

var askCmd = &cobra.Command{
	Use:   "ask <file> <question...>",
	Short: "Ask a language model a question answered only from the dataset",
	Example: `  clusterlens ask customers.csv "which region has the most customers?"
  clusterlens ask data.csv --provider ollama --model llama3.1:8b what is the average age`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// only flags the user set override the config
		cmd.Flags().Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "model":
				cfg.Model = askModel
			case "provider":
				cfg.Provider = strings.ToLower(askProvider)
			case "temperature":
				cfg.Temperature = askTemperature
			case "max-tokens":
				cfg.MaxTokens = askMaxTokens
			case "prompt-limit":
				cfg.PromptTokenLimit = askPromptLimit
			}
		})
		ds, err := askLoad.load(cmd, args[0])
		if err != nil {
			return err
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := assistant.Ask(ctx, rt, ds, strings.Join(args[1:], " "), assistantOptions())
		if err != nil {
			return err
		}
		if a.Truncated {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠ Dataset truncated to fit the prompt limit")
		}
		md := a.Text + "\n"
		if debug {
			md += fmt.Sprintf("\n(%s, prompt ≈ %d tokens", a.Model, a.Tokens["question"]+a.Tokens["dataset"])
			if a.CostUSD > 0 {
				md += fmt.Sprintf(", ≈ $%.4f", a.CostUSD)
			}
			md += ")\n"
		}
		out, err := render(askFormat, md, a)
		if err != nil {
			return err
		}
		return emit(cmd, "", out, "answer")
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askLoad.register(askCmd)
	askCmd.Flags().StringVar(&askModel, "model", "", "model name (overrides config)")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "provider: groq|openrouter|openai|ollama (overrides config)")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 1, "sampling temperature (overrides config)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "max tokens in the reply (overrides config)")
	askCmd.Flags().IntVar(&askPromptLimit, "prompt-limit", 0, "token cap for the dataset part of the prompt (overrides config)")
	askCmd.Flags().StringVar(&askFormat, "format", "markdown", "output format: markdown|json|yaml")
}
