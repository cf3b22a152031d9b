// Package assistant answers free-text questions about a dataset with a
// hosted or local language model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KaramelBytes/clusterlens/internal/ai"
	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/utils"
)

var (
	ErrEmptyQuestion = errors.New("please write a question first")
	ErrNoDataset     = errors.New("please upload a dataset first")
)

// Options select the model and bound the prompt size.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// PromptTokenLimit caps the dataset part of the prompt. Zero uses the
	// model's context window when known, else DefaultPromptTokenLimit.
	PromptTokenLimit int
	Logger           *slog.Logger
}

const (
	DefaultModel            = "openai/gpt-oss-120b"
	DefaultPromptTokenLimit = 24000
)

// DefaultOptions mirror the hosted defaults: gpt-oss-120b at temperature 1.
func DefaultOptions() Options {
	return Options{Model: DefaultModel, Temperature: 1}
}

// Answer is the model reply plus prompt accounting.
type Answer struct {
	Question  string         `json:"question" yaml:"question"`
	Text      string         `json:"answer" yaml:"answer"`
	Model     string         `json:"model" yaml:"model"`
	RequestID string         `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Truncated bool           `json:"truncated" yaml:"truncated"`
	Tokens    map[string]int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CostUSD   float64        `json:"cost_usd,omitempty" yaml:"cost_usd,omitempty"`
}

// Prompt builds "<question>\n\nOnly from:\n<csv>" with the CSV cut to limit
// tokens at a row boundary.
func Prompt(question string, ds *dataset.Dataset, limit int) (string, bool, error) {
	csv, err := ds.CSV()
	if err != nil {
		return "", false, fmt.Errorf("serialize dataset: %w", err)
	}
	csv, truncated := utils.TruncateLines(csv, limit)
	return question + "\n\nOnly from:\n" + csv, truncated, nil
}

// Ask sends one user message built from question and ds and returns the reply.
func Ask(ctx context.Context, rt ai.Runtime, ds *dataset.Dataset, question string, opt Options) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if ds == nil {
		return nil, ErrNoDataset
	}
	if rt == nil {
		return nil, errors.New("no language model runtime configured")
	}
	if opt.Model == "" {
		opt.Model = DefaultModel
	}
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}

	limit := promptLimit(opt)
	prompt, truncated, err := Prompt(question, ds, limit)
	if err != nil {
		return nil, err
	}
	tokens := utils.TokenBreakdown(map[string]string{"question": question, "dataset": prompt[len(question):]})
	if truncated {
		log.Warn("dataset truncated to fit the prompt", "limit_tokens", limit, "rows", ds.Len())
	}
	log.Debug("asking model", "model", opt.Model, "tokens", tokens)

	resp, err := rt.Generate(ctx, ai.GenerateRequest{
		Model:       opt.Model,
		Messages:    []ai.Message{{Role: "user", Content: prompt}},
		MaxTokens:   opt.MaxTokens,
		Temperature: opt.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("ask %s: %w", opt.Model, err)
	}
	a := &Answer{
		Question:  question,
		Text:      resp.Text(),
		Model:     opt.Model,
		RequestID: resp.RequestID,
		Truncated: truncated,
		Tokens:    tokens,
	}
	if cost, ok := ai.EstimateCostUSD(opt.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
		a.CostUSD = cost
	}
	return a, nil
}

func promptLimit(opt Options) int {
	if opt.PromptTokenLimit > 0 {
		return opt.PromptTokenLimit
	}
	if mi, ok := ai.LookupModel(opt.Model); ok && mi.ContextTokens > 0 {
		// leave room for the question and the reply
		return mi.ContextTokens * 3 / 4
	}
	return DefaultPromptTokenLimit
}
