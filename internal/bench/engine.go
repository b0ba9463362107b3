// Package bench runs a fixed-prompt generation sweep against a loaded
// model and aggregates timing, token, and memory statistics.
package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quenchml/quench/internal/runner"
	"github.com/quenchml/quench/pkg/api"
)

// DefaultPrompts is the standard sweep: five prompts of increasing length
// and complexity.
var DefaultPrompts = []string{
	"Hello, how are you?",
	"Explain the concept of machine learning in detail.",
	"Write a short story about a robot learning to paint.",
	"Describe the process of photosynthesis step by step with scientific accuracy.",
	"Generate a comprehensive analysis of the impact of artificial intelligence on modern society, including economic, social, and ethical considerations.",
}

// Backend is the slice of the runner the benchmark needs.
type Backend interface {
	Load(ctx context.Context, modelPath string, opts runner.Options) error
	Completion(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error)
	Tokenize(ctx context.Context, text string) (int, error)
	ModelName() string
	Pid() int
}

// Config holds the sweep parameters.
type Config struct {
	ModelPath   string
	Runs        int     // runs per prompt, default 5
	MaxTokens   int     // default 256
	Temperature float64 // default 0.7
	TopP        float64 // default 0.9
	Prompts     []string
	RunnerOpts  runner.Options

	Output  io.Writer      // progress output, default os.Stdout
	Sampler MemorySampler  // default RSSGigabytes
	Logger  *logrus.Logger // default logrus.StandardLogger()
}

// Engine executes the benchmark sweep.
type Engine struct {
	backend Backend
	cfg     Config
	out     io.Writer
	sample  MemorySampler
	logger  *logrus.Logger
}

// NewEngine creates an Engine, filling config defaults.
func NewEngine(backend Backend, cfg Config) *Engine {
	if cfg.Runs <= 0 {
		cfg.Runs = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.9
	}
	if len(cfg.Prompts) == 0 {
		cfg.Prompts = DefaultPrompts
	}

	e := &Engine{
		backend: backend,
		cfg:     cfg,
		out:     cfg.Output,
		sample:  cfg.Sampler,
		logger:  cfg.Logger,
	}
	if e.out == nil {
		e.out = os.Stdout
	}
	if e.sample == nil {
		e.sample = RSSGigabytes
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	return e
}

// Run loads the model and executes the sweep, writing progress as it goes.
// A failed generation run is logged and skipped; the sweep continues.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		ID:          uuid.New().String(),
		Model:       e.cfg.ModelPath,
		Timestamp:   time.Now(),
		Runs:        e.cfg.Runs,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
	}

	fmt.Fprintf(e.out, "Benchmark: %s\n", e.cfg.ModelPath)
	fmt.Fprintln(e.out, separator)
	fmt.Fprintf(e.out, "Loading model: %s\n", e.cfg.ModelPath)
	fmt.Fprintln(e.out, "This may take a few minutes on first run...")

	before, err := e.sample(int32(os.Getpid()))
	if err != nil {
		e.logger.Warnf("memory sampling failed: %v", err)
	}

	loadStart := time.Now()
	if err := e.backend.Load(ctx, e.cfg.ModelPath, e.cfg.RunnerOpts); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	report.LoadTime = time.Since(loadStart).Seconds()
	report.Model = e.backend.ModelName()

	after, err := e.sample(int32(os.Getpid()), int32(e.backend.Pid()))
	if err != nil {
		e.logger.Warnf("memory sampling failed: %v", err)
	}
	report.MemoryBeforeGB = before
	report.MemoryAfterGB = after

	fmt.Fprintf(e.out, "Model loaded in %.2fs\n", report.LoadTime)
	fmt.Fprintf(e.out, "Memory usage: %.2fGB -> %.2fGB (+%.2fGB)\n", before, after, after-before)
	fmt.Fprintln(e.out)

	for i, prompt := range e.cfg.Prompts {
		fmt.Fprintf(e.out, "Test %d/%d: %s\n", i+1, len(e.cfg.Prompts), truncate(prompt, 50))

		inputTokens, err := e.backend.Tokenize(ctx, prompt)
		if err != nil {
			e.logger.Warnf("tokenize failed: %v", err)
		}
		fmt.Fprintf(e.out, "  Input tokens: %d\n", inputTokens)

		result := e.runPrompt(ctx, prompt, inputTokens)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.Results = append(report.Results, result)

		fmt.Fprintf(e.out, "  Avg generation time: %.2fs\n", result.AvgGenerationTime)
		fmt.Fprintf(e.out, "  Avg output tokens: %.1f\n", result.AvgOutputTokens)
		fmt.Fprintf(e.out, "  Avg speed: %.1f tokens/second\n", result.AvgTokensPerSec)
		fmt.Fprintln(e.out)
	}

	report.finalize()

	fmt.Fprintln(e.out, separator)
	fmt.Fprintln(e.out, "BENCHMARK SUMMARY")
	fmt.Fprint(e.out, report.summaryText())

	return report, nil
}

// runPrompt executes all runs for one prompt and averages the results.
func (e *Engine) runPrompt(ctx context.Context, prompt string, inputTokens int) PromptResult {
	result := PromptResult{
		Prompt:      prompt,
		InputTokens: inputTokens,
	}

	temp := e.cfg.Temperature
	topP := e.cfg.TopP

	var totalTime, totalTokens, totalSpeed float64
	succeeded := 0

	for run := 0; run < e.cfg.Runs; run++ {
		start := time.Now()
		resp, err := e.backend.Completion(ctx, &api.CompletionRequest{
			Prompt:      prompt,
			NPredict:    e.cfg.MaxTokens,
			Temperature: &temp,
			TopP:        &topP,
		})
		if err != nil {
			if ctx.Err() != nil {
				return result
			}
			result.FailedRuns++
			e.logger.Warnf("generation run %d failed: %v", run+1, err)
			continue
		}
		elapsed := time.Since(start).Seconds()

		totalTime += elapsed
		totalTokens += float64(resp.TokensPredicted)
		if resp.Timings != nil && resp.Timings.PredictedPerSecond > 0 {
			totalSpeed += resp.Timings.PredictedPerSecond
		} else if elapsed > 0 {
			totalSpeed += float64(resp.TokensPredicted) / elapsed
		}
		succeeded++

		if result.SampleResponse == "" && resp.Content != "" {
			result.SampleResponse = truncate(strings.TrimSpace(resp.Content), 100)
			fmt.Fprintf(e.out, "  Sample response: %s\n", result.SampleResponse)
		}
	}

	if succeeded > 0 {
		n := float64(succeeded)
		result.AvgGenerationTime = totalTime / n
		result.AvgOutputTokens = totalTokens / n
		result.AvgTokensPerSec = totalSpeed / n
	}
	return result
}

// truncate shortens s to at most n bytes, cutting on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
