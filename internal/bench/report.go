package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

var separator = strings.Repeat("=", 50)

// PromptResult aggregates the runs for a single prompt.
type PromptResult struct {
	Prompt            string  `json:"prompt"`
	InputTokens       int     `json:"input_tokens"`
	AvgOutputTokens   float64 `json:"avg_output_tokens"`
	AvgGenerationTime float64 `json:"avg_generation_time"`
	AvgTokensPerSec   float64 `json:"avg_tokens_per_second"`
	SampleResponse    string  `json:"sample_response,omitempty"`
	FailedRuns        int     `json:"failed_runs,omitempty"`
}

// Report is the complete result of a benchmark sweep.
type Report struct {
	ID             string         `json:"id"`
	Model          string         `json:"model"`
	Timestamp      time.Time      `json:"timestamp"`
	Runs           int            `json:"runs"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    float64        `json:"temperature"`
	TopP           float64        `json:"top_p"`
	LoadTime       float64        `json:"load_time_seconds"`
	MemoryBeforeGB float64        `json:"memory_before_gb"`
	MemoryAfterGB  float64        `json:"memory_after_gb"`
	Results        []PromptResult `json:"results"`

	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens float64 `json:"total_output_tokens"`
	TotalTime         float64 `json:"total_generation_time"`
	OverallSpeed      float64 `json:"overall_tokens_per_second"`
	Rating            string  `json:"rating"`
}

// finalize computes the summary fields from the per-prompt results.
func (r *Report) finalize() {
	r.TotalInputTokens = 0
	r.TotalOutputTokens = 0
	r.TotalTime = 0
	for _, res := range r.Results {
		r.TotalInputTokens += res.InputTokens
		r.TotalOutputTokens += res.AvgOutputTokens
		r.TotalTime += res.AvgGenerationTime
	}
	if r.TotalTime > 0 {
		r.OverallSpeed = r.TotalOutputTokens / r.TotalTime
	}
	r.Rating = ratingFor(r.OverallSpeed)
}

// ratingFor maps an overall tokens/second rate to a qualitative rating.
func ratingFor(speed float64) string {
	switch {
	case speed >= 15:
		return "Excellent"
	case speed >= 10:
		return "Good"
	case speed >= 5:
		return "Acceptable"
	default:
		return "Slow"
	}
}

// MemoryDeltaGB is the resident memory added by loading the model.
func (r *Report) MemoryDeltaGB() float64 {
	return r.MemoryAfterGB - r.MemoryBeforeGB
}

// summaryText renders the summary lines shared by the console output and
// the results file.
func (r *Report) summaryText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total input tokens: %d\n", r.TotalInputTokens)
	fmt.Fprintf(&b, "Total output tokens: %.1f\n", r.TotalOutputTokens)
	fmt.Fprintf(&b, "Total generation time: %.2fs\n", r.TotalTime)
	fmt.Fprintf(&b, "Overall generation speed: %.1f tokens/second\n", r.OverallSpeed)
	fmt.Fprintf(&b, "Model memory footprint: %.2fGB\n", r.MemoryDeltaGB())
	fmt.Fprintf(&b, "Performance rating: %s\n", r.Rating)
	return b.String()
}

// Render produces the full text report written to the results file.
func (r *Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Benchmark Results: %s\n", r.Model)
	b.WriteString(separator + "\n\n")

	for _, res := range r.Results {
		fmt.Fprintf(&b, "Prompt: %s\n", res.Prompt)
		fmt.Fprintf(&b, "Input tokens: %d\n", res.InputTokens)
		fmt.Fprintf(&b, "Output tokens: %.1f\n", res.AvgOutputTokens)
		fmt.Fprintf(&b, "Generation time: %.2fs\n", res.AvgGenerationTime)
		fmt.Fprintf(&b, "Speed: %.1f tokens/second\n", res.AvgTokensPerSec)
		if res.FailedRuns > 0 {
			fmt.Fprintf(&b, "Failed runs: %d\n", res.FailedRuns)
		}
		b.WriteString("\n")
	}

	b.WriteString(separator + "\n")
	b.WriteString("BENCHMARK SUMMARY\n")
	b.WriteString(r.summaryText())
	return b.String()
}

// WriteFile writes the rendered report to path.
func (r *Report) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(r.Render()), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteJSON writes the report as indented JSON to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}

// DefaultOutputPath returns the timestamped default results filename.
func DefaultOutputPath(now time.Time) string {
	return "benchmark_results_" + now.Format("20060102_150405") + ".txt"
}

// JSONPath derives the JSON results filename from a text report path.
func JSONPath(path string) string {
	return strings.TrimSuffix(path, ".txt") + ".json"
}
