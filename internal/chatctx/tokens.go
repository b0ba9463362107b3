package chatctx

import (
	"math"

	"github.com/quenchml/quench/pkg/api"
)

const (
	// fallbackRatio is the chars-per-token ratio used before calibration.
	// English prose under most BPE tokenizers lands near 3.5-4.
	fallbackRatio = 3.5

	// perMessageOverhead covers the role tag and template separators
	// each message costs beyond its content.
	perMessageOverhead = 4

	// Calibration results outside these bounds indicate a broken
	// tokenizer response and are discarded.
	minRatio = 1.0
	maxRatio = 8.0
)

// calibrationText mixes short words, long words, punctuation, and
// numbers so the measured ratio is representative of chat traffic.
const calibrationText = "Running a quantized model locally trades raw speed for " +
	"privacy and control. A 13B parameter model at 4-bit precision needs roughly " +
	"8 gigabytes of memory, and generation speed depends on memory bandwidth more " +
	"than on compute. Benchmarks, therefore, should report tokens per second " +
	"alongside load time; otherwise the numbers mislead. What about context? " +
	"Longer windows cost quadratically, so budgeting matters."

// TokenEstimator converts text lengths to approximate token counts.
// The chars-per-token ratio starts at a fallback and can be calibrated
// once against the backend's real tokenizer.
type TokenEstimator struct {
	charsPerToken float64
	calibrated    bool
}

// NewTokenEstimator returns an estimator using the fallback ratio.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{charsPerToken: fallbackRatio}
}

// Calibrate measures the real ratio by tokenizing a fixed sample text.
// On error, or when the measured ratio is implausible, the current
// ratio is kept.
func (e *TokenEstimator) Calibrate(tokenizeFn func(string) (int, error)) error {
	count, err := tokenizeFn(calibrationText)
	if err != nil {
		return err
	}
	if count <= 0 {
		return nil
	}
	ratio := float64(len(calibrationText)) / float64(count)
	if ratio < minRatio || ratio > maxRatio {
		return nil
	}
	e.charsPerToken = ratio
	e.calibrated = true
	return nil
}

// Calibrated reports whether a real tokenizer has set the ratio.
func (e *TokenEstimator) Calibrated() bool {
	return e.calibrated
}

// Estimate returns the approximate token count of text.
func (e *TokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / e.charsPerToken))
}

// EstimateMessages totals the estimated tokens of msgs, charging each
// message the per-message template overhead.
func (e *TokenEstimator) EstimateMessages(msgs []api.Message) int {
	total := 0
	for _, msg := range msgs {
		total += perMessageOverhead + e.Estimate(msg.Content)
	}
	return total
}
