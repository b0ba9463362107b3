package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quenchml/quench/pkg/api"
)

const defaultRunPrompt = "Explain what machine learning is in simple terms"

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Load a model and generate a single completion",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = cfg.DefaultModel
		}
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		temperature, _ := cmd.Flags().GetFloat64("temperature")
		topP, _ := cmd.Flags().GetFloat64("top-p")
		raw, _ := cmd.Flags().GetBool("raw")

		prompt := defaultRunPrompt
		if len(args) > 0 {
			prompt = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := newLogger(cfg)

		fmt.Printf("Loading model: %s\n", model)
		rn, err := loadBackend(ctx, cmd, cfg, model, logger)
		if err != nil {
			return err
		}
		defer rn.Close()
		fmt.Println("Model loaded successfully!")

		if props, err := rn.Props(ctx); err == nil && props.BuildInfo != "" {
			fmt.Printf("Backend: %s\n", props.BuildInfo)
		}

		fmt.Println()
		fmt.Println("Generating response...")
		fmt.Printf("Prompt: %s\n", prompt)
		fmt.Printf("Max tokens: %d, Temperature: %.1f\n", maxTokens, temperature)
		fmt.Println(strings.Repeat("-", 50))

		start := time.Now()
		content, timings, nTokens, err := generateOnce(ctx, rn, prompt, model, maxTokens, temperature, topP, raw)
		if err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}
		elapsed := time.Since(start).Seconds()

		fmt.Printf("Response:\n%s\n", strings.TrimSpace(content))
		fmt.Println(strings.Repeat("-", 50))

		speed := 0.0
		if elapsed > 0 {
			speed = float64(nTokens) / elapsed
		}
		if timings != nil {
			if timings.PredictedN > 0 {
				nTokens = timings.PredictedN
			}
			if timings.PredictedMS > 0 {
				elapsed = timings.PredictedMS / 1000
			}
			if timings.PredictedPerSecond > 0 {
				speed = timings.PredictedPerSecond
			}
		}
		fmt.Printf("Generated %d tokens in %.2fs\n", nTokens, elapsed)
		fmt.Printf("Speed: %.1f tokens/second\n", speed)

		return nil
	},
}

// generateOnce produces one completion, raw or through the chat template.
func generateOnce(ctx context.Context, rn backend, prompt, model string, maxTokens int, temperature, topP float64, raw bool) (string, *api.Timings, int, error) {
	if raw {
		resp, err := rn.Completion(ctx, &api.CompletionRequest{
			Prompt:      prompt,
			NPredict:    maxTokens,
			Temperature: &temperature,
			TopP:        &topP,
		})
		if err != nil {
			return "", nil, 0, err
		}
		return resp.Content, resp.Timings, resp.TokensPredicted, nil
	}

	resp, err := rn.ChatCompletion(ctx, &api.ChatCompletionRequest{
		Model:       model,
		Messages:    []api.Message{{Role: "user", Content: prompt}},
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
	})
	if err != nil {
		return "", nil, 0, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	nTokens := 0
	if resp.Usage != nil {
		nTokens = resp.Usage.CompletionTokens
	}
	return content, resp.Timings, nTokens, nil
}

// backend is the slice of the runner the generation commands need.
type backend interface {
	Completion(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error)
	ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)
}

func init() {
	runCmd.Flags().String("model", "", "model to run (default from config)")
	runCmd.Flags().Int("max-tokens", 512, "maximum number of tokens to generate")
	runCmd.Flags().Float64("temperature", 0.7, "sampling temperature")
	runCmd.Flags().Float64("top-p", 0.9, "nucleus sampling probability")
	runCmd.Flags().Bool("raw", true, "send the prompt without a chat template")
	addBackendFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
