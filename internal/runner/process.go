package runner

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quenchml/quench/pkg/api"
)

// ProcessRunner manages a llama-server subprocess for model inference.
type ProcessRunner struct {
	proc      *Subprocess
	client    *Client
	modelPath string
	modelName string
	opts      Options
	logger    *logrus.Logger
}

// NewProcessRunner creates a new ProcessRunner logging through logger.
func NewProcessRunner(logger *logrus.Logger) *ProcessRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProcessRunner{logger: logger}
}

// buildArgs assembles the llama-server command line for a model. The
// port is injected later by the subprocess.
func buildArgs(modelPath string, opts Options) []string {
	args := []string{
		"--model", modelPath,
		"--ctx-size", strconv.Itoa(opts.CtxSize),
		"--host", "127.0.0.1",
	}

	if opts.GPULayers >= 0 {
		args = append(args, "--n-gpu-layers", strconv.Itoa(opts.GPULayers))
	} else {
		args = append(args, "--n-gpu-layers", "999")
	}

	if opts.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(opts.Threads))
	}

	if opts.FlashAttention {
		args = append(args, "--flash-attn", "on")
	}

	if opts.Embedding {
		args = append(args, "--embedding", "--pooling", "mean")
	} else {
		args = append(args, "--jinja")
	}

	return args
}

func (r *ProcessRunner) Load(ctx context.Context, modelPath string, opts Options) error {
	label := "llama-server"
	if opts.Embedding {
		label = "embedding"
	}

	proc, err := NewSubprocess(SubprocessConfig{
		BinDir:        opts.BinDir,
		Args:          buildArgs(modelPath, opts),
		Port:          opts.Port,
		Label:         label,
		Quiet:         opts.Quiet,
		HealthTimeout: opts.HealthTimeout,
		Logger:        r.logger,
	})
	if err != nil {
		return err
	}

	if err := proc.Start(ctx); err != nil {
		return err
	}

	r.proc = proc
	r.client = NewClient(proc.BaseURL())
	r.modelPath = modelPath
	r.modelName = strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
	r.opts = opts
	return nil
}

func (r *ProcessRunner) Health(ctx context.Context) error {
	if r.proc == nil {
		return ErrNotLoaded
	}
	return r.proc.healthCheck(ctx)
}

func (r *ProcessRunner) Completion(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error) {
	if r.client == nil {
		return nil, ErrNotLoaded
	}
	req.Stream = false
	return r.client.Completion(ctx, req)
}

func (r *ProcessRunner) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	if r.client == nil {
		return nil, ErrNotLoaded
	}
	req.Stream = false
	return r.client.ChatCompletion(ctx, req)
}

func (r *ProcessRunner) ChatCompletionStream(ctx context.Context, req *api.ChatCompletionRequest) (<-chan StreamEvent, error) {
	if r.client == nil {
		return nil, ErrNotLoaded
	}
	req.Stream = true
	return r.client.ChatCompletionStream(ctx, req)
}

func (r *ProcessRunner) ChatCompletionStreamTo(ctx context.Context, req *api.ChatCompletionRequest, w io.Writer) error {
	if r.client == nil {
		return ErrNotLoaded
	}
	req.Stream = true
	return r.client.ChatCompletionStreamTo(ctx, req, w)
}

func (r *ProcessRunner) Tokenize(ctx context.Context, text string) (int, error) {
	if r.client == nil {
		return 0, ErrNotLoaded
	}
	return r.client.Tokenize(ctx, text)
}

func (r *ProcessRunner) Props(ctx context.Context) (*api.PropsResponse, error) {
	if r.client == nil {
		return nil, ErrNotLoaded
	}
	return r.client.Props(ctx)
}

func (r *ProcessRunner) ModelName() string {
	return r.modelName
}

// Pid returns the backend child process id, or 0 when not running.
func (r *ProcessRunner) Pid() int {
	if r.proc == nil {
		return 0
	}
	return r.proc.Pid()
}

// BaseURL returns the subprocess endpoint, or "" when not running.
func (r *ProcessRunner) BaseURL() string {
	if r.proc == nil {
		return ""
	}
	return r.proc.BaseURL()
}

// Done exposes the subprocess exit channel, or nil when not running.
func (r *ProcessRunner) Done() <-chan struct{} {
	if r.proc == nil {
		return nil
	}
	return r.proc.Done()
}

func (r *ProcessRunner) Close() error {
	if r.proc == nil {
		return nil
	}
	return r.proc.GracefulStop()
}
