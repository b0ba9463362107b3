package runner

import (
	"context"
	"errors"
	"io"

	"github.com/quenchml/quench/pkg/api"
)

// ErrNotLoaded is returned when a request is made before Load succeeds.
var ErrNotLoaded = errors.New("no model loaded")

// Runner is the interface for model inference backends.
// ProcessRunner manages llama-server as a subprocess; a future direct
// runner could use in-process bindings.
type Runner interface {
	// Load starts the runner with the given model.
	Load(ctx context.Context, modelPath string, opts Options) error

	// Health returns nil if the runner is ready to serve requests.
	Health(ctx context.Context) error

	// Completion performs a raw completion with no chat template.
	Completion(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error)

	// ChatCompletion performs a non-streaming chat completion.
	ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)

	// ChatCompletionStream performs a streaming chat completion and
	// returns a channel of parsed events.
	ChatCompletionStream(ctx context.Context, req *api.ChatCompletionRequest) (<-chan StreamEvent, error)

	// ChatCompletionStreamTo performs a streaming chat completion,
	// writing raw SSE chunks to the writer.
	ChatCompletionStreamTo(ctx context.Context, req *api.ChatCompletionRequest, w io.Writer) error

	// Tokenize returns the token count of text using the model's tokenizer.
	Tokenize(ctx context.Context, text string) (int, error)

	// Props returns the backend's description of itself.
	Props(ctx context.Context) (*api.PropsResponse, error)

	// ModelName returns the name/ID of the loaded model.
	ModelName() string

	// Close shuts down the runner and releases resources.
	Close() error
}
