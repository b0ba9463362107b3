package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/quenchml/quench/pkg/api"
)

// Client is an HTTP client for communicating with a llama-server subprocess.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// postJSON sends a JSON request and decodes the JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llama-server returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ChatCompletion sends a non-streaming chat completion request.
func (c *Client) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	var result api.ChatCompletionResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Completion sends a raw (non-templated) completion request to the
// native /completion endpoint.
func (c *Client) Completion(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error) {
	var result api.CompletionResponse
	if err := c.postJSON(ctx, "/completion", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Tokenize returns the token count of text using the server's tokenizer.
func (c *Client) Tokenize(ctx context.Context, text string) (int, error) {
	var result api.TokenizeResponse
	if err := c.postJSON(ctx, "/tokenize", api.TokenizeRequest{Content: text}, &result); err != nil {
		return 0, err
	}
	return len(result.Tokens), nil
}

// Props fetches the server's /props description.
func (c *Client) Props(ctx context.Context) (*api.PropsResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/props", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llama-server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result api.PropsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// ChatCompletionStream sends a streaming chat completion request and
// returns a channel of parsed events. The response body is closed when
// the stream is drained.
func (c *Client) ChatCompletionStream(ctx context.Context, req *api.ChatCompletionRequest) (<-chan StreamEvent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("llama-server returned %d: %s", resp.StatusCode, string(respBody))
	}

	return wrapStreamWithCleanup(ParseSSEStream(resp.Body), resp.Body), nil
}

// ChatCompletionStreamTo sends a streaming chat completion request and
// writes the raw SSE stream to w. llama-server already formats it as
// proper SSE (data: {...}\n\n), so a proxy can pipe it through.
func (c *Client) ChatCompletionStreamTo(ctx context.Context, req *api.ChatCompletionRequest, w io.Writer) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llama-server returned %d: %s", resp.StatusCode, string(respBody))
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

// wrapStreamWithCleanup wraps a stream event channel, ensuring the HTTP
// response body is closed when the source channel is drained.
func wrapStreamWithCleanup(events <-chan StreamEvent, body io.ReadCloser) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer body.Close()
		defer close(out)
		for ev := range events {
			out <- ev
		}
	}()
	return out
}
