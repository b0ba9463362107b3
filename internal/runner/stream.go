package runner

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/quenchml/quench/pkg/api"
)

// StreamEvent represents a parsed SSE event from llama-server.
type StreamEvent struct {
	Chunk *api.ChatCompletionChunk
	Done  bool
	Err   error
}

// ParseSSEStream reads an SSE stream and sends parsed events to a channel.
// The channel is closed when the stream ends or an error occurs.
func ParseSSEStream(r io.Reader) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			if data == "[DONE]" {
				ch <- StreamEvent{Done: true}
				return
			}

			var chunk api.ChatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				ch <- StreamEvent{Err: err}
				return
			}
			ch <- StreamEvent{Chunk: &chunk}
		}

		if err := scanner.Err(); err != nil {
			ch <- StreamEvent{Err: err}
		}
	}()
	return ch
}

// AccumulateResponse collects streaming chunks into a complete
// ChatCompletionResponse. The last timing block seen wins; llama-server
// attaches it to the final chunk.
func AccumulateResponse(events <-chan StreamEvent) (*api.ChatCompletionResponse, error) {
	var (
		content strings.Builder
		role    string
		model   string
		id      string
		timings *api.Timings
	)
	finishReason := "stop"

	for ev := range events {
		if ev.Err != nil {
			return nil, ev.Err
		}
		if ev.Done {
			break
		}
		if ev.Chunk == nil {
			continue
		}

		if id == "" {
			id = ev.Chunk.ID
		}
		if model == "" {
			model = ev.Chunk.Model
		}
		if ev.Chunk.Timings != nil {
			timings = ev.Chunk.Timings
		}

		for _, choice := range ev.Chunk.Choices {
			if choice.Delta.Role != "" {
				role = choice.Delta.Role
			}
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finishReason = *choice.FinishReason
			}
		}
	}

	if role == "" {
		role = "assistant"
	}

	return &api.ChatCompletionResponse{
		ID:     id,
		Object: "chat.completion",
		Model:  model,
		Choices: []api.Choice{
			{
				Index:        0,
				Message:      api.Message{Role: role, Content: content.String()},
				FinishReason: finishReason,
			},
		},
		Timings: timings,
	}, nil
}
