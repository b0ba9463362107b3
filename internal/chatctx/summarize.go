package chatctx

import (
	"context"
	"fmt"
	"strings"

	"github.com/quenchml/quench/pkg/api"
)

// CompletionFunc asks the backend for a non-streaming chat completion.
type CompletionFunc func(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)

const summaryInstruction = `Condense the conversation below into a short brief for an assistant rejoining it. Keep:
- decisions reached and facts established
- names, paths, and identifiers that came up
- anything the user asked for that is still open

Write plain prose. The brief replaces the original messages, so keep every detail that would change a future answer.`

// Summarize folds history that no longer fits the window into the
// running summary. The evicted messages go to the model through
// complete; on success they are dropped from history and the reply
// becomes the new summary. On failure history is left as it was.
func (m *Manager) Summarize(ctx context.Context, complete CompletionFunc) error {
	if !m.NeedsSummary() {
		return nil
	}

	w := m.assemble()
	if w.start == 0 {
		return nil
	}

	// Keep the summarization request itself within half the context
	// window, dropping the oldest evicted messages if it would not.
	evicted := trimToBudget(m.history[:w.start], m.cfg.CtxSize/2, m.est)
	if len(evicted) == 0 {
		return nil
	}

	resp, err := complete(ctx, &api.ChatCompletionRequest{Messages: m.summaryRequest(evicted)})
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("summarize: model returned no choices")
	}

	m.summary = resp.Choices[0].Message.Content
	m.history = m.history[w.start:]
	return nil
}

// trimToBudget drops the oldest of msgs until the rest fit maxTokens.
func trimToBudget(msgs []api.Message, maxTokens int, est *TokenEstimator) []api.Message {
	used := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := est.EstimateMessages(msgs[i : i+1])
		if used+cost > maxTokens {
			return msgs[i+1:]
		}
		used += cost
	}
	return msgs
}

// summaryRequest builds the summarization call: the instruction, the
// prior summary when one exists, and a transcript of the evicted
// messages.
func (m *Manager) summaryRequest(evicted []api.Message) []api.Message {
	var transcript strings.Builder
	for _, msg := range evicted {
		transcript.WriteString(msg.Role)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteByte('\n')
	}

	msgs := []api.Message{{Role: "system", Content: summaryInstruction}}
	if m.summary != "" {
		msgs = append(msgs, api.Message{Role: "user", Content: "Summary so far:\n" + m.summary})
	}
	return append(msgs, api.Message{Role: "user", Content: "Conversation:\n" + transcript.String()})
}
