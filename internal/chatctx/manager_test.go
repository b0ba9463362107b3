package chatctx

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/quenchml/quench/pkg/api"
)

func testManager(ctxSize int) *Manager {
	return NewManager(Config{CtxSize: ctxSize, ResponseBudget: 100}, NewTokenEstimator())
}

func fillTurns(m *Manager, n int) {
	for i := 0; i < n; i++ {
		m.Append(api.Message{Role: "user", Content: fmt.Sprintf("turn %d: how do tides work in the bay", i)})
		m.Append(api.Message{Role: "assistant", Content: fmt.Sprintf("turn %d: the moon pulls the water back and forth", i)})
	}
}

func TestWindowKeepsShortConversation(t *testing.T) {
	mgr := testManager(10000)
	mgr.SetSystemPrompt("You are a terse assistant.")
	fillTurns(mgr, 1)

	msgs := mgr.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" || msgs[2].Role != "assistant" {
		t.Errorf("roles = %s, %s, %s", msgs[0].Role, msgs[1].Role, msgs[2].Role)
	}
	if !strings.HasPrefix(msgs[1].Content, "turn 0:") {
		t.Errorf("history out of order, first is %q", msgs[1].Content)
	}
}

func TestWindowDropsOldestFirst(t *testing.T) {
	mgr := testManager(200)
	mgr.SetSystemPrompt("sys")
	fillTurns(mgr, 15)

	msgs := mgr.Messages()
	if len(msgs) >= 31 {
		t.Fatalf("nothing was dropped: %d messages", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message role = %s, want system", msgs[0].Role)
	}
	last := msgs[len(msgs)-1]
	if last.Content != "turn 14: the moon pulls the water back and forth" {
		t.Errorf("newest message missing, last = %q", last.Content)
	}
	for _, msg := range msgs {
		if strings.Contains(msg.Content, "turn 0:") {
			t.Error("oldest turn should have been dropped first")
		}
	}
}

func TestHistoryCapWindow(t *testing.T) {
	mgr := NewManager(Config{
		CtxSize:        100000,
		ResponseBudget: 100,
		MaxHistory:     8,
	}, NewTokenEstimator())
	mgr.SetSystemPrompt("sys")

	for i := 0; i < 10; i++ {
		mgr.Append(api.Message{Role: "user", Content: fmt.Sprintf("q%d", i)})
		mgr.Append(api.Message{Role: "assistant", Content: fmt.Sprintf("a%d", i)})
	}

	msgs := mgr.Messages()
	if len(msgs) != 9 {
		t.Fatalf("got %d messages with cap 8, want 9", len(msgs))
	}
	if msgs[1].Content != "q6" {
		t.Errorf("oldest kept = %q, want q6", msgs[1].Content)
	}
	if msgs[8].Content != "a9" {
		t.Errorf("newest kept = %q, want a9", msgs[8].Content)
	}
}

func TestHistoryCapBeatsTokenBudget(t *testing.T) {
	// The budget would keep all six; the cap must still win.
	mgr := NewManager(Config{
		CtxSize:        100000,
		ResponseBudget: 100,
		MaxHistory:     2,
	}, NewTokenEstimator())

	for i := 0; i < 6; i++ {
		mgr.Append(api.Message{Role: "user", Content: fmt.Sprintf("entry %d", i)})
	}

	msgs := mgr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages with cap 2, want 2", len(msgs))
	}
	if msgs[0].Content != "entry 4" || msgs[1].Content != "entry 5" {
		t.Errorf("kept %q and %q, want entry 4 and entry 5", msgs[0].Content, msgs[1].Content)
	}
}

func TestSystemPromptSurvivesFullWindow(t *testing.T) {
	mgr := testManager(200)
	mgr.SetSystemPrompt("Answer in rhyme.")

	for i := 0; i < 50; i++ {
		mgr.Append(api.Message{Role: "user", Content: strings.Repeat("water ", 20)})
	}

	msgs := mgr.Messages()
	if len(msgs) == 0 {
		t.Fatal("window is empty")
	}
	if msgs[0].Role != "system" || msgs[0].Content != "Answer in rhyme." {
		t.Errorf("system prompt lost, first = %s %q", msgs[0].Role, msgs[0].Content)
	}
}

func TestPinnedLargerThanContext(t *testing.T) {
	// When pinned content alone exceeds the budget, the window is just
	// the pinned content and no history.
	mgr := testManager(120)
	mgr.SetSystemPrompt(strings.Repeat("rules ", 40))
	mgr.Append(api.Message{Role: "user", Content: "hi"})

	msgs := mgr.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want the system prompt only", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("got role %s, want system", msgs[0].Role)
	}

	budget := mgr.Budget()
	if budget.Available != 0 {
		t.Errorf("Available = %d, want 0", budget.Available)
	}
	if budget.HistoryCount != 0 {
		t.Errorf("HistoryCount = %d, want 0", budget.HistoryCount)
	}
}

func TestContextFilePinnedAfterPrompt(t *testing.T) {
	mgr := testManager(2000)
	mgr.SetSystemPrompt("sys")
	mgr.AddContextFile("notes/plan.md", "- ship the cli\n- write the docs")

	for i := 0; i < 10; i++ {
		mgr.Append(api.Message{Role: "user", Content: "hello"})
		mgr.Append(api.Message{Role: "assistant", Content: "hi"})
	}

	msgs := mgr.Messages()
	if len(msgs) < 3 {
		t.Fatalf("got %d messages, want at least 3", len(msgs))
	}
	if msgs[0].Content != "sys" {
		t.Errorf("first = %q, want the system prompt", msgs[0].Content)
	}
	if msgs[1].Role != "system" || !strings.Contains(msgs[1].Content, "notes/plan.md") {
		t.Errorf("second should carry the context file, got %q", msgs[1].Content)
	}
}

func TestContextFileListAndClear(t *testing.T) {
	mgr := testManager(4096)
	mgr.AddContextFile("alpha.md", "first")
	mgr.AddContextFile("beta.md", "second")

	files := mgr.ContextFiles()
	if len(files) != 2 || files[0] != "alpha.md" || files[1] != "beta.md" {
		t.Fatalf("ContextFiles() = %v", files)
	}

	mgr.ClearContextFiles()
	if len(mgr.ContextFiles()) != 0 {
		t.Error("context files survived ClearContextFiles")
	}
}

func TestMemoriesPinned(t *testing.T) {
	mgr := testManager(4096)
	mgr.SetSystemPrompt("sys")
	mgr.SetMemories([]api.Message{
		{Role: "system", Content: "[Memory from 2026-01-02] User: likes short answers"},
	})
	mgr.Append(api.Message{Role: "user", Content: "hello"})

	msgs := mgr.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "Memory") {
		t.Errorf("memory should follow the system prompt, got %q", msgs[1].Content)
	}

	if budget := mgr.Budget(); budget.Memory <= 0 {
		t.Errorf("Memory tokens = %d, want > 0", budget.Memory)
	}

	mgr.ClearMemories()
	if len(mgr.Messages()) != 2 {
		t.Error("memories survived ClearMemories")
	}
}

func TestSummarizeFoldsEvictedHistory(t *testing.T) {
	mgr := testManager(300)
	mgr.SetSystemPrompt("sys")
	fillTurns(mgr, 15)

	if !mgr.NeedsSummary() {
		t.Fatal("expected NeedsSummary with 30 messages in a 300 token window")
	}

	var got *api.ChatCompletionRequest
	complete := func(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
		got = req
		return &api.ChatCompletionResponse{
			Choices: []api.Choice{
				{Message: api.Message{Role: "assistant", Content: "Earlier turns covered tides and the moon."}},
			},
		}, nil
	}

	full := mgr.History()
	if err := mgr.Summarize(context.Background(), complete); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if mgr.Summary() == "" {
		t.Error("summary not set")
	}
	kept := mgr.History()
	if len(kept) >= len(full) {
		t.Errorf("history not shortened: %d -> %d", len(full), len(kept))
	}

	if got == nil {
		t.Fatal("completion callback never called")
	}
	transcript := got.Messages[len(got.Messages)-1].Content
	newestEvicted := full[len(full)-len(kept)-1]
	if !strings.Contains(transcript, newestEvicted.Content) {
		t.Errorf("newest evicted message missing from transcript:\n%s", transcript)
	}
	if strings.Contains(transcript, kept[0].Content) {
		t.Error("kept history leaked into the summarization transcript")
	}

	found := false
	for _, msg := range mgr.Messages() {
		if strings.Contains(msg.Content, "[Conversation summary]") {
			found = true
		}
	}
	if !found {
		t.Error("summary missing from the window")
	}
}

func TestSummarizeSkippedWhenHistoryFits(t *testing.T) {
	mgr := testManager(10000)
	fillTurns(mgr, 1)

	if mgr.NeedsSummary() {
		t.Error("NeedsSummary should be false when everything fits")
	}

	complete := func(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
		t.Fatal("completion should not be called")
		return nil, nil
	}
	if err := mgr.Summarize(context.Background(), complete); err != nil {
		t.Errorf("Summarize: %v", err)
	}
}

func TestSummarizeErrorKeepsHistory(t *testing.T) {
	mgr := testManager(300)
	mgr.SetSystemPrompt("sys")
	for i := 0; i < 20; i++ {
		mgr.Append(api.Message{Role: "user", Content: fmt.Sprintf("step %d of the recipe calls for more flour", i)})
	}

	complete := func(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
		return nil, fmt.Errorf("backend gone")
	}

	if err := mgr.Summarize(context.Background(), complete); err == nil {
		t.Error("expected the backend error to surface")
	}
	if len(mgr.History()) != 20 {
		t.Errorf("history = %d messages after failure, want 20 untouched", len(mgr.History()))
	}
}

func TestSummarizeNoChoices(t *testing.T) {
	mgr := testManager(300)
	mgr.SetSystemPrompt("sys")
	for i := 0; i < 20; i++ {
		mgr.Append(api.Message{Role: "user", Content: fmt.Sprintf("step %d of the recipe calls for more flour", i)})
	}

	complete := func(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
		return &api.ChatCompletionResponse{}, nil
	}

	if err := mgr.Summarize(context.Background(), complete); err == nil {
		t.Error("expected an error for a response with no choices")
	}
	if len(mgr.History()) != 20 {
		t.Errorf("history = %d messages after failure, want 20 untouched", len(mgr.History()))
	}
}

func TestClearKeepsPinnedContent(t *testing.T) {
	mgr := testManager(4096)
	mgr.SetSystemPrompt("persist")
	mgr.AddContextFile("pinned.txt", "keep")
	fillTurns(mgr, 1)
	mgr.SetSummary("stale")

	mgr.Clear()

	if len(mgr.History()) != 0 {
		t.Error("history survived Clear")
	}
	if mgr.Summary() != "" {
		t.Error("summary survived Clear")
	}

	msgs := mgr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages after Clear, want system prompt + file", len(msgs))
	}
	if msgs[0].Content != "persist" {
		t.Errorf("system prompt = %q after Clear", msgs[0].Content)
	}
	if !strings.Contains(msgs[1].Content, "pinned.txt") {
		t.Errorf("context file lost, got %q", msgs[1].Content)
	}
}

func TestBudgetAccounting(t *testing.T) {
	mgr := testManager(4096)
	mgr.SetSystemPrompt("system prompt here")
	mgr.Append(api.Message{Role: "user", Content: "hello"})
	mgr.Append(api.Message{Role: "assistant", Content: "hi"})

	budget := mgr.Budget()
	if budget.Total != 4096 {
		t.Errorf("Total = %d, want 4096", budget.Total)
	}
	if budget.System <= 0 || budget.History <= 0 || budget.Available <= 0 {
		t.Errorf("expected positive system/history/available, got %+v", budget)
	}
	if budget.Memory != 0 || budget.Summary != 0 {
		t.Errorf("expected zero memory/summary, got %+v", budget)
	}
	if budget.HistoryCount != 2 || budget.TotalHistory != 2 {
		t.Errorf("counts = %d kept of %d, want 2 of 2", budget.HistoryCount, budget.TotalHistory)
	}

	sum := budget.System + budget.History + budget.Summary + budget.Available + 100
	if sum != budget.Total {
		t.Errorf("parts sum to %d, want %d: %+v", sum, budget.Total, budget)
	}
}

func TestBudgetCountsSummary(t *testing.T) {
	mgr := testManager(4096)
	mgr.SetSystemPrompt("sys")
	mgr.SetSummary("Earlier the user configured the proxy.")
	mgr.Append(api.Message{Role: "user", Content: "hello"})

	if budget := mgr.Budget(); budget.Summary <= 0 {
		t.Errorf("Summary tokens = %d, want > 0", budget.Summary)
	}
}

func TestAppendMany(t *testing.T) {
	mgr := testManager(4096)
	mgr.AppendMany([]api.Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	})

	history := mgr.History()
	if len(history) != 3 {
		t.Fatalf("history = %d messages, want 3", len(history))
	}
	if history[2].Content != "three" {
		t.Errorf("last = %q, want three", history[2].Content)
	}
}

func TestZeroConfigDefaults(t *testing.T) {
	mgr := NewManager(Config{}, NewTokenEstimator())
	if mgr.cfg.CtxSize != 4096 {
		t.Errorf("default CtxSize = %d, want 4096", mgr.cfg.CtxSize)
	}
	if mgr.cfg.ResponseBudget != 512 {
		t.Errorf("default ResponseBudget = %d, want 512", mgr.cfg.ResponseBudget)
	}
}

func TestWindowWithoutSystemPrompt(t *testing.T) {
	mgr := testManager(4096)
	mgr.Append(api.Message{Role: "user", Content: "hello"})

	msgs := mgr.Messages()
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Errorf("got %d messages, first role %s", len(msgs), msgs[0].Role)
	}
}

func TestWindowEmptyHistory(t *testing.T) {
	mgr := testManager(4096)
	mgr.SetSystemPrompt("sys")

	msgs := mgr.Messages()
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want the system prompt only", len(msgs))
	}
}
