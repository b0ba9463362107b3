package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/quenchml/quench/pkg/api"
)

type fakeBackend struct {
	compResp *api.CompletionResponse
	compErr  error
	chatResp *api.ChatCompletionResponse
	chatErr  error

	lastCompletion *api.CompletionRequest
	lastChat       *api.ChatCompletionRequest
}

func (f *fakeBackend) Completion(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error) {
	f.lastCompletion = req
	return f.compResp, f.compErr
}

func (f *fakeBackend) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	f.lastChat = req
	return f.chatResp, f.chatErr
}

func TestGenerateOnceRaw(t *testing.T) {
	f := &fakeBackend{
		compResp: &api.CompletionResponse{
			Content:         "machine learning is pattern matching",
			TokensPredicted: 7,
			Timings:         &api.Timings{PredictedN: 7, PredictedMS: 350},
		},
	}

	content, timings, nTokens, err := generateOnce(context.Background(), f, "explain ML", "llama", 64, 0.7, 0.9, true)
	if err != nil {
		t.Fatal(err)
	}
	if content != "machine learning is pattern matching" {
		t.Errorf("content = %q", content)
	}
	if nTokens != 7 {
		t.Errorf("nTokens = %d", nTokens)
	}
	if timings == nil || timings.PredictedMS != 350 {
		t.Errorf("timings = %+v", timings)
	}
	if f.lastChat != nil {
		t.Error("raw mode used the chat endpoint")
	}
	if f.lastCompletion.Prompt != "explain ML" || f.lastCompletion.NPredict != 64 {
		t.Errorf("request = %+v", f.lastCompletion)
	}
}

func TestGenerateOnceChat(t *testing.T) {
	f := &fakeBackend{
		chatResp: &api.ChatCompletionResponse{
			Choices: []api.Choice{{Message: api.Message{Role: "assistant", Content: "hello!"}}},
			Usage:   &api.Usage{CompletionTokens: 3},
		},
	}

	content, _, nTokens, err := generateOnce(context.Background(), f, "hi", "llama", 64, 0.7, 0.9, false)
	if err != nil {
		t.Fatal(err)
	}
	if content != "hello!" {
		t.Errorf("content = %q", content)
	}
	if nTokens != 3 {
		t.Errorf("nTokens = %d", nTokens)
	}
	if f.lastCompletion != nil {
		t.Error("chat mode used the raw endpoint")
	}
	if len(f.lastChat.Messages) != 1 || f.lastChat.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", f.lastChat.Messages)
	}
}

func TestGenerateOnceChatEmptyChoices(t *testing.T) {
	f := &fakeBackend{chatResp: &api.ChatCompletionResponse{}}

	content, _, nTokens, err := generateOnce(context.Background(), f, "hi", "llama", 64, 0.7, 0.9, false)
	if err != nil {
		t.Fatal(err)
	}
	if content != "" || nTokens != 0 {
		t.Errorf("content = %q, nTokens = %d", content, nTokens)
	}
}

func TestGenerateOnceError(t *testing.T) {
	wantErr := errors.New("backend down")
	f := &fakeBackend{compErr: wantErr}

	_, _, _, err := generateOnce(context.Background(), f, "hi", "llama", 64, 0.7, 0.9, true)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v", err)
	}
}
