package api

// CompletionRequest is the native llama-server /completion request.
// The prompt goes to the model verbatim with no chat template.
type CompletionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	CachePrompt bool     `json:"cache_prompt,omitempty"`
}

// CompletionResponse is the native /completion reply. The Stopped*
// flags say why generation ended.
type CompletionResponse struct {
	Content         string   `json:"content"`
	Model           string   `json:"model"`
	Stop            bool     `json:"stop"`
	StoppedEOS      bool     `json:"stopped_eos"`
	StoppedWord     bool     `json:"stopped_word"`
	StoppedLimit    bool     `json:"stopped_limit"`
	Truncated       bool     `json:"truncated"`
	TokensPredicted int      `json:"tokens_predicted"`
	TokensEvaluated int      `json:"tokens_evaluated"`
	Timings         *Timings `json:"timings,omitempty"`
}

// Timings is the measurement block llama-server attaches to responses:
// prompt processing and token prediction, as counts, milliseconds, and
// rates. Preferred over wall-clock measurement for speed reporting.
type Timings struct {
	PromptN            int     `json:"prompt_n"`
	PromptMS           float64 `json:"prompt_ms"`
	PromptPerSecond    float64 `json:"prompt_per_second"`
	PredictedN         int     `json:"predicted_n"`
	PredictedMS        float64 `json:"predicted_ms"`
	PredictedPerSecond float64 `json:"predicted_per_second"`
}

// TokenizeRequest is the /tokenize request.
type TokenizeRequest struct {
	Content string `json:"content"`
}

// TokenizeResponse is the /tokenize reply.
type TokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// PropsResponse is the slice of /props quench reports: the mounted
// model and the build serving it.
type PropsResponse struct {
	ModelPath    string `json:"model_path"`
	ChatTemplate string `json:"chat_template"`
	TotalSlots   int    `json:"total_slots"`
	BuildInfo    string `json:"build_info"`
}
