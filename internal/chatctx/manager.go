package chatctx

import (
	"fmt"

	"github.com/quenchml/quench/pkg/api"
)

// Config bounds the assembled message window.
type Config struct {
	CtxSize        int // context window in tokens, 4096 when unset
	ResponseBudget int // tokens held back for the reply, 512 when unset
	MaxHistory     int // hard cap on history messages, 0 means budget only
}

// BudgetInfo is the token accounting for the current window. Counts are
// estimates from the TokenEstimator, not backend-reported numbers.
type BudgetInfo struct {
	Total        int
	System       int
	Memory       int
	History      int
	Summary      int
	Available    int
	HistoryCount int // history messages that made the window
	TotalHistory int // history messages overall, kept or not
}

type contextFile struct {
	path    string
	content string
}

// Manager assembles the message window sent to the model each turn.
// The system prompt, context files, and retrieved memories are pinned
// and always included. History spends whatever budget remains, newest
// message first; when a summary exists it stands in for the history
// that no longer fits.
type Manager struct {
	cfg       Config
	est       *TokenEstimator
	sysPrompt string
	files     []contextFile
	memories  []api.Message
	history   []api.Message
	summary   string
}

// NewManager creates a Manager. Zero config fields get defaults.
func NewManager(cfg Config, est *TokenEstimator) *Manager {
	if cfg.CtxSize <= 0 {
		cfg.CtxSize = 4096
	}
	if cfg.ResponseBudget <= 0 {
		cfg.ResponseBudget = 512
	}
	return &Manager{cfg: cfg, est: est}
}

// SetSystemPrompt replaces the pinned system prompt.
func (m *Manager) SetSystemPrompt(prompt string) {
	m.sysPrompt = prompt
}

// SystemPrompt returns the pinned system prompt.
func (m *Manager) SystemPrompt() string {
	return m.sysPrompt
}

// AddContextFile pins a file's content into every window.
func (m *Manager) AddContextFile(path, content string) {
	m.files = append(m.files, contextFile{path: path, content: content})
}

// ClearContextFiles unpins all context files.
func (m *Manager) ClearContextFiles() {
	m.files = nil
}

// ContextFiles lists the pinned file paths in load order.
func (m *Manager) ContextFiles() []string {
	paths := make([]string, len(m.files))
	for i, f := range m.files {
		paths[i] = f.path
	}
	return paths
}

// SetMemories pins retrieved memory messages for the next turns.
func (m *Manager) SetMemories(msgs []api.Message) {
	m.memories = msgs
}

// ClearMemories drops the pinned memories.
func (m *Manager) ClearMemories() {
	m.memories = nil
}

// Append records one message in history.
func (m *Manager) Append(msg api.Message) {
	m.history = append(m.history, msg)
}

// AppendMany records several messages in history.
func (m *Manager) AppendMany(msgs []api.Message) {
	m.history = append(m.history, msgs...)
}

// window is one assembly of the context: the pinned messages, the
// summary slot, and where the kept history begins.
type window struct {
	pinned  []api.Message // system prompt + context files
	summary *api.Message
	start   int // history[start:] made the cut

	pinnedTokens  int
	memoryTokens  int
	summaryTokens int
	historyTokens int
	budget        int // tokens history was allowed to spend
}

// assemble lays out the window. Pinned content, memories, and the
// summary are charged against the context first; history gets what is
// left, walked newest to oldest until the budget or the message cap
// stops it.
func (m *Manager) assemble() window {
	w := window{pinned: m.pinnedMessages(), start: len(m.history)}
	w.pinnedTokens = m.est.EstimateMessages(w.pinned)
	w.memoryTokens = m.est.EstimateMessages(m.memories)
	if m.summary != "" {
		note := summaryNote(m.summary)
		w.summary = &note
		w.summaryTokens = m.est.EstimateMessages([]api.Message{note})
	}

	w.budget = m.cfg.CtxSize - m.cfg.ResponseBudget - w.pinnedTokens - w.memoryTokens - w.summaryTokens
	if w.budget < 0 {
		w.budget = 0
	}

	for i := len(m.history) - 1; i >= 0; i-- {
		if m.cfg.MaxHistory > 0 && len(m.history)-i > m.cfg.MaxHistory {
			break
		}
		cost := m.est.EstimateMessages(m.history[i : i+1])
		if w.historyTokens+cost > w.budget {
			break
		}
		w.historyTokens += cost
		w.start = i
	}
	return w
}

// Messages returns the window to send: pinned system messages, then
// memories, then the summary when present, then the kept history.
func (m *Manager) Messages() []api.Message {
	w := m.assemble()
	out := make([]api.Message, 0, len(w.pinned)+len(m.memories)+1+len(m.history)-w.start)
	out = append(out, w.pinned...)
	out = append(out, m.memories...)
	if w.summary != nil {
		out = append(out, *w.summary)
	}
	return append(out, m.history[w.start:]...)
}

// NeedsSummary reports whether history has outgrown the window.
func (m *Manager) NeedsSummary() bool {
	if len(m.history) == 0 {
		return false
	}
	w := m.assemble()
	return m.est.EstimateMessages(m.history) > w.budget
}

// Clear drops history and the summary. Pinned content stays.
func (m *Manager) Clear() {
	m.history = nil
	m.summary = ""
}

// Budget reports the token accounting for the current window.
func (m *Manager) Budget() BudgetInfo {
	w := m.assemble()
	free := w.budget - w.historyTokens
	if free < 0 {
		free = 0
	}
	return BudgetInfo{
		Total:        m.cfg.CtxSize,
		System:       w.pinnedTokens,
		Memory:       w.memoryTokens,
		History:      w.historyTokens,
		Summary:      w.summaryTokens,
		Available:    free,
		HistoryCount: len(m.history) - w.start,
		TotalHistory: len(m.history),
	}
}

// SetSummary replaces the running summary.
func (m *Manager) SetSummary(summary string) {
	m.summary = summary
}

// Summary returns the running summary, empty if none.
func (m *Manager) Summary() string {
	return m.summary
}

// History returns a copy of the full history, evicted messages included.
func (m *Manager) History() []api.Message {
	out := make([]api.Message, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) pinnedMessages() []api.Message {
	var out []api.Message
	if m.sysPrompt != "" {
		out = append(out, api.Message{Role: "system", Content: m.sysPrompt})
	}
	for _, f := range m.files {
		out = append(out, api.Message{
			Role:    "system",
			Content: fmt.Sprintf("[File: %s]\n%s", f.path, f.content),
		})
	}
	return out
}

func summaryNote(text string) api.Message {
	return api.Message{Role: "system", Content: "[Conversation summary] " + text}
}
