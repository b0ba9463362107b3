package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quenchml/quench/internal/chatctx"
	"github.com/quenchml/quench/internal/config"
	"github.com/quenchml/quench/internal/memory"
	"github.com/quenchml/quench/internal/models"
	"github.com/quenchml/quench/internal/runner"
	"github.com/quenchml/quench/pkg/api"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with a model",
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
		systemPrompt, _ := cmd.Flags().GetString("system")
		historyWindow, _ := cmd.Flags().GetInt("history-window")
		memoryEnabled, _ := cmd.Flags().GetBool("memory")
		embedModel, _ := cmd.Flags().GetString("embed-model")

		if memoryEnabled && embedModel == "" {
			return fmt.Errorf("--memory requires --embed-model")
		}

		logger := newLogger(cfg)

		fmt.Printf("Loading model %s...\n", model)
		rn, err := loadBackend(context.Background(), cmd, cfg, model, logger)
		if err != nil {
			return err
		}
		defer rn.Close()

		estimator := chatctx.NewTokenEstimator()
		if err := estimator.Calibrate(func(text string) (int, error) {
			return rn.Tokenize(context.Background(), text)
		}); err != nil {
			fmt.Fprintln(os.Stderr, "Note: token estimation using default ratio (calibration unavailable)")
		}

		opts := backendOptions(cmd, cfg)
		mgr := chatctx.NewManager(chatctx.Config{
			CtxSize:        opts.CtxSize,
			ResponseBudget: maxTokens,
			MaxHistory:     historyWindow,
		}, estimator)
		if systemPrompt != "" {
			mgr.SetSystemPrompt(systemPrompt)
		}

		var memStore memory.Store
		cleanup := func() { rn.Close() }
		if memoryEnabled {
			store, memCleanup, err := initMemory(context.Background(), embedModel, logger)
			if err != nil {
				return err
			}
			memStore = store
			cleanup = func() {
				memCleanup()
				rn.Close()
			}
			defer memCleanup()
			fmt.Printf("Memory enabled (%d stored memories)\n", memStore.Count())
		}

		// Scanner blocks on stdin, so Ctrl+C is handled out of band.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\n\nChat interrupted. Goodbye!")
			cleanup()
			os.Exit(0)
		}()

		fmt.Println("Model loaded! Ready to chat.")
		fmt.Println("Type 'quit', 'exit', or 'bye' to end the conversation.")
		fmt.Println("Type '/help' for available commands.")
		fmt.Println(strings.Repeat("-", 60))

		session := &chatSession{
			rn:          rn,
			mgr:         mgr,
			memStore:    memStore,
			model:       model,
			maxTokens:   maxTokens,
			temperature: temperature,
			sessionID:   uuid.New().String(),
			in:          os.Stdin,
			out:         os.Stdout,
		}
		return session.loop()
	},
}

// chatSession holds everything a REPL turn operates on.
type chatSession struct {
	rn          *runner.ProcessRunner
	mgr         *chatctx.Manager
	memStore    memory.Store
	model       string
	maxTokens   int
	temperature float64
	sessionID   string
	in          io.Reader
	out         io.Writer
}

func (s *chatSession) loop() error {
	scanner := bufio.NewScanner(s.in)
	// Long pasted lines would otherwise end the session like EOF.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, ">>> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out, "\nEnd of input. Goodbye!")
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isQuit(input) {
			fmt.Fprintln(s.out, "Goodbye! Thanks for chatting!")
			return nil
		}
		if s.handleCommand(input) {
			continue
		}

		s.mgr.Append(api.Message{Role: "user", Content: input})
		s.injectMemories(input)

		if s.mgr.NeedsSummary() {
			fmt.Fprintln(s.out, "[summarizing conversation...]")
			if err := s.mgr.Summarize(context.Background(), s.complete); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: summarization failed: %v\n", err)
			}
		}

		reply, err := s.generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating response: %v\n", err)
			continue
		}

		if reply != "" {
			s.mgr.Append(api.Message{Role: "assistant", Content: reply})
			s.storeTurn(input, reply)
		}
	}
}

// generate streams one reply, printing deltas as they arrive, and
// reports the token count and generation time afterwards.
func (s *chatSession) generate() (string, error) {
	temp := s.temperature
	topP := 0.9
	req := &api.ChatCompletionRequest{
		Model:       s.model,
		Messages:    s.mgr.Messages(),
		MaxTokens:   &s.maxTokens,
		Temperature: &temp,
		TopP:        &topP,
	}

	start := time.Now()
	events, err := s.rn.ChatCompletionStream(context.Background(), req)
	if err != nil {
		return "", err
	}

	printer := &streamPrinter{w: s.out}
	var timings *api.Timings
	for ev := range events {
		if ev.Err != nil {
			return "", ev.Err
		}
		if ev.Done {
			break
		}
		if ev.Chunk == nil {
			continue
		}
		if ev.Chunk.Timings != nil {
			timings = ev.Chunk.Timings
		}
		for _, choice := range ev.Chunk.Choices {
			if choice.Delta.Content != "" {
				printer.add(choice.Delta.Content)
			}
		}
	}
	reply := printer.finish()

	elapsed := time.Since(start).Seconds()
	nTokens := 0
	if timings != nil {
		nTokens = timings.PredictedN
		if timings.PredictedMS > 0 {
			elapsed = timings.PredictedMS / 1000
		}
	}

	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "Generated %d tokens in %.2fs\n\n", nTokens, elapsed)
	return reply, nil
}

// complete is the non-streaming completion callback for summarization.
func (s *chatSession) complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	req.Model = s.model
	return s.rn.ChatCompletion(ctx, req)
}

// injectMemories retrieves memories relevant to the input and pins them
// into the context for this turn.
func (s *chatSession) injectMemories(input string) {
	if s.memStore == nil {
		return
	}
	results, err := s.memStore.Search(context.Background(), input, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: memory search failed: %v\n", err)
		return
	}
	if len(results) == 0 {
		s.mgr.ClearMemories()
		return
	}
	var msgs []api.Message
	for _, r := range results {
		content := fmt.Sprintf("[Memory from %s] %s",
			r.Entry.Timestamp.Format("2006-01-02"), r.Entry.Content())
		msgs = append(msgs, api.Message{Role: "system", Content: content})
	}
	s.mgr.SetMemories(msgs)
}

// storeTurn saves the exchange to the memory store without blocking the loop.
func (s *chatSession) storeTurn(input, reply string) {
	if s.memStore == nil {
		return
	}
	go func() {
		entry := memory.Entry{
			UserMsg:   input,
			AssistMsg: reply,
			Timestamp: time.Now(),
			SessionID: s.sessionID,
		}
		if err := s.memStore.Add(context.Background(), entry); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to store memory: %v\n", err)
		}
	}()
}

func isQuit(input string) bool {
	switch strings.ToLower(input) {
	case "/quit", "/exit", "quit", "exit", "bye":
		return true
	}
	return false
}

// handleCommand processes REPL commands. Returns true if the input was
// a command rather than a chat message.
func (s *chatSession) handleCommand(input string) bool {
	switch strings.ToLower(input) {
	case "/clear", "clear":
		s.mgr.Clear()
		fmt.Fprintln(s.out, "Conversation history cleared.")
		return true

	case "/help", "help":
		s.printHelp()
		return true

	case "/history", "history":
		s.printHistory()
		return true

	case "/stats", "stats":
		s.printStats()
		return true

	case "/tokens":
		s.printBudget()
		return true

	case "/context", "/context list":
		s.printContextFiles()
		return true

	case "/context clear":
		s.mgr.ClearContextFiles()
		fmt.Fprintln(s.out, "Context files cleared.")
		return true
	}

	switch {
	case strings.HasPrefix(input, "/context "):
		path := strings.TrimSpace(strings.TrimPrefix(input, "/context "))
		if err := s.loadContextFile(path); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		return true

	case input == "/memory" || input == "/memory list":
		if !s.memoryReady() {
			return true
		}
		s.printMemories()
		return true

	case strings.HasPrefix(input, "/memory search "):
		if !s.memoryReady() {
			return true
		}
		query := strings.TrimSpace(strings.TrimPrefix(input, "/memory search "))
		if query == "" {
			fmt.Fprintln(s.out, "Usage: /memory search <query>")
			return true
		}
		s.searchMemories(query)
		return true

	case strings.HasPrefix(input, "/memory forget "):
		if !s.memoryReady() {
			return true
		}
		idPrefix := strings.TrimSpace(strings.TrimPrefix(input, "/memory forget "))
		if idPrefix == "" {
			fmt.Fprintln(s.out, "Usage: /memory forget <id-prefix>")
			return true
		}
		s.forgetMemory(idPrefix)
		return true

	case input == "/memory clear":
		if !s.memoryReady() {
			return true
		}
		if err := s.memStore.Clear(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing memories: %v\n", err)
		} else {
			fmt.Fprintln(s.out, "All memories cleared.")
		}
		return true

	case strings.HasPrefix(input, "/memory "):
		if !s.memoryReady() {
			return true
		}
		note := strings.TrimSpace(strings.TrimPrefix(input, "/memory "))
		if err := s.memStore.AddNote(context.Background(), note, s.sessionID); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing note: %v\n", err)
		} else {
			fmt.Fprintln(s.out, "Noted.")
		}
		return true
	}

	return false
}

func (s *chatSession) memoryReady() bool {
	if s.memStore == nil {
		fmt.Fprintln(s.out, "Memory is not enabled. Use --memory to enable.")
		return false
	}
	return true
}

func (s *chatSession) printHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  /clear              - Clear conversation history")
	fmt.Fprintln(s.out, "  /history            - Show conversation history")
	fmt.Fprintln(s.out, "  /stats              - Show conversation statistics")
	fmt.Fprintln(s.out, "  /tokens             - Show token budget breakdown")
	fmt.Fprintln(s.out, "  /context <path>     - Load file into context")
	fmt.Fprintln(s.out, "  /context list       - Show loaded context files")
	fmt.Fprintln(s.out, "  /context clear      - Remove all context files")
	fmt.Fprintln(s.out, "  /memory <text>      - Store a note in memory")
	fmt.Fprintln(s.out, "  /memory list        - List recent memories")
	fmt.Fprintln(s.out, "  /memory search <q>  - Search memories")
	fmt.Fprintln(s.out, "  /memory forget <id> - Delete a memory by ID prefix")
	fmt.Fprintln(s.out, "  /memory clear       - Clear all memories")
	fmt.Fprintln(s.out, "  /quit, /exit        - Exit")
	fmt.Fprintln(s.out, "Bare 'clear', 'help', 'history', 'stats', 'quit', 'exit', and 'bye' also work.")
}

func (s *chatSession) printHistory() {
	history := s.mgr.History()
	if len(history) == 0 {
		fmt.Fprintln(s.out, "No conversation history yet.")
		return
	}
	fmt.Fprintf(s.out, "Conversation history (%d messages):\n", len(history))
	for i, msg := range history {
		role := msg.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		fmt.Fprintf(s.out, "%d. %s: %s\n", i+1, role, truncate(msg.Content, 100))
	}
}

func (s *chatSession) printStats() {
	history := s.mgr.History()
	users, assistants := 0, 0
	for _, msg := range history {
		switch msg.Role {
		case "user":
			users++
		case "assistant":
			assistants++
		}
	}
	fmt.Fprintln(s.out, "Conversation statistics:")
	fmt.Fprintf(s.out, "  Total messages: %d\n", len(history))
	fmt.Fprintf(s.out, "  User messages: %d\n", users)
	fmt.Fprintf(s.out, "  Assistant messages: %d\n", assistants)
	fmt.Fprintf(s.out, "  Model: %s\n", s.model)
	fmt.Fprintf(s.out, "  Max tokens: %d\n", s.maxTokens)
	fmt.Fprintf(s.out, "  Temperature: %.1f\n", s.temperature)
}

func (s *chatSession) printBudget() {
	budget := s.mgr.Budget()
	fmt.Fprintf(s.out, "Token budget:\n")
	fmt.Fprintf(s.out, "  Total context:  %d\n", budget.Total)
	fmt.Fprintf(s.out, "  System/pinned:  %d\n", budget.System)
	fmt.Fprintf(s.out, "  Memory:         %d\n", budget.Memory)
	fmt.Fprintf(s.out, "  Summary:        %d\n", budget.Summary)
	fmt.Fprintf(s.out, "  History:        %d (%d messages, %d total)\n", budget.History, budget.HistoryCount, budget.TotalHistory)
	fmt.Fprintf(s.out, "  Available:      %d\n", budget.Available)
}

func (s *chatSession) printContextFiles() {
	files := s.mgr.ContextFiles()
	if len(files) == 0 {
		fmt.Fprintln(s.out, "No context files loaded.")
		return
	}
	fmt.Fprintln(s.out, "Context files:")
	for _, f := range files {
		fmt.Fprintf(s.out, "  - %s\n", f)
	}
}

func (s *chatSession) loadContextFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.mgr.AddContextFile(path, string(data))
	fmt.Fprintf(s.out, "Loaded context file: %s (%d bytes)\n", path, len(data))
	return nil
}

func (s *chatSession) printMemories() {
	entries, err := s.memStore.List(context.Background(), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing memories: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Memories (%d total):\n", s.memStore.Count())
	for _, e := range entries {
		text := e.UserMsg
		if e.Note != "" {
			text = "(note) " + e.Note
		}
		fmt.Fprintf(s.out, "  [%s] %s - %s\n", e.ID[:8], e.Timestamp.Format("2006-01-02 15:04"), truncate(text, 80))
	}
}

func (s *chatSession) searchMemories(query string) {
	results, err := s.memStore.Search(context.Background(), query, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error searching memories: %v\n", err)
		return
	}
	if len(results) == 0 {
		fmt.Fprintln(s.out, "No matching memories found.")
		return
	}
	fmt.Fprintf(s.out, "Search results (%d):\n", len(results))
	for _, r := range results {
		text := r.Entry.UserMsg
		if r.Entry.Note != "" {
			text = "(note) " + r.Entry.Note
		}
		fmt.Fprintf(s.out, "  [%s] score=%.3f (sem=%.3f kw=%.3f) %s\n",
			r.Entry.ID[:8], r.CombinedScore, r.SemanticScore, r.KeywordScore,
			truncate(text, 70))
	}
}

func (s *chatSession) forgetMemory(idPrefix string) {
	entries, _ := s.memStore.List(context.Background(), 0)
	for _, e := range entries {
		if strings.HasPrefix(e.ID, idPrefix) {
			if err := s.memStore.Delete(context.Background(), e.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error deleting memory: %v\n", err)
			} else {
				fmt.Fprintf(s.out, "Deleted memory %s\n", e.ID[:8])
			}
			return
		}
	}
	fmt.Fprintf(s.out, "No memory found with prefix %q\n", idPrefix)
}

// roleEcho is the prefix some chat templates leak into the first tokens.
const roleEcho = "assistant\n"

// streamPrinter prints deltas as they arrive, holding back the first
// few bytes so a leading role echo can be stripped before display.
type streamPrinter struct {
	w       io.Writer
	buf     strings.Builder
	printed int
	checked bool
}

func (p *streamPrinter) add(delta string) {
	p.buf.WriteString(delta)
	if !p.checked {
		if p.buf.Len() < len(roleEcho) {
			return
		}
		p.checked = true
		if strings.HasPrefix(p.buf.String(), roleEcho) {
			p.printed = len(roleEcho)
		}
	}
	p.flush()
}

func (p *streamPrinter) flush() {
	s := p.buf.String()
	if p.printed < len(s) {
		fmt.Fprint(p.w, s[p.printed:])
		p.printed = len(s)
	}
}

// finish flushes anything held back and returns the cleaned reply.
func (p *streamPrinter) finish() string {
	if !p.checked {
		p.checked = true
		if strings.HasPrefix(p.buf.String(), roleEcho) {
			p.printed = len(roleEcho)
		}
	}
	p.flush()
	return strings.TrimSpace(strings.TrimPrefix(p.buf.String(), roleEcho))
}

// truncate shortens s to at most max bytes, cutting on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// initMemory starts the embedding sidecar and opens the memory store.
func initMemory(ctx context.Context, embedModel string, logger *logrus.Logger) (memory.Store, func(), error) {
	store := models.NewStore(config.ModelsDir())
	modelPath, err := store.Resolve(embedModel)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding model %q not found, download it with 'quench pull': %w", embedModel, err)
	}

	fmt.Println("Starting embedding backend...")
	rn := runner.NewProcessRunner(logger)
	opts := runner.DefaultOptions()
	opts.BinDir = config.BinDir()
	opts.Embedding = true
	opts.GPULayers = 0
	opts.Quiet = true
	if err := rn.Load(ctx, modelPath, opts); err != nil {
		return nil, nil, fmt.Errorf("start embedding backend: %w", err)
	}

	embedFunc := memory.NewLlamaEmbedFunc(rn.BaseURL(), 0)
	memDir := config.MemoryDir()
	if err := os.MkdirAll(memDir, 0755); err != nil {
		rn.Close()
		return nil, nil, fmt.Errorf("create memory directory: %w", err)
	}

	memStore, err := memory.NewChromemStore(memDir, embedFunc)
	if err != nil {
		rn.Close()
		return nil, nil, fmt.Errorf("create memory store: %w", err)
	}

	cleanup := func() {
		memStore.Close()
		rn.Close()
	}
	return memStore, cleanup, nil
}

func init() {
	chatCmd.Flags().String("model", "", "model to chat with (default from config)")
	chatCmd.Flags().Int("max-tokens", 512, "maximum number of tokens per response")
	chatCmd.Flags().Float64("temperature", 0.7, "sampling temperature")
	chatCmd.Flags().String("system", "", "system prompt")
	chatCmd.Flags().Int("history-window", 8, "max history messages sent per turn")
	chatCmd.Flags().Bool("memory", false, "enable the persistent memory store")
	chatCmd.Flags().String("embed-model", "", "embedding model for memory (required with --memory)")
	addBackendFlags(chatCmd)
	rootCmd.AddCommand(chatCmd)
}
