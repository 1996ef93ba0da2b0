package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"julep/internal/config"
	"julep/internal/llm"
	"julep/internal/logging"
	"julep/internal/state"
	"julep/internal/tooling"
	"julep/internal/transcript"
)

var commandSuggestions = []prompt.Suggest{
	{Text: ":help", Description: "show this text"},
	{Text: ":states", Description: "list known conversation keys"},
	{Text: ":use", Description: "switch to an existing conversation"},
	{Text: ":new", Description: "create and switch to a blank conversation"},
	{Text: ":clear", Description: "wipe the current conversation's history"},
	{Text: ":drop", Description: "delete a stored conversation"},
	{Text: ":tools", Description: "list registered tools"},
	{Text: ":session", Description: "show the remote session bound to this conversation"},
	{Text: ":transcript", Description: "show recent journal entries (:transcript [n])"},
	{Text: ":quit", Description: "exit the program"},
	{Text: ":exit", Description: "exit the program"},
}

type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
}

func newInterruptTracker(window time.Duration) *interruptTracker {
	return &interruptTracker{window: window}
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}

type promptExit struct{}

// SessionLookup resolves the remote agent session bound to a conversation
// key, if any.
type SessionLookup func(key string) (string, bool)

// Agent wires the CLI, conversation state, tools, and provider together.
type Agent struct {
	client  llm.Client
	stream  llm.StreamClient
	cfg     config.Config
	states  *state.Manager
	tools   *tooling.Registry
	journal *transcript.Store
	session SessionLookup
	logger  *log.Logger
	isTTY   bool
	render  *glamour.TermRenderer

	requestCancelMu sync.Mutex
	requestCancel   context.CancelFunc
}

type Options struct {
	ResumeKey string
	// Session resolves conversation keys to remote session ids for the
	// :session command and transcript journaling. Optional.
	Session SessionLookup
}

// New returns a fully wired Agent ready for the REPL loop. Exactly one of
// client and stream drives each turn: when stream is non-nil responses are
// delivered incrementally, otherwise client handles the tool-call loop.
func New(client llm.Client, stream llm.StreamClient, cfg config.Config, mgr *state.Manager, registry *tooling.Registry, journal *transcript.Store, logger *log.Logger, opts Options) (*Agent, error) {
	var renderer *glamour.TermRenderer
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			renderer = r
		}
	}

	a := &Agent{
		client:  client,
		stream:  stream,
		cfg:     cfg,
		states:  mgr,
		tools:   registry,
		journal: journal,
		session: opts.Session,
		logger:  logger,
		isTTY:   term.IsTerminal(int(os.Stdin.Fd())),
		render:  renderer,
	}

	if key := strings.TrimSpace(opts.ResumeKey); key != "" {
		if _, err := mgr.Use(key); err != nil {
			return nil, fmt.Errorf("resume conversation %s: %w", key, err)
		}
		logging.UserLog("Resumed conversation '%s'", key)
	}

	return a, nil
}

// Run starts the CLI prompt and blocks until the session finishes.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := newInterruptTracker(2 * time.Second)
	if a.isTTY {
		return a.runPrompt(ctx, cancel, tracker)
	}
	go a.handleInterrupts(ctx, cancel, tracker)
	return a.runNonInteractive(ctx, cancel)
}

// RunOneShot executes a single prompt and exits.
func (a *Agent) RunOneShot(ctx context.Context, input string) error {
	return a.respond(ctx, strings.TrimSpace(input))
}

func (a *Agent) runPrompt(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) (err error) {
	a.printWelcome()

	history := loadInputHistory(a.cfg.HistoryPath)

	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if st, terr := term.GetState(fd); terr == nil {
			restore = func() { _ = term.Restore(fd, st) }
		}
	}
	if restore != nil {
		defer restore()
	}

	var exitRequested atomic.Bool
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(in)
		if line == "" {
			return
		}
		history.Add(line)
		if exit := a.handleLine(ctx, line); exit {
			exitRequested.Store(true)
			cancel()
			panic(promptExit{})
		}
	}

	p := prompt.New(
		executor,
		a.commandCompleter(),
		prompt.OptionHistory(history.Entries()),
		prompt.OptionTitle("Julep"),
		prompt.OptionLivePrefix(func() (string, bool) {
			return fmt.Sprintf("[%s] > ", a.states.Current().Key()), true
		}),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(buf *prompt.Buffer) {
					if a.cancelInFlightRequest() {
						fmt.Println("\n(Current request cancelled.)")
						return
					}
					if tracker.secondPress() {
						fmt.Println("\nReceived second Ctrl+C, exiting.")
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
					fmt.Println("\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			if exitRequested.Load() {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)

	p.Run()
	return nil
}

func (a *Agent) commandCompleter() func(prompt.Document) []prompt.Suggest {
	return func(doc prompt.Document) []prompt.Suggest {
		word := doc.GetWordBeforeCursor()
		prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
		if !strings.HasPrefix(prefix, ":") {
			return nil
		}
		return prompt.FilterHasPrefix(commandSuggestions, word, true)
	}
}

func (a *Agent) runNonInteractive(ctx context.Context, cancel context.CancelFunc) error {
	reader := bufio.NewReader(os.Stdin)
	a.printWelcome()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Printf("[%s] > ", a.states.Current().Key())

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if exit := a.handleLine(ctx, trimLineEnding(line)); exit {
			cancel()
			return nil
		}
	}
}

func (a *Agent) printWelcome() {
	fmt.Println("Welcome to Julep.")
	fmt.Println("Type ':help' for commands. Send prompts to talk to the agent. Use double Ctrl+C to exit.")
}

func (a *Agent) handleInterrupts(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if tracker.secondPress() {
				fmt.Println("\nReceived second Ctrl+C, exiting.")
				cancel()
				return
			}
			fmt.Println("\n(Press Ctrl+C again within 2s to exit)")
		}
	}
}

func (a *Agent) handleLine(ctx context.Context, input string) bool {
	trimmedLeft := strings.TrimLeft(input, " \t")
	if trimmedLeft == "" {
		return false
	}

	if strings.HasPrefix(trimmedLeft, ":") {
		return a.handleCommand(ctx, strings.TrimSpace(input))
	}

	logging.DevLog("dispatching prompt: %d chars", len(input))
	if err := a.respond(ctx, input); err != nil {
		logging.ErrorLog("agent error: %v", err)
	}
	return false
}

func (a *Agent) respond(ctx context.Context, userInput string) error {
	if userInput == "" {
		return nil
	}
	conv := a.states.Current()
	conv.Append(state.Message{Role: "user", Content: userInput})
	if err := a.states.Save(conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	a.journalEntry(conv.Key(), transcript.KindUser, userInput)

	if a.stream != nil {
		return a.streamTurn(ctx, conv)
	}
	return a.chatTurn(ctx, conv)
}

// streamTurn forwards the turn to a streaming provider and prints pushed
// text as it arrives. The accumulated output is appended to the
// conversation when the provider finishes.
func (a *Agent) streamTurn(ctx context.Context, conv *state.Conversation) error {
	key := conv.Key()
	var out strings.Builder
	terminal := llm.SinkFuncs{
		OnText: func(text string) {
			out.WriteString(text)
			fmt.Print(text)
		},
		OnDone: func() {
			fmt.Println()
		},
	}

	var sink llm.Sink = terminal
	if a.journal != nil {
		sink = transcript.NewRecordingSink(a.journal, key, func() string {
			return a.sessionFor(key)
		}, terminal)
	}

	req := llm.ChatRequest{
		Model:    a.cfg.Model,
		Messages: conv.Messages(),
		Session:  key,
	}

	reqCtx, reqCancel := context.WithCancel(ctx)
	a.setInFlightCancel(reqCancel)
	err := a.stream.ChatStream(reqCtx, req, sink)
	a.clearInFlightCancel()
	reqCancel()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("\n(request cancelled)")
			return nil
		}
		return fmt.Errorf("agent stream: %w", err)
	}

	if text := out.String(); text != "" {
		conv.Append(state.Message{Role: "assistant", Content: text})
		if err := a.states.Save(conv); err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
	}
	return nil
}

// chatTurn drives a completion provider, executing requested tool calls
// until the model answers with plain content.
func (a *Agent) chatTurn(ctx context.Context, conv *state.Conversation) error {
	for {
		req := llm.ChatRequest{
			Model:       a.cfg.Model,
			Messages:    conv.Messages(),
			Tools:       a.chatToolDefinitions(),
			Temperature: a.cfg.Temperature,
		}

		reqCtx, reqCancel := context.WithCancel(ctx)
		a.setInFlightCancel(reqCancel)
		resp, err := a.callProviderWithRetry(reqCtx, req)
		a.clearInFlightCancel()
		reqCancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("(request cancelled)")
				return nil
			}
			return fmt.Errorf("chat completion: %w", err)
		}
		if resp.Usage != nil {
			logging.DevLog("token usage: prompt=%d completion=%d total=%d",
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices returned")
		}

		choice := resp.Choices[0]
		conv.Append(choice.Message)
		if err := a.states.Save(conv); err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}

		if len(choice.Message.ToolCalls) == 0 {
			if choice.Message.Content != "" {
				a.printResponse(choice.Message.Content)
				a.journalEntry(conv.Key(), transcript.KindAgent, choice.Message.Content)
			}
			return nil
		}

		if err := a.processToolCalls(ctx, conv, choice.Message.ToolCalls); err != nil {
			return err
		}
	}
}

// chatToolDefinitions filters out functions reserved for remote agent
// sessions before advertising the tool set to a completion provider.
func (a *Agent) chatToolDefinitions() []tooling.ToolDefinition {
	defs := a.tools.Definitions()
	filtered := defs[:0]
	for _, def := range defs {
		if def.AgentOnly {
			continue
		}
		filtered = append(filtered, def)
	}
	return filtered
}

func (a *Agent) processToolCalls(ctx context.Context, conv *state.Conversation, calls []state.ToolCall) error {
	for _, call := range calls {
		logging.UserLog("Executing tool: %s", call.Function.Name)
		start := time.Now()
		result, err := a.tools.Run(ctx, call.Function.Name, call.Function.Arguments)
		dur := time.Since(start).Round(time.Millisecond)
		if err != nil {
			result = fmt.Sprintf("tool error: %v", err)
			logging.ErrorLog("tool %s failed after %s: %v", call.Function.Name, dur, err)
		} else {
			logging.DevLog("tool %s completed: %d bytes in %s", call.Function.Name, len(result), dur)
			const maxToolResultSize = 50000
			if len(result) > maxToolResultSize {
				result = result[:maxToolResultSize] + fmt.Sprintf("\n\n[TRUNCATED: tool result too large (%d chars)]", len(result))
			}
		}
		conv.Append(state.Message{Role: "tool", Name: call.Function.Name, Content: result, ToolCallID: call.ID})
		if err := a.states.Save(conv); err != nil {
			return fmt.Errorf("save tool result: %w", err)
		}
	}
	return nil
}

func (a *Agent) callProviderWithRetry(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	const (
		maxRetries   = 3
		initialDelay = time.Second
		maxDelay     = 8 * time.Second
	)
	delay := initialDelay
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := a.client.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return llm.ChatResponse{}, context.Canceled
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		a.logger.Printf("retrying provider call (attempt %d/%d) after %v", attempt+1, maxRetries, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return llm.ChatResponse{}, context.Canceled
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return llm.ChatResponse{}, lastErr
}

func (a *Agent) setInFlightCancel(cancel context.CancelFunc) {
	a.requestCancelMu.Lock()
	a.requestCancel = cancel
	a.requestCancelMu.Unlock()
}

func (a *Agent) clearInFlightCancel() {
	a.requestCancelMu.Lock()
	a.requestCancel = nil
	a.requestCancelMu.Unlock()
}

func (a *Agent) cancelInFlightRequest() bool {
	a.requestCancelMu.Lock()
	cancel := a.requestCancel
	a.requestCancel = nil
	a.requestCancelMu.Unlock()
	if cancel != nil {
		cancel()
		return true
	}
	return false
}

func (a *Agent) sessionFor(key string) string {
	if a.session == nil {
		return ""
	}
	id, _ := a.session(key)
	return id
}

func (a *Agent) journalEntry(key, kind, text string) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Append(key, a.sessionFor(key), kind, text); err != nil {
		logging.DevLog("transcript append failed: %v", err)
	}
}

func (a *Agent) handleCommand(ctx context.Context, cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false
	}
	switch parts[0] {
	case ":help":
		fmt.Println(`Commands:
  :help            show this text
  :states          list known conversation keys
  :use <key>       switch to an existing conversation (creates if missing)
  :new [key]       create and switch to a blank conversation
  :clear           wipe the current conversation's history
  :drop <key>      delete a stored conversation
  :tools           list registered tools
  :session         show the remote agent session bound to this conversation
  :transcript [n]  show the last n journal entries (default 20)
  :quit            exit the program`)
	case ":states":
		keys := a.states.ListKeys()
		if len(keys) == 0 {
			fmt.Println("No conversations yet. Use :new to create one.")
			return false
		}
		fmt.Printf("Conversations: %s\n", strings.Join(keys, ", "))
	case ":use":
		if len(parts) < 2 {
			fmt.Println(":use requires a key")
			return false
		}
		if _, err := a.states.EnsureState(parts[1]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("Switched to %s\n", parts[1])
	case ":new":
		key := ""
		if len(parts) >= 2 {
			key = parts[1]
		}
		conv, err := a.states.NewState(key)
		if err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("Created new conversation %s\n", conv.Key())
	case ":clear":
		if err := a.states.ClearCurrent(); err != nil {
			fmt.Printf("Clear failed: %v\n", err)
			return false
		}
		fmt.Println("Cleared current conversation.")
	case ":drop":
		if len(parts) < 2 {
			fmt.Println(":drop requires a key")
			return false
		}
		if err := a.states.Delete(parts[1]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("Removed conversation %s\n", parts[1])
	case ":tools":
		defs := a.tools.Definitions()
		if len(defs) == 0 {
			fmt.Println("No tools registered.")
			return false
		}
		fmt.Println("Tools:")
		for _, def := range defs {
			fmt.Printf("  - %s: %s\n", def.Function.Name, def.Function.Description)
		}
	case ":session":
		key := a.states.Current().Key()
		if id := a.sessionFor(key); id != "" {
			fmt.Printf("Conversation %s is bound to remote session %s\n", key, id)
		} else {
			fmt.Printf("Conversation %s has no remote session yet.\n", key)
		}
	case ":transcript":
		if a.journal == nil {
			fmt.Println("Transcript journaling is disabled.")
			return false
		}
		limit := 20
		if len(parts) >= 2 {
			val, err := strconv.Atoi(parts[1])
			if err != nil || val <= 0 {
				fmt.Println(":transcript expects a positive integer limit (e.g. :transcript 20).")
				return false
			}
			limit = val
		}
		entries, err := a.journal.Recent(a.states.Current().Key(), limit)
		if err != nil {
			fmt.Printf("Transcript fetch failed: %v\n", err)
			return false
		}
		if len(entries) == 0 {
			fmt.Println("No transcript entries for this conversation.")
			return false
		}
		for _, entry := range entries {
			fmt.Printf("[%s] %-6s %s\n",
				entry.CreatedAt.Local().Format("15:04:05"), entry.Kind,
				strings.TrimRight(entry.Text, "\n"))
		}
	case ":quit", ":exit":
		fmt.Println("Exiting per user request.")
		return true
	default:
		fmt.Printf("Unknown command %s. Try :help\n", parts[0])
	}
	return false
}

func trimLineEnding(s string) string {
	s = strings.TrimSuffix(s, "\r\n")
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}

func (a *Agent) printResponse(text string) {
	if a.render == nil || strings.TrimSpace(text) == "" {
		fmt.Printf("%s\n", text)
		return
	}
	rendered, err := a.render.Render(text)
	if err != nil {
		a.logger.Printf("markdown render failed: %v", err)
		fmt.Printf("%s\n", text)
		return
	}
	fmt.Print(strings.TrimRight(rendered, "\n") + "\n")
}
