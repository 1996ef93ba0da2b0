package main

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode"

	"julep/internal/agent"
	"julep/internal/config"
	"julep/internal/credentials"
	"julep/internal/jules"
	"julep/internal/llm"
	mockclient "julep/internal/llm/mockclient"
	"julep/internal/logging"
	"julep/internal/openrouter"
	"julep/internal/prompts"
	"julep/internal/state"
	"julep/internal/tooling"
	"julep/internal/transcript"
)

// Version is set via -ldflags during build
var Version = "dev"

func main() {
	var (
		sandboxPath  = flag.String("sandbox", "", "Override workspace root/sandbox directory")
		resumeKey    = flag.String("resume", "", "Resume an existing conversation key")
		listSessions = flag.Bool("list-sessions", false, "List stored conversations for this workspace and exit")
		promptFlag   = flag.String("p", "", "Execute a single prompt and exit (non-interactive mode)")
		setupFlag    = flag.Bool("setup", false, "Run credential setup")
		versionFlag  = flag.Bool("version", false, "Print version and exit")
	)
	flag.StringVar(promptFlag, "prompt", "", "Execute a single prompt and exit (non-interactive mode)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("Julep version %s\n", Version)
		return
	}

	credManager, err := credentials.NewManager()
	if err != nil {
		log.Fatalf("Failed to initialize credential manager: %v", err)
	}

	if *setupFlag {
		if err := runSetup(credManager); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	creds, err := credManager.Load()
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	if creds.HasAnyProvider() {
		if err := config.EnsureDefaultConfig(creds.DefaultProvider); err != nil {
			log.Fatalf("Failed to ensure default config: %v", err)
		}
	}

	cfg, err := config.LoadUserConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if sandbox := strings.TrimSpace(*sandboxPath); sandbox != "" {
		cfg.OverrideWorkspaceRoot(sandbox)
	}

	root := cfg.WorkspaceRoot
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		log.Fatalf("Failed to resolve workspace root: %v", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		log.Fatalf("Failed to create workspace root: %v", err)
	}

	dataRoot := projectStorageRoot(absRoot)
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		log.Fatalf("Failed to create project storage root: %v", err)
	}
	cfg.ConversationDir = filepath.Join(dataRoot, "conversations")
	cfg.HistoryPath = filepath.Join(dataRoot, ".history")
	cfg.TranscriptPath = filepath.Join(dataRoot, "transcripts.db")
	cfg.LogPath = filepath.Join(dataRoot, "julep.log")

	prompts.SetMetadata(buildEnvironmentMetadata(absRoot))

	logWriter := logging.Setup(cfg.LogPath)
	logger := log.New(logWriter, "julep ", log.LstdFlags|log.Lmicroseconds)

	activeProvider := strings.ToLower(cfg.Provider)
	if activeProvider == "" {
		activeProvider = strings.ToLower(creds.DefaultProvider)
	}

	var (
		client    llm.Client
		stream    llm.StreamClient
		agentOpts = agent.Options{ResumeKey: strings.TrimSpace(*resumeKey)}
	)

	switch {
	case os.Getenv("JULEP_MOCK_LLM") == "1":
		logger.Println("JULEP_MOCK_LLM=1 detected; using mock LLM client")
		client = mockclient.New()
		cfg.Model = config.DefaultMockModel
	case activeProvider == "jules":
		julesClient, err := jules.NewClient(jules.ClientOptions{
			BaseURL:        cfg.JulesBaseURL,
			APIKey:         creds.GetAPIKey("jules"),
			Source:         cfg.JulesSource,
			StartingBranch: cfg.JulesStartingBranch,
			Timeout:        cfg.RequestTimeout(),
			Logger:         logger,
		})
		if err != nil {
			log.Fatalf("Failed to init agent provider: %v (run: julep --setup)", err)
		}
		registry := jules.NewSessionRegistry()
		stream = jules.NewBackend(julesClient, registry, jules.PollerOptions{
			Interval: cfg.PollInterval(),
			MaxPolls: cfg.MaxPolls,
			PageSize: cfg.ActivityPageSize,
			Logger:   logger,
		})
		agentOpts.Session = registry.Get
		logger.Printf("Remote agent provider ready (source %s)", cfg.JulesSource)
	case activeProvider == "openrouter":
		apiKey := creds.GetAPIKey("openrouter")
		if apiKey == "" {
			log.Fatal("OpenRouter API key not configured. Run: julep --setup")
		}
		client = openrouter.NewClient(cfg.BaseURL, apiKey, cfg.RequestTimeout(), logger)
		logger.Printf("OpenRouter provider ready (model %s)", cfg.Model)
	default:
		log.Fatalf("Unknown provider %q. Run: julep --setup", activeProvider)
	}

	combinedPrompt := prompts.Combine(cfg.SystemPrompt)
	states, err := state.NewManager(combinedPrompt, cfg.ConversationDir, logger)
	if err != nil {
		log.Fatalf("Failed to init state manager: %v", err)
	}

	if *listSessions {
		printConversationList(states.ListKeys())
		return
	}

	baseTools, err := tooling.DefaultTools(tooling.Options{
		WorkspaceRoot: absRoot,
		ShellTimeout:  cfg.ShellTimeout(),
		WebTimeout:    cfg.RequestTimeout(),
	})
	if err != nil {
		log.Fatalf("Failed to init tools: %v", err)
	}
	tools := tooling.NewRegistry(baseTools...)

	journal, err := transcript.NewStore(cfg.TranscriptPath)
	if err != nil {
		log.Fatalf("Failed to open transcript store: %v", err)
	}
	defer journal.Close()

	agentInstance, err := agent.New(client, stream, cfg, states, tools, journal, logger, agentOpts)
	if err != nil {
		log.Fatalf("Failed to init agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("Received shutdown signal, stopping")
		cancel()
	}()

	if *promptFlag != "" {
		if err := agentInstance.RunOneShot(ctx, *promptFlag); err != nil {
			log.Fatalf("Prompt failed: %v", err)
		}
		return
	}

	if err := agentInstance.Run(ctx); err != nil {
		log.Fatalf("Agent failed: %v", err)
	}
}

func runSetup(credManager *credentials.Manager) error {
	creds, err := credManager.Load()
	if err != nil {
		return err
	}
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Julep credential setup")
	fmt.Println("Providers: jules (remote coding agent), openrouter (chat completions)")

	provider, err := readLine(reader, "Provider name: ")
	if err != nil {
		return err
	}
	provider = strings.ToLower(provider)
	if provider != "jules" && provider != "openrouter" {
		return fmt.Errorf("unsupported provider %q", provider)
	}

	apiKey, err := readLine(reader, "API key: ")
	if err != nil {
		return err
	}
	if apiKey == "" {
		return fmt.Errorf("API key must not be empty")
	}

	creds.SetProvider(provider, apiKey)
	if creds.DefaultProvider == "" {
		creds.DefaultProvider = provider
	}
	if err := credManager.Save(creds); err != nil {
		return err
	}
	fmt.Printf("Saved %s credentials to %s\n", provider, credManager.Path())

	if provider == "jules" {
		fmt.Println("Set jules_source in the config file to the repository to work against,")
		fmt.Println("e.g. jules_source: sources/github/owner/repo")
	}
	return nil
}

func readLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func projectStorageRoot(workspace string) string {
	return filepath.Join(config.GetConfigDir(), "projects", projectSlug(workspace))
}

func projectSlug(path string) string {
	clean := filepath.Clean(path)
	base := sanitizeSlug(filepath.Base(clean))
	if base == "" {
		base = "workspace"
	}
	sum := sha1.Sum([]byte(clean))
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(sum[:8]))
}

func sanitizeSlug(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || r == '_' || unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func printConversationList(keys []string) {
	if len(keys) == 0 {
		fmt.Println("No stored conversations for this workspace yet.")
		return
	}
	fmt.Printf("Stored conversations (%d):\n", len(keys))
	for i, key := range keys {
		fmt.Printf("  %d) %s\n", i+1, key)
	}
}

func buildEnvironmentMetadata(workspace string) string {
	now := time.Now()
	lines := []string{
		fmt.Sprintf("- OS: %s (%s)", runtime.GOOS, runtime.GOARCH),
		fmt.Sprintf("- Date: %s", now.Format("2006-01-02")),
	}
	if shell := strings.TrimSpace(os.Getenv("SHELL")); shell != "" {
		lines = append(lines, fmt.Sprintf("- Shell: %s", shell))
	}
	if workspace != "" {
		lines = append(lines, fmt.Sprintf("- Workspace Root: %s", workspace))
	}
	if Version != "" {
		lines = append(lines, fmt.Sprintf("- Julep Version: %s", Version))
	}
	return strings.Join(lines, "\n")
}
