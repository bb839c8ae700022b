// Package cmd wires the threadkeep CLI. It is the composition root: every
// store is constructed exactly once here and handed to consumers by
// reference; Close tears the process state down in reverse order.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/threadkeep-ai/threadkeep/internal/compact"
	"github.com/threadkeep-ai/threadkeep/internal/config"
	"github.com/threadkeep-ai/threadkeep/internal/eventlog"
	"github.com/threadkeep-ai/threadkeep/internal/history"
	"github.com/threadkeep-ai/threadkeep/internal/memory"
	"github.com/threadkeep-ai/threadkeep/internal/provider"
	"github.com/threadkeep-ai/threadkeep/internal/session"
)

var (
	cfgFile     string
	dataDirFlag string

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:     "threadkeep",
		Short:   "Conversation-state core for chat-embedded agents",
		Long:    "threadkeep persists multi-turn agent sessions, extracts bounded context for model calls, and drives history compaction.",
		Version: fmt.Sprintf("%s (%s, %s)", version, commit, date),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/threadkeep/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.local/share/threadkeep)")

	rootCmd.AddCommand(newTurnCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newCompactCmd())
	rootCmd.AddCommand(newContextCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newMemoryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the constructed process state.
type app struct {
	cfg      *config.Config
	events   *eventlog.Logger
	sessions *session.Store
	contexts *history.Store
}

// newApp loads configuration and constructs the stores.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	dataDir := cfg.ResolveDataDir()

	events, err := eventlog.New(dataDir)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(dataDir, events)
	if err != nil {
		events.Close()
		return nil, err
	}

	contexts, err := history.NewStore(dataDir, history.Options{
		Cap:           cfg.ContextCap,
		ContextBudget: cfg.ContextBudget,
		CacheTTL:      cfg.CacheTTL(),
		DedupWindow:   cfg.DedupWindow(),
	}, events)
	if err != nil {
		events.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		events:   events,
		sessions: sessions,
		contexts: contexts,
	}, nil
}

func (a *app) Close() {
	a.events.Close()
}

// openArchive opens the memory archive, or a no-op store when disabled.
func (a *app) openArchive() (memory.Store, error) {
	if a.cfg.Memory.Disabled {
		return memory.NullStore{}, nil
	}
	return memory.Open(a.cfg.MemoryPath())
}

// buildProvider constructs the configured LLM provider.
func (a *app) buildProvider() (provider.Provider, error) {
	name := a.cfg.Provider
	pc := a.cfg.GetProviderConfig(name)
	model := a.cfg.Model
	if model == "" {
		model = pc.Model
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(pc.APIKey, pc.BaseURL, model), nil
	default:
		if pc.APIKey == "" && pc.BaseURL == "" {
			return nil, fmt.Errorf("provider %q is not configured (set LLM_API_KEY or providers.%s.api_key)", name, name)
		}
		return provider.NewOpenAIProvider(pc.APIKey, pc.BaseURL, model), nil
	}
}

// buildEngine constructs the compaction engine with the configured provider
// and memory archive behind it.
func (a *app) buildEngine() (*compact.Engine, memory.Store, error) {
	p, err := a.buildProvider()
	if err != nil {
		return nil, nil, err
	}
	archive, err := a.openArchive()
	if err != nil {
		return nil, nil, err
	}

	var archiver compact.Archiver
	if a.cfg.Memory.ArchiveSummaries {
		archiver = archive
	}
	engine := compact.NewEngine(a.sessions, &compact.LLMSummarizer{Provider: p}, compact.Options{
		Threshold:     a.cfg.CompactThreshold,
		ContextWindow: a.cfg.ContextWindow,
	}, archiver, a.events)
	return engine, archive, nil
}
