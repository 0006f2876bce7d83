package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/otarik/minerva/internal/config"
	"github.com/otarik/minerva/internal/logger"
	"github.com/otarik/minerva/internal/telegram"
	"github.com/otarik/minerva/pkg/agent"
	"github.com/otarik/minerva/pkg/orchestrator"
	"github.com/otarik/minerva/pkg/retrieval"
	"github.com/otarik/minerva/pkg/retry"
	"github.com/otarik/minerva/pkg/session"
	"github.com/otarik/minerva/pkg/speech"
	"github.com/otarik/minerva/pkg/tools"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Minerva bot",
	Long: `Start the Minerva bot in the foreground. The bot connects to
Telegram and answers messages until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	zl := log.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	retryExec := retry.New(retry.Config{Logger: zl})
	openaiClient := openai.NewClient(option.WithAPIKey(cfg.Provider.OpenAIKey))

	store, err := retrieval.NewStore(retrieval.Config{
		DBPath:    filepath.Join(cfg.DataDir, "documents.db"),
		Embedder:  retrieval.NewOpenAIEmbedder(openaiClient, retryExec),
		Completer: retrieval.NewOpenAICompleter(openaiClient, cfg.Model.Model, retryExec),
		Logger:    zl,
	})
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer store.Close()

	provider, err := agent.NewProvider(cfg.Provider.Name, providerKey(cfg))
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	loop, err := agent.NewLoop(agent.Config{
		Provider: provider,
		Retry:    retryExec,
		Model:    cfg.Model,
		Logger:   zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	converter, err := speech.New(speech.Config{
		APIKey: cfg.Provider.OpenAIKey,
		Retry:  retryExec,
		Logger: zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create speech converter: %w", err)
	}

	sessions := session.New(session.Config{})

	bot, err := telegram.New(&cfg.Telegram, zl)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	// Tool credentials are re-read on each turn so config reloads take
	// effect without a restart.
	var liveCfg atomic.Pointer[config.Config]
	liveCfg.Store(cfg)

	orch, err := orchestrator.New(orchestrator.Config{
		Sessions: sessions,
		Agent:    loop,
		Store:    store,
		Speech:   converter,
		Typing:   bot,
		NewTools: func(conversationID string) *tools.Set {
			current := liveCfg.Load()
			return tools.NewSet(tools.Config{
				OpenAI:  openaiClient,
				Google:  tools.GoogleConfig{APIKey: current.Tools.GoogleAPIKey, CSEID: current.Tools.GoogleCSEID},
				Wolfram: current.Tools.WolframAppID,
				Store:   store,
				OwnerID: conversationID,
				Retry:   retryExec,
				Logger:  zl,
			})
		},
		Logger: zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	handler := telegram.NewHandler(bot, orch)
	commands := telegram.NewCommands(bot, orch)
	media := telegram.NewMedia(bot, orch, filepath.Join(cfg.DataDir, "downloads"))

	bot.SetMessageHandler(handler)
	bot.SetCommandHandler(commands)
	bot.SetCallbackHandler(commands)
	bot.SetMediaHandler(media)

	if err := commands.SetCommands(); err != nil {
		zl.Warn().Err(err).Msg("Failed to publish command list")
	}

	// Background maintenance: drop expired sessions and compact the
	// document store.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 10m", func() {
		if n := sessions.Sweep(); n > 0 {
			zl.Debug().Int("swept", n).Msg("Expired sessions removed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	if _, err := scheduler.AddFunc("@daily", func() {
		if err := store.Vacuum(cmd.Context()); err != nil {
			zl.Warn().Err(err).Msg("Store vacuum failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule store vacuum: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Hot-reload tool credentials on config file changes.
	watcher, err := config.NewWatcher(config.NewLoader(cfgFile), zl, func(next *config.Config) {
		liveCfg.Store(next)
	})
	if err != nil {
		zl.Warn().Err(err).Msg("Config watching disabled")
	} else {
		defer watcher.Stop()
	}

	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	zl.Info().Str("version", version).Msg("Minerva started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	zl.Info().Str("signal", sig.String()).Msg("Shutting down")
	return bot.Stop()
}

// providerKey picks the API key matching the configured chat provider.
func providerKey(cfg *config.Config) string {
	if cfg.Provider.Name == "anthropic" {
		return cfg.Provider.AnthropicKey
	}
	return cfg.Provider.OpenAIKey
}
