package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"memobot/internal/bus"
	"memobot/internal/channel"
	"memobot/internal/config"
	"memobot/internal/journal"
	"memobot/internal/metrics"
	"memobot/internal/notes"
	"memobot/internal/provider"
	"memobot/internal/store"
	"memobot/internal/webpage"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "memobot",
		Short: "Memobot: chat messages to Obsidian-style notes on Google Drive",
		Long:  "Memobot listens on chat channels, turns messages into formatted Markdown notes via an LLM, links related notes, and saves them to Google Drive.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.memobot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Edit %s and fill in your tokens, then run 'memobot gateway'.\n", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger rebuilds the global logger from config (level, optional file).
func setupLogger(cfg *config.Config) (closer io.Closer) {
	var out io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err == nil {
			f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				out = io.MultiWriter(os.Stderr, f)
				closer = f
			} else {
				logger.Warn("cannot open log file, using stderr only", "path", cfg.General.LogFile, "err", err)
			}
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.General.LogLevel),
	}))
	return closer
}

// journalRecorder adapts the journal store to the pipeline's Recorder.
type journalRecorder struct {
	store *journal.Store
}

func (r *journalRecorder) RecordSaved(ctx context.Context, n notes.RecordedNote) error {
	return r.store.RecordSaved(ctx, journal.Entry{
		Filename:  n.Filename,
		FileID:    n.FileID,
		Channel:   n.Channel,
		Kind:      n.Kind,
		CreatedAt: n.CreatedAt,
	})
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the bot (all enabled channels + note pipeline)",
		Long:  "Starts all enabled chat channels and the note pipeline. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if closer := setupLogger(cfg); closer != nil {
		defer closer.Close()
	}
	config.LogStatus(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	prov := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		APIBase:    cfg.OpenAI.APIBase,
		Model:      cfg.OpenAI.Model,
		MaxRetries: cfg.OpenAI.MaxRetries,
		Logger:     logger,
	})
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", prov.Name())
	}

	drive, err := store.NewDrive(store.DriveConfig{
		ServiceAccountFile: cfg.Drive.ServiceAccountFile,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("drive store: %w", err)
	}
	if err := drive.Healthy(ctx); err != nil {
		logger.Warn("drive unhealthy at startup", "err", err)
	}

	fetcher := webpage.NewFetcher(webpage.FetcherConfig{
		Timeout:      time.Duration(cfg.Pipeline.FetchTimeoutSecs) * time.Second,
		MaxRedirects: cfg.Pipeline.MaxRedirects,
		Logger:       logger,
	})

	prompts := notes.DefaultPrompts()
	if cfg.Pipeline.PromptsFile != "" {
		prompts, err = notes.LoadPrompts(cfg.Pipeline.PromptsFile, logger)
		if err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
	}

	var recorder notes.Recorder
	if cfg.Journal.Enabled {
		jstore, err := journal.NewStore(cfg.Journal.DBPath, logger)
		if err != nil {
			return fmt.Errorf("journal store: %w", err)
		}
		defer jstore.Close()
		recorder = &journalRecorder{store: jstore}
	}

	pipeline := notes.NewPipeline(notes.PipelineConfig{
		Provider: prov,
		Store:    drive,
		Bus:      messageBus,
		Summarizer: notes.NewSummarizer(notes.SummarizerConfig{
			Provider:      prov,
			Fetcher:       fetcher,
			Prompts:       prompts,
			MaxTextLength: cfg.Pipeline.MaxPageTextLength,
			Logger:        logger,
		}),
		Finder: notes.NewFinder(notes.FinderConfig{
			Provider: prov,
			Store:    drive,
			FolderID: cfg.Drive.NotesFolderID,
			Prompts:  prompts,
			Logger:   logger,
		}),
		Dedup:            notes.NewDeduplicator(cfg.Pipeline.DedupCapacity, logger),
		Recorder:         recorder,
		Prompts:          prompts,
		NotesFolderID:    cfg.Drive.NotesFolderID,
		URLNotesFolderID: cfg.Drive.URLNotesFolderID,
		Concurrency:      cfg.General.MaxConcurrentMessages,
		Logger:           logger,
	})

	go pipeline.Run(ctx)

	var discordCh *channel.Discord
	if cfg.Channels.Discord.Enabled {
		discordCh = channel.NewDiscord(channel.DiscordConfig{
			Token:     cfg.Channels.Discord.Token,
			ChannelID: cfg.Channels.Discord.ChannelID,
			Logger:    logger,
		})
		go func() {
			if err := discordCh.Start(ctx, messageBus); err != nil {
				logger.Error("discord channel error", "err", err)
			}
		}()
		logger.Info("discord channel enabled")
	}

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:  cfg.Channels.Telegram.Token,
			ChatID: cfg.Channels.Telegram.ChatID,
			Logger: logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics server started", "addr", cfg.Metrics.Addr, "endpoint", cfg.Metrics.Endpoint)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if discordCh != nil {
			discordCh.Stop()
		}
		if telegramCh != nil {
			telegramCh.Stop()
		}
		if metricsSrv != nil {
			metricsSrv.Shutdown(shutdownCtx)
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}

func statusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration status and recently saved notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			config.LogStatus(cfg, logger)

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			prov := provider.NewOpenAI(provider.OpenAIConfig{
				APIKey:     cfg.OpenAI.APIKey,
				APIBase:    cfg.OpenAI.APIBase,
				Model:      cfg.OpenAI.Model,
				MaxRetries: cfg.OpenAI.MaxRetries,
				Logger:     logger,
			})
			if err := prov.Healthy(ctx); err != nil {
				logger.Info("provider", "name", prov.Name(), "healthy", false, "err", err)
			} else {
				logger.Info("provider", "name", prov.Name(), "healthy", true)
			}

			if !cfg.Journal.Enabled {
				return nil
			}
			jstore, err := journal.NewStore(cfg.Journal.DBPath, logger)
			if err != nil {
				logger.Warn("journal unavailable", "err", err)
				return nil
			}
			defer jstore.Close()

			total, err := jstore.Count(ctx)
			if err != nil {
				return err
			}
			entries, err := jstore.Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Printf("Saved notes: %d total\n", total)
			for _, e := range entries {
				fmt.Printf("  %s  [%s/%s]  %s\n",
					e.CreatedAt.Format("2006-01-02 15:04"), e.Channel, e.Kind, e.Filename)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of recent notes to show")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. openai.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.LoadFile(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. openai.model gpt-4o)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.LoadFile(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.LoadFile(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
