// Package config defines and loads the memobot configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for memobot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Channels ChannelsConfig `json:"channels"`
	OpenAI   OpenAIConfig   `json:"openai"`
	Drive    DriveConfig    `json:"drive"`
	Pipeline PipelineConfig `json:"pipeline"`
	Journal  JournalConfig  `json:"journal"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type DiscordConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	ChannelID string `json:"channelId,omitempty"` // empty = accept all channels
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chatId,omitempty"` // empty = accept all chats
}

type OpenAIConfig struct {
	APIKey     string `json:"apiKey"`
	APIBase    string `json:"apiBase,omitempty"`
	Model      string `json:"model"`
	MaxRetries int    `json:"maxRetries,omitempty"`
}

// DriveConfig configures the Google Drive store. Notes and URL summaries go
// to separate folders.
type DriveConfig struct {
	ServiceAccountFile string `json:"serviceAccountFile"`
	NotesFolderID      string `json:"notesFolderId"`
	URLNotesFolderID   string `json:"urlNotesFolderId"`
}

type PipelineConfig struct {
	DedupCapacity     int    `json:"dedupCapacity"`
	FetchTimeoutSecs  int    `json:"fetchTimeoutSeconds"`
	MaxPageTextLength int    `json:"maxPageTextLength"`
	MaxRedirects      int    `json:"maxRedirects"`
	PromptsFile       string `json:"promptsFile,omitempty"` // optional YAML prompt overrides
}

type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.memobot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memobot"
	}
	return filepath.Join(home, ".memobot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFile reads and parses the config without validating it. Used by the
// config subcommands so a half-filled config can still be edited.
func LoadFile(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Drive.ServiceAccountFile = ExpandPath(cfg.Drive.ServiceAccountFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	cfg.Pipeline.PromptsFile = ExpandPath(cfg.Pipeline.PromptsFile)

	return cfg, nil
}

// applyEnvOverrides lets secrets live outside the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEMOBOT_DISCORD_TOKEN"); v != "" {
		cfg.Channels.Discord.Token = v
	}
	if v := os.Getenv("MEMOBOT_TELEGRAM_TOKEN"); v != "" {
		cfg.Channels.Telegram.Token = v
	}
	if v := os.Getenv("MEMOBOT_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("MEMOBOT_GOOGLE_SERVICE_ACCOUNT_FILE"); v != "" {
		cfg.Drive.ServiceAccountFile = v
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Missing credentials are
// a startup failure, never a per-message one.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	if !cfg.Channels.Discord.Enabled && !cfg.Channels.Telegram.Enabled {
		errs = append(errs, "at least one channel must be enabled")
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required (or MEMOBOT_DISCORD_TOKEN)")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required (or MEMOBOT_TELEGRAM_TOKEN)")
	}

	if cfg.OpenAI.APIKey == "" {
		errs = append(errs, "openai.apiKey is required (or MEMOBOT_OPENAI_API_KEY)")
	}
	if cfg.OpenAI.Model == "" {
		errs = append(errs, "openai.model is required")
	}
	if cfg.OpenAI.MaxRetries < 0 || cfg.OpenAI.MaxRetries > 10 {
		errs = append(errs, "openai.maxRetries must be between 0 and 10")
	}

	if cfg.Drive.ServiceAccountFile == "" {
		errs = append(errs, "drive.serviceAccountFile is required (or MEMOBOT_GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	if cfg.Drive.NotesFolderID == "" {
		errs = append(errs, "drive.notesFolderId is required")
	}
	if cfg.Drive.URLNotesFolderID == "" {
		errs = append(errs, "drive.urlNotesFolderId is required")
	}

	if cfg.Pipeline.DedupCapacity < 1 || cfg.Pipeline.DedupCapacity > 100000 {
		errs = append(errs, "pipeline.dedupCapacity must be between 1 and 100000")
	}
	if cfg.Pipeline.FetchTimeoutSecs < 1 {
		errs = append(errs, "pipeline.fetchTimeoutSeconds must be >= 1")
	}
	if cfg.Pipeline.MaxPageTextLength < 100 {
		errs = append(errs, "pipeline.maxPageTextLength must be >= 100")
	}
	if cfg.Pipeline.MaxRedirects < 0 || cfg.Pipeline.MaxRedirects > 20 {
		errs = append(errs, "pipeline.maxRedirects must be between 0 and 20")
	}

	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when journal is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogStatus reports which credentials are configured without exposing values.
func LogStatus(cfg *Config, logger *slog.Logger) {
	set := func(s string) string {
		if s == "" {
			return "NOT SET"
		}
		return "set"
	}
	logger.Info("configuration status",
		"discord_token", set(cfg.Channels.Discord.Token),
		"discord_channel", set(cfg.Channels.Discord.ChannelID),
		"telegram_token", set(cfg.Channels.Telegram.Token),
		"openai_api_key", set(cfg.OpenAI.APIKey),
		"drive_service_account", set(cfg.Drive.ServiceAccountFile),
		"drive_notes_folder", set(cfg.Drive.NotesFolderID),
		"drive_url_notes_folder", set(cfg.Drive.URLNotesFolderID),
	)
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
