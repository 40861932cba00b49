package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled: true,
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		OpenAI: OpenAIConfig{
			APIBase:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			MaxRetries: 3,
		},
		Drive: DriveConfig{},
		Pipeline: PipelineConfig{
			DedupCapacity:     50,
			FetchTimeoutSecs:  10,
			MaxPageTextLength: 3000,
			MaxRedirects:      5,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  "~/.memobot/journal.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9091",
			Endpoint: "/metrics",
		},
	}
}
