package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Backends: map[string]BackendConfig{
			"cerebras": {
				BaseURL:                "https://api.cerebras.ai/v1",
				APIKey:                 "",
				Model:                  "zai-glm-4.7",
				Provider:               "cerebras",
				ContextLimit:           131072,
				PromptPricePerMTok:     0.60,
				CompletionPricePerMTok: 1.20,
			},
			"anthropic": {
				BaseURL:                "https://api.anthropic.com",
				APIKey:                 "",
				Model:                  "claude-sonnet-4-20250514",
				Provider:               "anthropic",
				ContextLimit:           200000,
				PromptPricePerMTok:     3.00,
				CompletionPricePerMTok: 15.00,
			},
		},
		Client: ClientConfig{
			DefaultBackend:        "cerebras",
			AlternateBackend:      "anthropic",
			MaxRetries:            3,
			InitialDelay:          1 * time.Second,
			MaxDelay:              30 * time.Second,
			Multiplier:            2.0,
			EmptyContentIncrement: 2000,
			CallTimeout:           90 * time.Second,
		},
		Loop: LoopConfig{
			MaxIterations:        6,
			ConvergenceThreshold: 10,
			TransferMemory:       true,
		},
		Eval: EvalConfig{
			Runs:        3,
			JudgeBudget: 2000,
			TieMargin:   3,
		},
		Memory: MemoryConfig{
			MaxLessons: 0,
			Seed:       true,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			DB:        0,
			KeyPrefix: "orgbench:memory:",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "orgbench.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
