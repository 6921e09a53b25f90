// Package config loads miniagents' runtime configuration from a .env file
// (if present) and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultProvider selects which LLM adapter backs the assistant agent.
	DefaultProvider = "openai"
	// DefaultOpenAIModel names the default OpenAI chat-completion model.
	DefaultOpenAIModel = "gpt-4o-2024-05-13"
	// DefaultAnthropicModel names the default Anthropic messages model.
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	// DefaultStreamTokens controls whether LLM adapters request a token stream by default.
	DefaultStreamTokens = true
	// DefaultEagerPromises is the default for Config.EagerPromises (MINIAGENTS_EAGER).
	// No component reads that field: each promise is built with its own eager flag.
	DefaultEagerPromises = true

	// DefaultChatHistoryPath is where the markdown chat transcript is appended.
	DefaultChatHistoryPath = "CHAT.md"

	// DefaultGatewayAddr is the default address for the optional WebSocket gateway.
	DefaultGatewayAddr = ":8765"
	// DefaultGatewayMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultGatewayMaxPayloadBytes int64 = 1 << 20

	// DefaultLogLevel controls verbosity for miniagents logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "miniagents.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultCallRateWindow is the default for Config.CallRateWindow
	// (MINIAGENTS_CALL_RATE_WINDOW). The value is loaded and validated, but no
	// agent reads it, so LLM calls are not rate limited.
	DefaultCallRateWindow = time.Minute
	// DefaultCallRateBurst is the default for Config.CallRateBurst
	// (MINIAGENTS_CALL_RATE_BURST); like the window, no agent reads it.
	DefaultCallRateBurst = 30
)

// Config captures all runtime tunables for miniagents.
type Config struct {
	Provider       string
	OpenAIModel    string
	OpenAIAPIKey   string
	AnthropicModel string
	AnthropicKey   string
	StreamTokens   bool
	EagerPromises  bool

	ChatHistoryPath string

	GatewayAddr           string
	GatewayMaxPayloadBytes int64
	GatewayAdminToken     string

	Logging LoggingConfig

	CallRateWindow time.Duration
	CallRateBurst  int
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the miniagents configuration, applying sane defaults and
// returning descriptive errors for invalid overrides. A .env file in the
// working directory is loaded first, matching examples/conversation.py's
// load_dotenv() — a missing file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Provider:       strings.ToLower(getString("MINIAGENTS_PROVIDER", DefaultProvider)),
		OpenAIModel:    getString("MINIAGENTS_OPENAI_MODEL", DefaultOpenAIModel),
		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		AnthropicModel: getString("MINIAGENTS_ANTHROPIC_MODEL", DefaultAnthropicModel),
		AnthropicKey:   strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		StreamTokens:   DefaultStreamTokens,
		EagerPromises:  DefaultEagerPromises,

		ChatHistoryPath: getString("MINIAGENTS_CHAT_HISTORY", DefaultChatHistoryPath),

		GatewayAddr:            getString("MINIAGENTS_GATEWAY_ADDR", DefaultGatewayAddr),
		GatewayMaxPayloadBytes: DefaultGatewayMaxPayloadBytes,
		GatewayAdminToken:      strings.TrimSpace(os.Getenv("MINIAGENTS_GATEWAY_TOKEN")),

		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("MINIAGENTS_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("MINIAGENTS_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},

		CallRateWindow: DefaultCallRateWindow,
		CallRateBurst:  DefaultCallRateBurst,
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_STREAM_TOKENS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_STREAM_TOKENS must be a boolean value, got %q", raw))
		} else {
			cfg.StreamTokens = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_EAGER")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_EAGER must be a boolean value, got %q", raw))
		} else {
			cfg.EagerPromises = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_GATEWAY_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_GATEWAY_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.GatewayMaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_CALL_RATE_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_CALL_RATE_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.CallRateWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MINIAGENTS_CALL_RATE_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MINIAGENTS_CALL_RATE_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.CallRateBurst = value
		}
	}

	switch cfg.Provider {
	case "openai", "anthropic":
	default:
		problems = append(problems, fmt.Sprintf("MINIAGENTS_PROVIDER must be \"openai\" or \"anthropic\", got %q", cfg.Provider))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
