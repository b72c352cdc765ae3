package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all voxwire environment variables.
const EnvPrefix = "VOXWIRE_"

// Transcriber holds settings for the external transcription capability.
type Transcriber struct {
	Provider     string `yaml:"provider"` // "http" or "deepgram"
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	Timeout      string `yaml:"timeout"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryBackoff string `yaml:"retry_backoff"`

	// Secrets come from env vars only, never from YAML.
	APIKey         string `yaml:"-"`
	DeepgramAPIKey string `yaml:"-"`
}

// Kafka holds the optional event publisher settings. Publishing is disabled
// when Brokers is empty.
type Kafka struct {
	Brokers     []string `yaml:"brokers"`
	TopicFinal  string   `yaml:"topic_final"`
	TopicEvents string   `yaml:"topic_events"`
}

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string      `yaml:"listen_addr"`
	DBPath                string      `yaml:"db_path"`
	MaxConcurrentSessions int         `yaml:"max_concurrent_sessions"`
	BufferSize            int         `yaml:"buffer_size"`
	EnqueueWait           string      `yaml:"enqueue_wait"`
	IdleTimeout           string      `yaml:"idle_timeout"`
	SweepInterval         string      `yaml:"sweep_interval"`
	EndGracePeriod        string      `yaml:"end_grace_period"`
	WindowMaxChunks       int         `yaml:"window_max_chunks"`
	ConfidenceThreshold   float64     `yaml:"confidence_threshold"`
	SummaryModel          string      `yaml:"summary_model"`
	LogLevel              string      `yaml:"log_level"`
	LogFormat             string      `yaml:"log_format"`
	Transcriber           Transcriber `yaml:"transcriber"`
	Kafka                 Kafka       `yaml:"kafka"`

	// Secrets come from env vars only, never from YAML.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		DBPath:                "data/voxwire.db",
		MaxConcurrentSessions: 100,
		BufferSize:            100,
		EnqueueWait:           "2s",
		IdleTimeout:           "60s",
		SweepInterval:         "5s",
		EndGracePeriod:        "5s",
		WindowMaxChunks:       4,
		ConfidenceThreshold:   0.7,
		SummaryModel:          "openai/gpt-4o-mini",
		LogLevel:              "info",
		LogFormat:             "json",
		Transcriber: Transcriber{
			Provider:     "http",
			Model:        "whisper-base",
			Timeout:      "10s",
			MaxRetries:   3,
			RetryBackoff: "500ms",
		},
		Kafka: Kafka{
			TopicFinal:  "voxwire.transcripts.final",
			TopicEvents: "voxwire.sessions",
		},
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedEnqueueWait returns EnqueueWait as a duration, falling back to 2s.
func (c *Config) ParsedEnqueueWait() time.Duration {
	return parseDurationOr(c.EnqueueWait, 2*time.Second)
}

// ParsedIdleTimeout returns IdleTimeout as a duration, falling back to 60s.
func (c *Config) ParsedIdleTimeout() time.Duration {
	return parseDurationOr(c.IdleTimeout, 60*time.Second)
}

// ParsedSweepInterval returns SweepInterval as a duration, falling back to 5s.
func (c *Config) ParsedSweepInterval() time.Duration {
	return parseDurationOr(c.SweepInterval, 5*time.Second)
}

// ParsedEndGracePeriod returns EndGracePeriod as a duration, falling back to 5s.
func (c *Config) ParsedEndGracePeriod() time.Duration {
	return parseDurationOr(c.EndGracePeriod, 5*time.Second)
}

// ParsedTranscriberTimeout returns the per-call timeout, falling back to 10s.
func (c *Config) ParsedTranscriberTimeout() time.Duration {
	return parseDurationOr(c.Transcriber.Timeout, 10*time.Second)
}

// ParsedRetryBackoff returns the retry base backoff, falling back to 500ms.
func (c *Config) ParsedRetryBackoff() time.Duration {
	return parseDurationOr(c.Transcriber.RetryBackoff, 500*time.Millisecond)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_CONCURRENT_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MaxConcurrentSessions = n
		}
	}
	if v := os.Getenv(EnvPrefix + "REALTIME_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.BufferSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "ENQUEUE_WAIT"); v != "" {
		cfg.EnqueueWait = v
	}
	if v := os.Getenv(EnvPrefix + "IDLE_TIMEOUT"); v != "" {
		cfg.IdleTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "SWEEP_INTERVAL"); v != "" {
		cfg.SweepInterval = v
	}
	if v := os.Getenv(EnvPrefix + "END_GRACE_PERIOD"); v != "" {
		cfg.EndGracePeriod = v
	}
	if v := os.Getenv(EnvPrefix + "WINDOW_MAX_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.WindowMaxChunks = n
		}
	}
	if v := os.Getenv(EnvPrefix + "CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			cfg.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER_PROVIDER"); v != "" {
		cfg.Transcriber.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER_ENDPOINT"); v != "" {
		cfg.Transcriber.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER_MODEL"); v != "" {
		cfg.Transcriber.Model = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER_TIMEOUT"); v != "" {
		cfg.Transcriber.Timeout = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.Transcriber.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER_RETRY_BACKOFF"); v != "" {
		cfg.Transcriber.RetryBackoff = v
	}
	if v := os.Getenv(EnvPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "KAFKA_TOPIC_FINAL"); v != "" {
		cfg.Kafka.TopicFinal = v
	}
	if v := os.Getenv(EnvPrefix + "KAFKA_TOPIC_EVENTS"); v != "" {
		cfg.Kafka.TopicEvents = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.Transcriber.APIKey = os.Getenv(EnvPrefix + "TRANSCRIBER_API_KEY")
	cfg.Transcriber.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcriber.Provider {
	case "http":
		if cfg.Transcriber.Endpoint == "" {
			warnings = append(warnings, "Transcriber endpoint not configured — transcription calls will fail. Set "+EnvPrefix+"TRANSCRIBER_ENDPOINT.")
		}
	case "deepgram":
		if cfg.Transcriber.DeepgramAPIKey == "" {
			warnings = append(warnings, "Deepgram API key not configured — transcription calls will fail. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcriber provider %q — expected http or deepgram.", cfg.Transcriber.Provider))
	}

	if cfg.OpenAIAPIKey == "" && cfg.AnthropicAPIKey == "" && cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "No LLM API key configured — session summaries are disabled.")
	}

	for _, d := range []struct{ name, value string }{
		{"enqueue_wait", cfg.EnqueueWait},
		{"idle_timeout", cfg.IdleTimeout},
		{"sweep_interval", cfg.SweepInterval},
		{"end_grace_period", cfg.EndGracePeriod},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q — using default.", d.name, d.value))
		}
	}

	return warnings
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
