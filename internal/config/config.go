package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
// Keyword lists and topics are deliberately not here; they are profile data
// (see models.Profile) so that one binary serves every product variant.
type Config struct {
	ProfilePath string
	DataDir     string

	OpenAI   OpenAIConfig
	Reddit   RedditConfig
	Email    EmailConfig
	Pipeline PipelineConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// OpenAIConfig holds classifier gateway parameters. APIKey is the one
// unconditionally required value: the pipeline refuses to start without a
// working classifier rather than run degraded.
type OpenAIConfig struct {
	APIKey      string
	EmbedModel  string
	ChatModel   string
	Temperature float32
	MaxTokens   int
	CallTimeout time.Duration
}

// RedditConfig holds platform connector credentials. Username/Password are
// only needed when outbound responses are enabled.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	PollInterval time.Duration
}

// EmailConfig holds SMTP delivery parameters for lead notifications and the
// daily digest.
type EmailConfig struct {
	Host         string
	Port         int
	Address      string
	Password     string
	Notification string // recipient; defaults to Address
}

// PipelineConfig holds consumer and housekeeping parameters.
type PipelineConfig struct {
	QueueSize      int
	InterItemDelay time.Duration
	ReclaimEvery   int // forced memory reclamation batch count
	CooldownWindow time.Duration
	CooldownGrace  time.Duration

	AutoRespond bool
	SendDMs     bool
	SendEmails  bool
}

// ServerConfig holds the metrics/health HTTP listener parameters.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

const (
	defaultEmbedModel   = "text-embedding-3-small"
	defaultChatModel    = "gpt-4o-mini"
	defaultUserAgent    = "leadscout v1.0"
	defaultPollInterval = 30 * time.Second
	defaultSMTPPort     = 587

	defaultQueueSize      = 256
	defaultInterItemDelay = 2 * time.Second
	defaultReclaimEvery   = 100
	defaultCooldown       = 24 * time.Hour
	defaultCooldownGrace  = 1 * time.Hour

	defaultPort            = "8080"
	defaultShutdownTimeout = 5 * time.Second
	defaultLogFormat       = "json"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. Missing classifier or platform credentials are the
// fatal cases; everything else degrades to a default.
func Load() (Config, error) {
	cfg := Config{
		ProfilePath: getEnv("PROFILE_PATH", "profiles/english.yaml"),
		DataDir:     getEnv("DATA_DIR", "."),
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			EmbedModel:  getEnv("OPENAI_EMBED_MODEL", defaultEmbedModel),
			ChatModel:   getEnv("OPENAI_CHAT_MODEL", defaultChatModel),
			Temperature: 0.3,
			MaxTokens:   100,
			CallTimeout: 30 * time.Second,
		},
		Reddit: RedditConfig{
			ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
			ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
			Username:     os.Getenv("REDDIT_USERNAME"),
			Password:     os.Getenv("REDDIT_PASSWORD"),
			UserAgent:    getEnv("USER_AGENT", defaultUserAgent),
			PollInterval: defaultPollInterval,
		},
		Email: EmailConfig{
			Host:     getEnv("EMAIL_SMTP_SERVER", "mail.privateemail.com"),
			Port:     defaultSMTPPort,
			Address:  os.Getenv("EMAIL_ADDRESS"),
			Password: os.Getenv("EMAIL_PASSWORD"),
		},
		Pipeline: PipelineConfig{
			QueueSize:      defaultQueueSize,
			InterItemDelay: defaultInterItemDelay,
			ReclaimEvery:   defaultReclaimEvery,
			CooldownWindow: defaultCooldown,
			CooldownGrace:  defaultCooldownGrace,
			AutoRespond:    getEnvBool("AUTO_RESPOND", false),
			SendDMs:        getEnvBool("SEND_DMS", false),
			SendEmails:     getEnvBool("SEND_EMAILS", true),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", defaultPort),
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
	}

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required: the classifier gateway cannot run degraded")
	}

	if cfg.Reddit.ClientID == "" || cfg.Reddit.ClientSecret == "" {
		return Config{}, fmt.Errorf("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required")
	}

	cfg.Email.Notification = getEnv("NOTIFICATION_EMAIL", cfg.Email.Address)

	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		temp, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid OPENAI_TEMPERATURE: %w", err)
		}
		cfg.OpenAI.Temperature = float32(temp)
	}

	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid OPENAI_TIMEOUT_SECONDS: %w", err)
		}
		cfg.OpenAI.CallTimeout = d
	}

	if v := os.Getenv("REDDIT_POLL_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDDIT_POLL_INTERVAL_SECONDS: %w", err)
		}
		cfg.Reddit.PollInterval = d
	}

	if v := os.Getenv("EMAIL_SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return Config{}, fmt.Errorf("invalid EMAIL_SMTP_PORT: must be a positive integer")
		}
		cfg.Email.Port = port
	}

	if v := os.Getenv("QUEUE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return Config{}, fmt.Errorf("invalid QUEUE_SIZE: must be a positive integer")
		}
		cfg.Pipeline.QueueSize = size
	}

	if v := os.Getenv("RESPONSE_COOLDOWN_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return Config{}, fmt.Errorf("invalid RESPONSE_COOLDOWN_HOURS: must be a positive integer")
		}
		cfg.Pipeline.CooldownWindow = time.Duration(hours) * time.Hour
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// LoadDigest reads the subset of configuration the offline digest job needs.
// Classifier and platform credentials are not required; SMTP credentials are,
// since sending is the job's whole purpose.
func LoadDigest() (Config, error) {
	cfg := Config{
		ProfilePath: getEnv("PROFILE_PATH", "profiles/english.yaml"),
		DataDir:     getEnv("DATA_DIR", "."),
		Email: EmailConfig{
			Host:     getEnv("EMAIL_SMTP_SERVER", "mail.privateemail.com"),
			Port:     defaultSMTPPort,
			Address:  os.Getenv("EMAIL_ADDRESS"),
			Password: os.Getenv("EMAIL_PASSWORD"),
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
	}

	if !cfg.Email.EmailConfigured() {
		return Config{}, fmt.Errorf("EMAIL_ADDRESS and EMAIL_PASSWORD are required")
	}

	cfg.Email.Notification = getEnv("NOTIFICATION_EMAIL", cfg.Email.Address)

	if v := os.Getenv("EMAIL_SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return Config{}, fmt.Errorf("invalid EMAIL_SMTP_PORT: must be a positive integer")
		}
		cfg.Email.Port = port
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// EmailConfigured reports whether SMTP delivery can be attempted.
func (e EmailConfig) EmailConfigured() bool {
	return e.Address != "" && e.Password != ""
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
