package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the full paper-cli configuration.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Resolve    ResolveConfig    `yaml:"resolve" mapstructure:"resolve"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	Library    LibraryConfig    `yaml:"library" mapstructure:"library"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// ExtractionConfig selects and tunes the metadata extraction service.
type ExtractionConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider"`
	MaxChars         int    `yaml:"max_chars" mapstructure:"max_chars"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig authenticates with application default credentials unless
// CredentialsFile is set.
type GeminiConfig struct {
	Project         string `yaml:"project" mapstructure:"project"`
	Location        string `yaml:"location" mapstructure:"location"`
	Model           string `yaml:"model" mapstructure:"model"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	DatabaseID string  `yaml:"database_id" mapstructure:"database_id"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

type ResolveConfig struct {
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBytes         int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	ContactEmail     string `yaml:"contact_email" mapstructure:"contact_email"`
	UnpaywallBaseURL string `yaml:"unpaywall_base_url" mapstructure:"unpaywall_base_url"`
	PatternsFile     string `yaml:"patterns_file" mapstructure:"patterns_file"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
}

type PDFConfig struct {
	PdfToTextPath  string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	RepeatMinPages int    `yaml:"repeat_min_pages" mapstructure:"repeat_min_pages"`
}

type LibraryConfig struct {
	DuplicatePolicy string `yaml:"duplicate_policy" mapstructure:"duplicate_policy"`
}

type BatchConfig struct {
	DelayMs              int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	Workers              int    `yaml:"workers" mapstructure:"workers"`
	MaxRequestsPerMinute int    `yaml:"max_requests_per_minute" mapstructure:"max_requests_per_minute"`
	PollIntervalSecs     int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	DebounceMs           int    `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	ProcessedDir         string `yaml:"processed_dir" mapstructure:"processed_dir"`
	QueueSize            int    `yaml:"queue_size" mapstructure:"queue_size"`
}

type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
}

type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Load reads config.yaml from the working directory, then PAPER_* env vars.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default must be registered for AutomaticEnv to see them.
	for _, key := range []string{
		"anthropic.key", "notion.token", "notion.database_id",
		"gemini.project", "gemini.credentials_file",
		"resolve.contact_email", "resolve.patterns_file", "log.file",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("extraction.provider", "anthropic")
	v.SetDefault("extraction.max_chars", 30000)
	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.initial_backoff_ms", 2000)
	v.SetDefault("extraction.max_backoff_ms", 60000)
	v.SetDefault("extraction.timeout_secs", 120)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("gemini.location", "us-central1")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("resolve.timeout_secs", 30)
	v.SetDefault("resolve.max_bytes", 50<<20)
	v.SetDefault("resolve.max_attempts", 3)
	v.SetDefault("resolve.unpaywall_base_url", "https://api.unpaywall.org/v2")
	v.SetDefault("resolve.user_agent", "paper-cli/1.0")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("pdf.repeat_min_pages", 3)
	v.SetDefault("library.duplicate_policy", "skip")
	v.SetDefault("batch.delay_ms", 2000)
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.max_requests_per_minute", 30)
	v.SetDefault("batch.poll_interval_secs", 10)
	v.SetDefault("batch.debounce_ms", 1500)
	v.SetDefault("batch.processed_dir", "processed")
	v.SetDefault("batch.queue_size", 64)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "paper-cli.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidationError names the configuration field that is missing or invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

var notionIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Validate checks the fields the given mode needs. Modes: ingest (single,
// folder and watch runs), selftest, serve, store. All problems are joined
// into one error; errors.As finds the first *ValidationError.
func (c *Config) Validate(mode string) error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, &ValidationError{Field: field, Reason: reason})
	}

	switch mode {
	case "ingest", "selftest", "serve":
		c.validateExtraction(add)
		c.validateNotion(add)
		c.validateBatch(add)
		if mode == "serve" && c.Server.Port <= 0 {
			add("server.port", "must be > 0")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url", "is required")
		}
	default:
		add("store.driver", "must be sqlite or postgres")
	}

	return errors.Join(errs...)
}

func (c *Config) validateExtraction(add func(field, reason string)) {
	switch c.Extraction.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			add("anthropic.key", "is required")
		}
	case "gemini":
		if c.Gemini.Project == "" {
			add("gemini.project", "is required")
		}
		if c.Gemini.Location == "" {
			add("gemini.location", "is required")
		}
	default:
		add("extraction.provider", "must be anthropic or gemini")
	}
	if c.Extraction.MaxChars < 1000 {
		add("extraction.max_chars", "must be >= 1000")
	}
	if c.Extraction.MaxAttempts < 1 {
		add("extraction.max_attempts", "must be >= 1")
	}
}

func (c *Config) validateNotion(add func(field, reason string)) {
	if c.Notion.Token == "" {
		add("notion.token", "is required")
	}
	switch {
	case c.Notion.DatabaseID == "":
		add("notion.database_id", "is required")
	case !notionIDPattern.MatchString(strings.ReplaceAll(c.Notion.DatabaseID, "-", "")):
		add("notion.database_id", "must be a 32-character hex Notion id")
	}
	switch c.Library.DuplicatePolicy {
	case "skip", "update", "ask":
	default:
		add("library.duplicate_policy", "must be skip, update or ask")
	}
}

func (c *Config) validateBatch(add func(field, reason string)) {
	if c.Batch.DelayMs < 0 {
		add("batch.delay_ms", "must be >= 0")
	}
	if c.Batch.Workers < 1 || c.Batch.Workers > 16 {
		add("batch.workers", "must be between 1 and 16")
	}
	if c.Batch.DebounceMs < 0 {
		add("batch.debounce_ms", "must be >= 0")
	}
}

// InitLogger replaces the global zap logger. When cfg.File is set, log lines
// are also appended to that file.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	if cfg.File != "" {
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
