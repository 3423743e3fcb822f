package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Extraction.Provider)
	assert.Equal(t, 30000, cfg.Extraction.MaxChars)
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
	assert.Equal(t, 2000, cfg.Extraction.InitialBackoffMs)
	assert.Equal(t, 30, cfg.Resolve.TimeoutSecs)
	assert.Equal(t, int64(50<<20), cfg.Resolve.MaxBytes)
	assert.Equal(t, "skip", cfg.Library.DuplicatePolicy)
	assert.Equal(t, 2000, cfg.Batch.DelayMs)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, 10, cfg.Batch.PollIntervalSecs)
	assert.Equal(t, 1500, cfg.Batch.DebounceMs)
	assert.Equal(t, "processed", cfg.Batch.ProcessedDir)
	assert.InDelta(t, 3.0, cfg.Notion.RateLimit, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
extraction:
  provider: gemini
  max_chars: 12000
gemini:
  project: my-lab
batch:
  delay_ms: 500
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Extraction.Provider)
	assert.Equal(t, 12000, cfg.Extraction.MaxChars)
	assert.Equal(t, "my-lab", cfg.Gemini.Project)
	assert.Equal(t, "us-central1", cfg.Gemini.Location)
	assert.Equal(t, 500, cfg.Batch.DelayMs)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 1500, cfg.Batch.DebounceMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("library:\n  duplicate_policy: update\n"), 0o644))

	t.Setenv("PAPER_LIBRARY_DUPLICATE_POLICY", "ask")
	t.Setenv("PAPER_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("PAPER_NOTION_TOKEN", "ntn_test")
	t.Setenv("PAPER_NOTION_DATABASE_ID", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ask", cfg.Library.DuplicatePolicy)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "ntn_test", cfg.Notion.Token)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Notion.DatabaseID)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("batch: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper-cli.log")
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json", File: path}))

	zap.L().Info("stage complete", zap.String("stage", "resolve"))
	_ = zap.L().Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"resolve"`)
}

func validConfig() *Config {
	return &Config{
		Extraction: ExtractionConfig{Provider: "anthropic", MaxChars: 30000, MaxAttempts: 3},
		Anthropic:  AnthropicConfig{Key: "sk-ant-key"},
		Notion:     NotionConfig{Token: "ntn_token", DatabaseID: "01234567-89ab-cdef-0123-456789abcdef"},
		Library:    LibraryConfig{DuplicatePolicy: "skip"},
		Batch:      BatchConfig{DelayMs: 2000, Workers: 1, DebounceMs: 1500},
		Store:      StoreConfig{Driver: "sqlite", DatabaseURL: "paper-cli.db"},
		Server:     ServerConfig{Port: 8080},
	}
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate("ingest"))
	assert.NoError(t, cfg.Validate("selftest"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidate_MissingCredentialsNamesField(t *testing.T) {
	cfg := validConfig()
	cfg.Anthropic.Key = ""
	cfg.Notion.Token = ""

	err := cfg.Validate("ingest")
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "anthropic.key", ve.Field)
	assert.Contains(t, err.Error(), "notion.token is required")
}

func TestValidate_DatabaseIDFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Notion.DatabaseID = "not-a-notion-id"

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.database_id must be a 32-character hex Notion id")

	cfg.Notion.DatabaseID = "0123456789ABCDEF0123456789ABCDEF"
	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidate_GeminiNeedsProject(t *testing.T) {
	cfg := validConfig()
	cfg.Extraction.Provider = "gemini"
	cfg.Gemini.Location = "us-central1"

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini.project is required")
	assert.NotContains(t, err.Error(), "anthropic.key")

	cfg.Gemini.Project = "lab"
	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidate_Policy(t *testing.T) {
	cfg := validConfig()
	cfg.Library.DuplicatePolicy = "merge"

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "library.duplicate_policy")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("ingest"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_StoreModeIgnoresCredentials(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/papers"}}
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.Validate("store"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validConfig().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
