// Package config provides configuration management for Heimdex Insight.
// Configuration is built from defaults, an optional TOML file named by
// HEIMDEX_CONFIG, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// Default values
	DefaultPort     = 8790
	DefaultLogLevel = "info"
	DefaultDataDir  = ".heimdex-insight"

	// Environment variable names
	EnvConfigFile = "HEIMDEX_CONFIG"
	EnvPort       = "HEIMDEX_PORT"
	EnvLogLevel   = "HEIMDEX_LOG_LEVEL"
	EnvDataDir    = "HEIMDEX_DATA_DIR"

	// Collaborator environment variable names
	EnvTranscriptionURL      = "HEIMDEX_TRANSCRIPTION_URL"
	EnvTranscriptionTimeout  = "HEIMDEX_TRANSCRIPTION_TIMEOUT_S"
	EnvTranscriptionLanguage = "HEIMDEX_TRANSCRIPTION_LANGUAGE"
	EnvEmbeddingURL          = "HEIMDEX_EMBEDDING_URL"
	EnvEmbeddingTimeout      = "HEIMDEX_EMBEDDING_TIMEOUT_S"
	EnvEmbeddingBatchSize    = "HEIMDEX_EMBEDDING_BATCH_SIZE"
	EnvEmbeddingConcurrency  = "HEIMDEX_EMBEDDING_CONCURRENCY"
	EnvEmbeddingRPS          = "HEIMDEX_EMBEDDING_RPS"
	EnvEmbeddingDimension    = "HEIMDEX_EMBEDDING_DIMENSION"
	EnvLLMBaseURL            = "HEIMDEX_LLM_BASE_URL"
	EnvLLMAPIKey             = "HEIMDEX_LLM_API_KEY"
	EnvLLMModel              = "HEIMDEX_LLM_MODEL"
	EnvLLMTimeout            = "HEIMDEX_LLM_TIMEOUT_S"
	EnvLLMTemperature        = "HEIMDEX_LLM_TEMPERATURE"
	EnvPromptCharBudget      = "HEIMDEX_PROMPT_CHAR_BUDGET"
	EnvFFmpegPath            = "HEIMDEX_FFMPEG_PATH"
	EnvFFprobePath           = "HEIMDEX_FFPROBE_PATH"
	EnvMediaTimeout          = "HEIMDEX_MEDIA_TIMEOUT_S"
	EnvFadeMillis            = "HEIMDEX_FADE_MS"

	// Database filename
	DBFilename = "insight.db"

	// Collaborator defaults
	DefaultTranscriptionURL     = "http://127.0.0.1:8001"
	DefaultTranscriptionTimeout = 3600 // seconds
	DefaultEmbeddingURL         = "http://127.0.0.1:8002"
	DefaultEmbeddingTimeout     = 300 // seconds
	DefaultEmbeddingBatchSize   = 32
	DefaultEmbeddingConcurrency = 4
	DefaultEmbeddingDimension   = 384
	DefaultLLMBaseURL           = "http://127.0.0.1:11434/v1"
	DefaultLLMModel             = "llama3.1:8b"
	DefaultLLMTimeout           = 600 // seconds
	DefaultLLMTemperature       = 0.2
	DefaultPromptCharBudget     = 12000
	DefaultFFmpegPath           = "ffmpeg"
	DefaultFFprobePath          = "ffprobe"
	DefaultMediaTimeout         = 3600 // seconds
	DefaultFadeMillis           = 300
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ScratchDir() string
	HighlightsDir() string
	TranscriptionURL() string
	TranscriptionTimeout() time.Duration
	TranscriptionLanguage() string
	EmbeddingURL() string
	EmbeddingTimeout() time.Duration
	EmbeddingBatchSize() int
	EmbeddingConcurrency() int
	EmbeddingRPS() float64
	EmbeddingDimension() int
	LLMBaseURL() string
	LLMAPIKey() string
	LLMModel() string
	LLMTimeout() time.Duration
	LLMTemperature() float64
	PromptCharBudget() int
	FFmpegPath() string
	FFprobePath() string
	MediaTimeout() time.Duration
	FadeDuration() time.Duration
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	transcriptionURL      string
	transcriptionTimeoutS int
	transcriptionLanguage string

	embeddingURL         string
	embeddingTimeoutS    int
	embeddingBatchSize   int
	embeddingConcurrency int
	embeddingRPS         float64
	embeddingDimension   int

	llmBaseURL     string
	llmAPIKey      string
	llmModel       string
	llmTimeoutS    int
	llmTemperature float64
	promptBudget   int

	ffmpegPath    string
	ffprobePath   string
	mediaTimeoutS int
	fadeMillis    int
}

// fileConfig mirrors the TOML layout. Zero values mean "not set".
type fileConfig struct {
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
	DataDir  string `toml:"data_dir"`

	Transcription struct {
		URL            string `toml:"url"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
		Language       string `toml:"language"`
	} `toml:"transcription"`

	Embedding struct {
		URL               string  `toml:"url"`
		TimeoutSeconds    int     `toml:"timeout_seconds"`
		BatchSize         int     `toml:"batch_size"`
		Concurrency       int     `toml:"concurrency"`
		RequestsPerSecond float64 `toml:"requests_per_second"`
		Dimension         int     `toml:"dimension"`
	} `toml:"embedding"`

	LLM struct {
		BaseURL          string   `toml:"base_url"`
		APIKey           string   `toml:"api_key"`
		Model            string   `toml:"model"`
		TimeoutSeconds   int      `toml:"timeout_seconds"`
		Temperature      *float64 `toml:"temperature"`
		PromptCharBudget int      `toml:"prompt_char_budget"`
	} `toml:"llm"`

	Media struct {
		FFmpegPath     string `toml:"ffmpeg_path"`
		FFprobePath    string `toml:"ffprobe_path"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
		FadeMillis     int    `toml:"fade_ms"`
	} `toml:"media"`
}

// New creates a new EnvConfig from defaults, the optional config file and
// environment variable overrides.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:                  DefaultPort,
		logLevel:              DefaultLogLevel,
		dataDir:               defaultDataDir(),
		transcriptionURL:      DefaultTranscriptionURL,
		transcriptionTimeoutS: DefaultTranscriptionTimeout,
		embeddingURL:          DefaultEmbeddingURL,
		embeddingTimeoutS:     DefaultEmbeddingTimeout,
		embeddingBatchSize:    DefaultEmbeddingBatchSize,
		embeddingConcurrency:  DefaultEmbeddingConcurrency,
		embeddingDimension:    DefaultEmbeddingDimension,
		llmBaseURL:            DefaultLLMBaseURL,
		llmModel:              DefaultLLMModel,
		llmTimeoutS:           DefaultLLMTimeout,
		llmTemperature:        DefaultLLMTemperature,
		promptBudget:          DefaultPromptCharBudget,
		ffmpegPath:            DefaultFFmpegPath,
		ffprobePath:           DefaultFFprobePath,
		mediaTimeoutS:         DefaultMediaTimeout,
		fadeMillis:            DefaultFadeMillis,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	setInt(&c.port, fc.Port)
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.dataDir, fc.DataDir)

	setString(&c.transcriptionURL, fc.Transcription.URL)
	setInt(&c.transcriptionTimeoutS, fc.Transcription.TimeoutSeconds)
	setString(&c.transcriptionLanguage, fc.Transcription.Language)

	setString(&c.embeddingURL, fc.Embedding.URL)
	setInt(&c.embeddingTimeoutS, fc.Embedding.TimeoutSeconds)
	setInt(&c.embeddingBatchSize, fc.Embedding.BatchSize)
	setInt(&c.embeddingConcurrency, fc.Embedding.Concurrency)
	setInt(&c.embeddingDimension, fc.Embedding.Dimension)
	if fc.Embedding.RequestsPerSecond > 0 {
		c.embeddingRPS = fc.Embedding.RequestsPerSecond
	}

	setString(&c.llmBaseURL, fc.LLM.BaseURL)
	setString(&c.llmAPIKey, fc.LLM.APIKey)
	setString(&c.llmModel, fc.LLM.Model)
	setInt(&c.llmTimeoutS, fc.LLM.TimeoutSeconds)
	setInt(&c.promptBudget, fc.LLM.PromptCharBudget)
	if fc.LLM.Temperature != nil {
		c.llmTemperature = *fc.LLM.Temperature
	}

	setString(&c.ffmpegPath, fc.Media.FFmpegPath)
	setString(&c.ffprobePath, fc.Media.FFprobePath)
	setInt(&c.mediaTimeoutS, fc.Media.TimeoutSeconds)
	setInt(&c.fadeMillis, fc.Media.FadeMillis)

	return nil
}

func (c *EnvConfig) loadEnv() error {
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvPort, &c.port},
		{EnvTranscriptionTimeout, &c.transcriptionTimeoutS},
		{EnvEmbeddingTimeout, &c.embeddingTimeoutS},
		{EnvEmbeddingBatchSize, &c.embeddingBatchSize},
		{EnvEmbeddingConcurrency, &c.embeddingConcurrency},
		{EnvEmbeddingDimension, &c.embeddingDimension},
		{EnvLLMTimeout, &c.llmTimeoutS},
		{EnvPromptCharBudget, &c.promptBudget},
		{EnvMediaTimeout, &c.mediaTimeoutS},
		{EnvFadeMillis, &c.fadeMillis},
	}
	for _, v := range ints {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", v.name, err)
		}
		*v.dst = n
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{EnvEmbeddingRPS, &c.embeddingRPS},
		{EnvLLMTemperature, &c.llmTemperature},
	}
	for _, v := range floats {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", v.name, err)
		}
		*v.dst = f
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvLogLevel, &c.logLevel},
		{EnvDataDir, &c.dataDir},
		{EnvTranscriptionURL, &c.transcriptionURL},
		{EnvTranscriptionLanguage, &c.transcriptionLanguage},
		{EnvEmbeddingURL, &c.embeddingURL},
		{EnvLLMBaseURL, &c.llmBaseURL},
		{EnvLLMAPIKey, &c.llmAPIKey},
		{EnvLLMModel, &c.llmModel},
		{EnvFFmpegPath, &c.ffmpegPath},
		{EnvFFprobePath, &c.ffprobePath},
	}
	for _, v := range strs {
		setString(v.dst, os.Getenv(v.name))
	}

	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: port must be between 1 and 65535", c.port)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"transcription timeout", c.transcriptionTimeoutS},
		{"embedding timeout", c.embeddingTimeoutS},
		{"embedding batch size", c.embeddingBatchSize},
		{"embedding concurrency", c.embeddingConcurrency},
		{"llm timeout", c.llmTimeoutS},
		{"prompt char budget", c.promptBudget},
		{"media timeout", c.mediaTimeoutS},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %d", p.name, p.value)
		}
	}

	if c.embeddingDimension < 0 {
		return fmt.Errorf("invalid embedding dimension: %d", c.embeddingDimension)
	}
	if c.embeddingRPS < 0 {
		return fmt.Errorf("invalid embedding rps: %v", c.embeddingRPS)
	}
	if c.fadeMillis < 0 {
		return fmt.Errorf("invalid fade duration: %dms", c.fadeMillis)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ScratchDir returns the root for per-request scratch directories
func (c *EnvConfig) ScratchDir() string {
	return filepath.Join(c.dataDir, "scratch")
}

// HighlightsDir returns the directory rendered highlight reels are written to
func (c *EnvConfig) HighlightsDir() string {
	return filepath.Join(c.dataDir, "highlights")
}

func (c *EnvConfig) TranscriptionURL() string {
	return c.transcriptionURL
}

func (c *EnvConfig) TranscriptionTimeout() time.Duration {
	return time.Duration(c.transcriptionTimeoutS) * time.Second
}

// TranscriptionLanguage returns the forced language code, empty for auto-detect
func (c *EnvConfig) TranscriptionLanguage() string {
	return c.transcriptionLanguage
}

func (c *EnvConfig) EmbeddingURL() string {
	return c.embeddingURL
}

func (c *EnvConfig) EmbeddingTimeout() time.Duration {
	return time.Duration(c.embeddingTimeoutS) * time.Second
}

func (c *EnvConfig) EmbeddingBatchSize() int {
	return c.embeddingBatchSize
}

func (c *EnvConfig) EmbeddingConcurrency() int {
	return c.embeddingConcurrency
}

// EmbeddingRPS returns the request rate limit, 0 for unlimited
func (c *EnvConfig) EmbeddingRPS() float64 {
	return c.embeddingRPS
}

// EmbeddingDimension returns the expected vector dimension, 0 to accept the first seen
func (c *EnvConfig) EmbeddingDimension() int {
	return c.embeddingDimension
}

func (c *EnvConfig) LLMBaseURL() string {
	return c.llmBaseURL
}

func (c *EnvConfig) LLMAPIKey() string {
	return c.llmAPIKey
}

func (c *EnvConfig) LLMModel() string {
	return c.llmModel
}

func (c *EnvConfig) LLMTimeout() time.Duration {
	return time.Duration(c.llmTimeoutS) * time.Second
}

func (c *EnvConfig) LLMTemperature() float64 {
	return c.llmTemperature
}

// PromptCharBudget caps the transcript excerpt embedded in the analysis prompt
func (c *EnvConfig) PromptCharBudget() int {
	return c.promptBudget
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) MediaTimeout() time.Duration {
	return time.Duration(c.mediaTimeoutS) * time.Second
}

// FadeDuration returns the fade applied at both ends of every highlight clip
func (c *EnvConfig) FadeDuration() time.Duration {
	return time.Duration(c.fadeMillis) * time.Millisecond
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
