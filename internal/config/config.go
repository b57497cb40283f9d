// Package config defines the configuration schema for the scriptvox server
// and provides loading, validation and a provider registry.
//
// Configuration is read from YAML. Values may reference environment variables
// as ${VAR}; a .env file loaded with [LoadEnv] is consulted first.
package config

import (
	"time"

	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/internal/classify"
)

// LogLevel controls the verbosity of the application logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used for output.
type LogFormat string

const (
	// LogText is the slog text handler.
	LogText LogFormat = "text"
	// LogJSON is the slog JSON handler.
	LogJSON LogFormat = "json"
	// LogPretty is a colourised handler for interactive terminals.
	LogPretty LogFormat = "pretty"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogText, LogJSON, LogPretty:
		return true
	}
	return false
}

// Store backends understood by the built-in registry.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Store      StoreConfig      `yaml:"store"`
	Audio      AudioConfig      `yaml:"audio"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address (e.g., ":3000").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// TLS enables HTTPS when non-nil.
	TLS *TLSConfig `yaml:"tls"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig holds TLS certificate and key file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the speech backends.
type ProvidersConfig struct {
	TTS ProviderEntry `yaml:"tts"`
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block for a provider.
// Name selects the registered implementation (e.g., "google", "vosk").
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single provider call. Zero uses the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific settings such as "language" or
	// "credentials_file".
	Options map[string]any `yaml:"options"`
}

// StoreConfig selects and configures the bot store.
type StoreConfig struct {
	// Backend is one of "memory", "postgres" or "redis". Default: "memory".
	Backend string `yaml:"backend"`

	PostgresDSN string `yaml:"postgres_dsn"`
	MaxConns    int32  `yaml:"max_conns"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Seed bots are created at startup when they do not already exist.
	Seed []SeedBot `yaml:"seed"`
}

// SeedBot is a bot declared in the config file.
type SeedBot struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Voice  string   `yaml:"voice"`
	Script []string `yaml:"script"`
}

// Bot converts s into a new active bot at the start of its script.
func (s SeedBot) Bot() *botstore.Bot {
	voice := s.Voice
	if voice == "" {
		voice = botstore.DefaultVoice
	}
	return &botstore.Bot{
		ID:       s.ID,
		Name:     s.Name,
		Voice:    voice,
		Script:   append([]string(nil), s.Script...),
		IsActive: true,
	}
}

// AudioConfig controls where synthesized audio lives and how it is streamed
// to the recognizer.
type AudioConfig struct {
	// SlotPath is the file overwritten with each synthesized utterance. Empty
	// keeps audio in memory.
	SlotPath string `yaml:"slot_path"`

	// SampleRate is requested from the TTS backend and announced to the
	// recognizer. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSize is the size of each binary frame sent to the recognizer.
	// Default: 8000.
	ChunkSize int `yaml:"chunk_size"`
}

// ClassifierConfig overrides the built-in keyword sets.
type ClassifierConfig struct {
	Keywords classify.Keywords `yaml:"keywords"`

	// Replace discards the defaults entirely instead of replacing only the
	// sets given in Keywords.
	Replace bool `yaml:"replace"`
}

// Build returns the classifier these settings describe.
func (c ClassifierConfig) Build() *classify.Classifier {
	if c.Replace {
		return classify.New(c.Keywords)
	}
	return classify.New(classify.DefaultKeywords().Merge(c.Keywords))
}

// Defaults used by [Config.ApplyDefaults].
const (
	DefaultListenAddr      = ":3000"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultSampleRate      = 16000
	DefaultChunkSize       = 8000
)

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = LogText
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.ChunkSize <= 0 {
		c.Audio.ChunkSize = DefaultChunkSize
	}
}

// ResilienceConfig tunes the provider circuit breakers.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
