package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":   {"google", "coqui"},
	"stt":   {"vosk"},
	"store": {StoreMemory, StorePostgres, StoreRedis},
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments ".env" in the working directory is
// tried.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, pretty", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	if cfg.Providers.TTS.Timeout < 0 {
		errs = append(errs, errors.New("providers.tts.timeout must not be negative"))
	}
	if cfg.Providers.STT.Timeout < 0 {
		errs = append(errs, errors.New("providers.stt.timeout must not be negative"))
	}
	if cfg.Providers.STT.Name == "vosk" && cfg.Providers.STT.BaseURL == "" {
		errs = append(errs, errors.New("providers.stt.base_url is required for vosk"))
	}

	// Store
	validateProviderName("store", cfg.Store.Backend)
	switch cfg.Store.Backend {
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required when backend is postgres"))
		}
	case StoreRedis:
		if cfg.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required when backend is redis"))
		}
	case StoreMemory:
		if len(cfg.Store.Seed) == 0 {
			slog.Warn("store.backend is memory and no seed bots are configured; bots must be created over HTTP and are lost on restart")
		}
	}
	if cfg.Store.MaxConns < 0 {
		errs = append(errs, errors.New("store.max_conns must not be negative"))
	}

	seen := make(map[string]int, len(cfg.Store.Seed))
	for i, seed := range cfg.Store.Seed {
		prefix := fmt.Sprintf("store.seed[%d]", i)
		if prev, ok := seen[seed.ID]; ok && seed.ID != "" {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of store.seed[%d]", prefix, seed.ID, prev))
		}
		seen[seed.ID] = i
		if err := seed.Bot().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be positive", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.SlotPath == "" {
		slog.Warn("audio.slot_path is empty; synthesized audio is kept in memory")
	}

	// Classifier
	if cfg.Classifier.Replace {
		kw := cfg.Classifier.Keywords
		if len(kw.Affirmative) == 0 || len(kw.Negative) == 0 {
			slog.Warn("classifier.replace is set with an empty affirmative or negative set; those replies will never match")
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, errors.New("resilience.max_failures must not be negative"))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience.reset_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
