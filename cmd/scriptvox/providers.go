package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/MrWong99/scriptvox/internal/app"
	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/internal/config"
	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/stt"
	"github.com/MrWong99/scriptvox/pkg/provider/stt/vosk"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
	"github.com/MrWong99/scriptvox/pkg/provider/tts/coqui"
	"github.com/MrWong99/scriptvox/pkg/provider/tts/google"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in factories into reg. Audio
// settings shared by synthesis and recognition come from ac.
func registerBuiltinProviders(reg *config.Registry, ac config.AudioConfig) {
	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("google", func(ctx context.Context, entry config.ProviderEntry) (tts.Provider, error) {
		opts := []google.Option{google.WithSampleRate(ac.SampleRate)}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, google.WithLanguage(lang))
		}
		var clientOpts []option.ClientOption
		if creds := optString(entry.Options, "credentials_file"); creds != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
		}
		if entry.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithEndpoint(entry.BaseURL))
		}
		if len(clientOpts) > 0 {
			opts = append(opts, google.WithClientOptions(clientOpts...))
		}
		return google.New(ctx, opts...)
	})

	reg.RegisterTTS("coqui", func(_ context.Context, entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if entry.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(entry.Timeout))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("vosk", func(entry config.ProviderEntry, opener audio.Opener) (stt.Provider, error) {
		opts := []vosk.Option{
			vosk.WithSampleRate(ac.SampleRate),
			vosk.WithChunkSize(ac.ChunkSize),
		}
		if entry.Timeout > 0 {
			opts = append(opts, vosk.WithTimeout(entry.Timeout))
		}
		if v, ok := entry.Options["strip_header"].(bool); ok {
			opts = append(opts, vosk.WithStripHeader(v))
		}
		return vosk.New(entry.BaseURL, opener, opts...)
	})

	// ── Stores ────────────────────────────────────────────────────────────────

	reg.RegisterStore(config.StoreMemory, func(_ context.Context, _ config.StoreConfig) (botstore.Store, error) {
		return botstore.NewMemStore()
	})

	reg.RegisterStore(config.StorePostgres, func(ctx context.Context, sc config.StoreConfig) (botstore.Store, error) {
		s, err := botstore.OpenPostgres(ctx, sc.PostgresDSN, sc.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	})

	reg.RegisterStore(config.StoreRedis, func(ctx context.Context, sc config.StoreConfig) (botstore.Store, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		s := botstore.NewRedisStore(client)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis %s: %w", sc.RedisAddr, err)
		}
		return s, nil
	})

	for _, kind := range []string{"tts", "stt", "store"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the slot, store, and both speech providers
// named in cfg using the registry.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	slot, err := newSlot(cfg.Audio.SlotPath)
	if err != nil {
		return nil, err
	}
	ps.Slot = slot

	ps.Store, err = reg.CreateStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Store.Backend, err)
	}
	slog.Info("store opened", "backend", cfg.Store.Backend)

	ps.TTS, err = reg.CreateTTS(ctx, cfg.Providers.TTS)
	if err != nil {
		closeStore(ps.Store)
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	ps.STT, err = reg.CreateSTT(cfg.Providers.STT, slot)
	if err != nil {
		closeStore(ps.Store)
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	return ps, nil
}

// newSlot returns a file slot at path, or an in-memory slot when path is empty.
func newSlot(path string) (audio.Slot, error) {
	if path == "" {
		return &audio.MemorySlot{}, nil
	}
	s, err := audio.NewFileSlot(path)
	if err != nil {
		return nil, fmt.Errorf("audio slot %q: %w", path, err)
	}
	return s, nil
}

// closeStore releases a store whose ownership never reached the app.
func closeStore(s botstore.Store) {
	var err error
	switch c := s.(type) {
	case interface{ Close() error }:
		err = c.Close()
	case interface{ Close() }:
		c.Close()
	}
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		slog.Warn("store close error", "err", err)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
