package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/stt"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods for a name no
// factory was registered under.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// TTSFactory builds a TTS provider from its config entry.
type TTSFactory func(ctx context.Context, entry ProviderEntry) (tts.Provider, error)

// STTFactory builds an STT provider that reads audio through opener.
type STTFactory func(entry ProviderEntry, opener audio.Opener) (stt.Provider, error)

// StoreFactory builds a bot store from the store section.
type StoreFactory func(ctx context.Context, cfg StoreConfig) (botstore.Store, error)

// factories is one kind's name → factory table.
type factories[F any] struct {
	kind   string
	byName map[string]F
}

func newFactories[F any](kind string) factories[F] {
	return factories[F]{kind: kind, byName: map[string]F{}}
}

func (f factories[F]) find(name string) (F, error) {
	factory, ok := f.byName[name]
	if !ok {
		return factory, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return factory, nil
}

func (f factories[F]) names() []string {
	if len(f.byName) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(f.byName))
}

// Registry maps provider names to constructors. Registering a name again
// replaces the earlier factory. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tts   factories[TTSFactory]
	stt   factories[STTFactory]
	store factories[StoreFactory]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tts:   newFactories[TTSFactory]("tts"),
		stt:   newFactories[STTFactory]("stt"),
		store: newFactories[StoreFactory]("store"),
	}
}

func (r *Registry) RegisterTTS(name string, factory TTSFactory) {
	r.mu.Lock()
	r.tts.byName[name] = factory
	r.mu.Unlock()
}

func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	r.stt.byName[name] = factory
	r.mu.Unlock()
}

// RegisterStore registers a factory under a [StoreConfig.Backend] value.
func (r *Registry) RegisterStore(backend string, factory StoreFactory) {
	r.mu.Lock()
	r.store.byName[backend] = factory
	r.mu.Unlock()
}

// CreateTTS runs the factory registered under entry.Name.
func (r *Registry) CreateTTS(ctx context.Context, entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, err := r.tts.find(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(ctx, entry)
}

// CreateSTT runs the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry, opener audio.Opener) (stt.Provider, error) {
	r.mu.RLock()
	factory, err := r.stt.find(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(entry, opener)
}

// CreateStore runs the factory registered under cfg.Backend.
func (r *Registry) CreateStore(ctx context.Context, cfg StoreConfig) (botstore.Store, error) {
	r.mu.RLock()
	factory, err := r.store.find(cfg.Backend)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return factory(ctx, cfg)
}

// Names returns the sorted names registered for kind ("tts", "stt" or
// "store"), or nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.tts.kind:
		return r.tts.names()
	case r.stt.kind:
		return r.stt.names()
	case r.store.kind:
		return r.store.names()
	}
	return nil
}
