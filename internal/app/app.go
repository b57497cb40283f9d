// Package app wires all scriptvox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// Providers come from main.go via the config registry. For testing, pass
// mocks in [Providers] and use [App.Handler] with httptest.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/scriptvox/internal/api"
	"github.com/MrWong99/scriptvox/internal/botstore"
	"github.com/MrWong99/scriptvox/internal/config"
	"github.com/MrWong99/scriptvox/internal/health"
	"github.com/MrWong99/scriptvox/internal/observe"
	"github.com/MrWong99/scriptvox/internal/resilience"
	"github.com/MrWong99/scriptvox/internal/session"
	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/stt"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
	"github.com/MrWong99/scriptvox/pkg/types"
)

// Providers holds the backends the engine runs on. All fields are required.
// Slot must be the same slot the STT provider was built to read from.
type Providers struct {
	TTS   tts.Provider
	STT   stt.Provider
	Store botstore.Store
	Slot  audio.Slot
}

// App owns all subsystem lifetimes.
type App struct {
	cfg         *config.Config
	providers   *Providers
	metrics     *observe.Metrics
	metricsHTTP http.Handler

	engine     *session.Engine
	classifier *liveClassifier
	ttsBackend *resilience.TTSProvider
	recognizer *resilience.Recognizer
	handler    http.Handler
	server     *http.Server

	configPath string
	levelVar   *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHTTP = h }
}

// WithConfigWatch enables live reload of path during Run. Log level changes
// are applied to level; keyword changes replace the classifier.
func WithConfigWatch(path string, level *slog.LevelVar) Option {
	return func(a *App) {
		a.configPath = path
		a.levelVar = level
	}
}

// New creates an App by wiring all subsystems together. Seed bots from the
// config are created in the store when absent.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHTTP == nil {
		a.metricsHTTP = promhttp.Handler()
	}

	// ── 1. Store closer + seed bots ──────────────────────────────────────
	a.closers = append(a.closers, storeCloser(providers.Store))
	if err := a.seed(ctx); err != nil {
		return nil, fmt.Errorf("app: seed bots: %w", err)
	}

	// ── 2. Circuit breakers ──────────────────────────────────────────────
	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
	}
	a.ttsBackend = resilience.NewTTSProvider(cfg.Providers.TTS.Name, providers.TTS, breaker, a.metrics)
	a.recognizer = resilience.NewRecognizer(cfg.Providers.STT.Name, providers.STT, breaker, a.metrics)

	// ── 3. Engine ────────────────────────────────────────────────────────
	synth := tts.NewSynthesizer(a.ttsBackend, providers.Slot, tts.WithSampleRate(cfg.Audio.SampleRate))
	a.classifier = newLiveClassifier(cfg.Classifier.Build())
	eng, err := session.New(providers.Store, synth, a.recognizer, a.classifier, session.WithMetrics(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.engine = eng

	// ── 4. HTTP ──────────────────────────────────────────────────────────
	a.handler = a.routes()
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	return a, nil
}

func (p *Providers) validate() error {
	if p == nil {
		return errors.New("providers are required")
	}
	var errs []error
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.Store == nil {
		errs = append(errs, errors.New("bot store is required"))
	}
	if p.Slot == nil {
		errs = append(errs, errors.New("audio slot is required"))
	}
	return errors.Join(errs...)
}

// seed creates every configured seed bot that does not exist yet.
func (a *App) seed(ctx context.Context) error {
	for _, s := range a.cfg.Store.Seed {
		err := a.providers.Store.Create(ctx, s.Bot())
		switch {
		case errors.Is(err, types.ErrConflict):
			slog.Debug("seed bot already exists", "bot_id", s.ID)
		case err != nil:
			return fmt.Errorf("create %q: %w", s.ID, err)
		default:
			slog.Info("seeded bot", "bot_id", s.ID, "lines", len(s.Script))
		}
	}
	return nil
}

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(a.metrics))

	a.health().Register(r)
	r.Handle("/metrics", a.metricsHTTP)
	api.New(a.engine).Register(r)
	return r
}

func (a *App) health() *health.Handler {
	checkers := []health.Checker{
		health.Ping("store", a.providers.Store),
		breakerCheck(a.ttsBackend.Breaker()),
		breakerCheck(a.recognizer.Breaker()),
	}
	if p, ok := a.providers.TTS.(health.Pinger); ok {
		checkers = append(checkers, health.Ping("synthesizer", p))
	}
	if p, ok := a.providers.STT.(health.Pinger); ok {
		checkers = append(checkers, health.Ping("recognizer", p))
	}
	return health.New(checkers)
}

// breakerCheck fails while cb is open.
func breakerCheck(cb *resilience.CircuitBreaker) health.Checker {
	return health.Checker{
		Name: "breaker:" + cb.Name(),
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		},
	}
}

// Engine returns the session engine.
func (a *App) Engine() *session.Engine { return a.engine }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and blocks until ctx is
// cancelled or the server fails. On cancellation it returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			slog.Warn("config watch disabled", "path", a.configPath, "err", err)
		} else {
			g.Go(func() error {
				w.Run(gctx)
				return nil
			})
		}
	}
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// applyConfig is the watcher callback.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.KeywordsChanged {
		a.classifier.Store(new.Classifier.Build())
		slog.Info("classifier keywords reloaded")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// storeCloser adapts the Close method of whichever store backend is in use.
func storeCloser(s botstore.Store) func() error {
	switch c := s.(type) {
	case interface{ Close() error }:
		return c.Close
	case interface{ Close() }:
		return func() error { c.Close(); return nil }
	}
	return func() error { return nil }
}
