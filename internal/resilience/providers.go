package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/scriptvox/internal/observe"
	"github.com/MrWong99/scriptvox/pkg/provider/stt"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
	"github.com/MrWong99/scriptvox/pkg/types"
)

// TTSProvider implements [tts.Provider] by forwarding to a backend through a
// [CircuitBreaker]. A rejected voice or a cancelled request does not count
// against the backend.
type TTSProvider struct {
	name    string
	backend tts.Provider
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

var _ tts.Provider = (*TTSProvider)(nil)

// NewTTSProvider wraps backend. cfg.Name, cfg.IsFailure and
// cfg.OnStateChange are overwritten.
// A nil m disables metrics.
func NewTTSProvider(name string, backend tts.Provider, cfg CircuitBreakerConfig, m *observe.Metrics) *TTSProvider {
	cfg.Name = "tts/" + name
	cfg.IsFailure = ttsFailure
	cfg.OnStateChange = recordTransitions(m)
	return &TTSProvider{name: name, backend: backend, breaker: NewCircuitBreaker(cfg), metrics: m}
}

func ttsFailure(err error) bool {
	return !errors.Is(err, tts.ErrVoiceRejected) && !errors.Is(err, context.Canceled)
}

// Breaker exposes the breaker for health reporting.
func (p *TTSProvider) Breaker() *CircuitBreaker { return p.breaker }

// Synthesize implements [tts.Provider].
func (p *TTSProvider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	var wav []byte
	err := p.breaker.Execute(func() error {
		var err error
		wav, err = p.backend.Synthesize(ctx, text, voice)
		return err
	})
	p.record(ctx, err)
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("resilience: tts %s: %w", p.name, err)
	}
	return wav, err
}

// ListVoices implements [tts.Provider].
func (p *TTSProvider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	var voices []tts.VoiceProfile
	err := p.breaker.Execute(func() error {
		var err error
		voices, err = p.backend.ListVoices(ctx)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("resilience: tts %s: %w", p.name, err)
	}
	return voices, err
}

func (p *TTSProvider) record(ctx context.Context, err error) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, ErrCircuitOpen):
		status = "rejected"
	case err != nil:
		status = "error"
		p.metrics.RecordProviderError(ctx, p.name, "tts")
	}
	p.metrics.RecordProviderRequest(ctx, p.name, "tts", status)
}

// Recognizer implements [stt.Provider] by forwarding to a backend through a
// [CircuitBreaker]. Connection, protocol and timeout failures count against
// the backend; a stale audio asset or a cancelled request does not. An open
// breaker surfaces as a Connection error so callers see the usual
// recognition-stage kind.
type Recognizer struct {
	name    string
	backend stt.Provider
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

var _ stt.Provider = (*Recognizer)(nil)

// NewRecognizer wraps backend. cfg.Name, cfg.IsFailure and
// cfg.OnStateChange are overwritten.
// A nil m disables metrics.
func NewRecognizer(name string, backend stt.Provider, cfg CircuitBreakerConfig, m *observe.Metrics) *Recognizer {
	cfg.Name = "stt/" + name
	cfg.IsFailure = sttFailure
	cfg.OnStateChange = recordTransitions(m)
	return &Recognizer{name: name, backend: backend, breaker: NewCircuitBreaker(cfg), metrics: m}
}

func sttFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch types.KindOf(err) {
	case types.KindConnection, types.KindProtocol, types.KindTimeout:
		return true
	}
	return false
}

// Breaker exposes the breaker for health reporting.
func (r *Recognizer) Breaker() *CircuitBreaker { return r.breaker }

// Recognize implements [stt.Provider].
func (r *Recognizer) Recognize(ctx context.Context, asset types.AudioAsset) (types.RecognitionResult, error) {
	var res types.RecognitionResult
	err := r.breaker.Execute(func() error {
		var err error
		res, err = r.backend.Recognize(ctx, asset)
		return err
	})
	r.record(ctx, err)
	if errors.Is(err, ErrCircuitOpen) {
		return types.RecognitionResult{}, types.NewError(types.KindConnection, "resilience.recognize",
			fmt.Sprintf("%s unavailable", r.name), err)
	}
	return res, err
}

func (r *Recognizer) record(ctx context.Context, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, ErrCircuitOpen):
		status = "rejected"
	case err != nil:
		status = "error"
		r.metrics.RecordProviderError(ctx, r.name, "stt")
	}
	r.metrics.RecordProviderRequest(ctx, r.name, "stt", status)
}

func recordTransitions(m *observe.Metrics) func(string, State, State) {
	if m == nil {
		return nil
	}
	return func(name string, _, to State) {
		m.RecordBreakerTransition(context.Background(), name, to.String())
	}
}
