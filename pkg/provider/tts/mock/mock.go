// Package mock provides a test double for the tts.Provider interface.
//
// The zero Provider answers every Synthesize with a short silent clip:
//
//	p := &mock.Provider{}
//	wav, _ := p.Synthesize(ctx, "Hello", voice)
//	p.Texts() // ["Hello"]
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall is one recorded Synthesize invocation.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice tts.VoiceProfile
}

// Provider is a scripted tts.Provider. Configure the exported fields before
// the first call; the recorded calls are safe to read once calls have
// returned.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is copied into every successful answer. Nil means
	// 10 ms of 16 kHz mono silence.
	SynthesizeResult []byte
	SynthesizeErr    error

	// OnSynthesize, if set, runs before each call with no lock held.
	OnSynthesize func(ctx context.Context, text string)

	ListVoicesResult []tts.VoiceProfile
	ListVoicesErr    error

	// PingErr is returned by Ping.
	PingErr error

	SynthesizeCalls []SynthesizeCall
	listCalls       int
}

// WAV wraps pcm in a RIFF/WAVE container.
func WAV(sampleRate, channels int, pcm []byte) []byte {
	return audio.EncodeWAV(pcm, sampleRate, channels)
}

func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if p.OnSynthesize != nil {
		p.OnSynthesize(ctx, text)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	switch {
	case p.SynthesizeErr != nil:
		return nil, p.SynthesizeErr
	case p.SynthesizeResult == nil:
		return WAV(16000, 1, make([]byte, 320)), nil
	}
	return slices.Clone(p.SynthesizeResult), nil
}

func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	return slices.Clone(p.ListVoicesResult), p.ListVoicesErr
}

// Ping returns PingErr.
func (p *Provider) Ping(context.Context) error { return p.PingErr }

// CallCount is the number of Synthesize calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// ListCount is the number of ListVoices calls so far.
func (p *Provider) ListCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

// Texts returns the text of every Synthesize call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// Reset forgets all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.listCalls = 0
}
