package tts

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/types"
)

const synthesizeOp = "tts.synthesize"

// Synthesizer renders a script line through a [Provider] and stores the
// result in a single-slot [audio.Slot]. Each call overwrites the previous
// asset; callers that run requests concurrently must serialise around the
// slot.
type Synthesizer struct {
	provider   Provider
	slot       audio.Slot
	sampleRate int
}

// SynthesizerOption configures a [Synthesizer].
type SynthesizerOption func(*Synthesizer)

// WithSampleRate normalises every utterance to mono PCM at rate before it is
// stored. Recognisers typically expect 16000. Zero keeps the provider's rate.
func WithSampleRate(rate int) SynthesizerOption {
	return func(s *Synthesizer) { s.sampleRate = rate }
}

// NewSynthesizer returns a Synthesizer over provider and slot.
func NewSynthesizer(provider Provider, slot audio.Slot, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{provider: provider, slot: slot}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize renders text with the voice named by voiceSelector and returns a
// handle to the stored asset. Every failure is a [types.KindSynthesis] error.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceSelector string) (types.AudioAsset, error) {
	if strings.TrimSpace(text) == "" {
		return types.AudioAsset{}, types.NewError(types.KindSynthesis, synthesizeOp, "text must not be empty", nil)
	}

	wav, err := s.provider.Synthesize(ctx, text, VoiceFromSelector(voiceSelector))
	if err != nil {
		detail := "voice service failed"
		if errors.Is(err, ErrVoiceRejected) {
			detail = "voice " + voiceSelector + " rejected"
		}
		return types.AudioAsset{}, types.NewError(types.KindSynthesis, synthesizeOp, detail, err)
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		return types.AudioAsset{}, types.NewError(types.KindSynthesis, synthesizeOp, "provider returned invalid audio", err)
	}
	format := types.AudioFormat{Encoding: "LINEAR16", SampleRate: info.SampleRate, Channels: info.Channels}

	if s.sampleRate > 0 && (info.SampleRate != s.sampleRate || info.Channels != 1) {
		pcm, f := audio.Normalize(wav[info.DataOffset:], format, s.sampleRate)
		wav = audio.EncodeWAV(pcm, f.SampleRate, f.Channels)
		format = f
		info.DataOffset = 44
	}

	asset, err := s.slot.Store(ctx, wav, format, info.DataOffset)
	if err != nil {
		return types.AudioAsset{}, types.NewError(types.KindSynthesis, synthesizeOp, "store audio asset", err)
	}
	return asset, nil
}
