// Package tts defines the Provider interface for Text-to-Speech backends and
// the [Synthesizer] adapter that turns provider output into an audio asset.
//
// A TTS provider wraps a speech synthesis service (e.g., Google Cloud TTS or a
// local Coqui server) and returns one complete WAV utterance per call. Script
// lines are short, so batch synthesis is used instead of streaming.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrVoiceRejected is returned (wrapped) by providers when the backend refuses
// the requested voice.
var ErrVoiceRejected = errors.New("tts: voice rejected by provider")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns a RIFF/WAVE
	// encoded utterance (16-bit PCM).
	//
	// Returns an error if the backend is unreachable, rejects the voice, or
	// ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ListVoices returns the voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
