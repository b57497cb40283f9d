// Package types defines the shared types used across all scriptvox packages.
//
// These types form the lingua franca between the speech providers, the bot
// store, and the session engine. Each package defines its own domain types,
// but values that cross package boundaries live here to avoid circular imports.
package types

// AudioFormat describes the PCM layout of an audio asset.
type AudioFormat struct {
	// Encoding names the container/codec, e.g. "LINEAR16" or "WAV".
	Encoding string

	// SampleRate in Hz (e.g., 16000 for telephony-grade STT input).
	SampleRate int

	// Channels: 1 for mono.
	Channels int
}

// AudioAsset is a handle to a synthesised utterance held in an audio slot.
// The bytes themselves live in the slot; the handle only tells a reader where
// to find them and how they are laid out.
type AudioAsset struct {
	// Location identifies the slot holding the audio (a file path or a
	// "mem://" URI for in-memory slots).
	Location string

	// Format is the PCM layout of the payload.
	Format AudioFormat

	// DataOffset is the number of leading header bytes (e.g., a RIFF/WAVE
	// header) before the first PCM sample. Zero for headerless PCM.
	DataOffset int

	// Size is the total asset size in bytes, including any header.
	Size int

	// Generation increments every time the slot is overwritten. A reader
	// holding a stale generation is looking at a replaced asset.
	Generation uint64
}

// RecognitionResult is the terminal output of one recognition stream.
// It is produced once per stream lifecycle and never mutated afterwards.
type RecognitionResult struct {
	// Transcript is the recognised text.
	Transcript string

	// IsFinal reports whether the recogniser committed to this text.
	IsFinal bool
}

// Classification is the coarse intent label derived from a transcript.
type Classification string

const (
	Affirmative  Classification = "affirmative"
	Negative     Classification = "negative"
	Repeat       Classification = "repeat"
	Unrecognized Classification = "unrecognized"
)

// IsValid reports whether c is one of the four known classifications.
func (c Classification) IsValid() bool {
	switch c {
	case Affirmative, Negative, Repeat, Unrecognized:
		return true
	}
	return false
}
