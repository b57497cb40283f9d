package tts

import "strings"

// VoiceProfile describes a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g., "en-US-Wavenet-F").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 language tag of the voice, if known.
	Language string

	// Metadata holds provider-specific voice attributes (gender, sample rate, etc.).
	Metadata map[string]string
}

// VoiceFromSelector turns a bot's voice selector into a profile. Selectors
// shaped like Google voice names ("en-US-Wavenet-F") carry their language in
// the first two dash-separated parts.
func VoiceFromSelector(selector string) VoiceProfile {
	v := VoiceProfile{ID: selector, Name: selector}
	parts := strings.SplitN(selector, "-", 3)
	if len(parts) == 3 && len(parts[0]) == 2 && len(parts[1]) == 2 {
		v.Language = parts[0] + "-" + parts[1]
	}
	return v
}
