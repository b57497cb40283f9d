// Package google provides a Google Cloud Text-to-Speech provider built on the
// REST client in google.golang.org/api/texttospeech/v1. It implements the
// tts.Provider interface.
//
// Voices are selected by their full Google name (e.g., "en-US-Wavenet-F") and
// audio is requested as LINEAR16, which Google delivers inside a WAV container.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
	audioEncoding     = "LINEAR16"
)

// Option is a functional option for configuring a Google Provider.
type Option func(*Provider)

// WithSampleRate sets the sample rate requested from the service. Defaults to
// 16000 Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithLanguage sets the language used when a voice name carries none.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithClientOptions appends google.golang.org/api client options such as
// option.WithCredentialsFile, option.WithAPIKey or option.WithEndpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// Provider implements tts.Provider backed by Google Cloud Text-to-Speech.
// It is safe for concurrent use.
type Provider struct {
	svc        *texttospeech.Service
	language   string
	sampleRate int
	clientOpts []option.ClientOption
}

// New creates a Provider. Credentials are resolved by the Google client
// library (application default credentials unless overridden via
// [WithClientOptions]).
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	if p.sampleRate <= 0 {
		return nil, errors.New("google: sample rate must be positive")
	}
	svc, err := texttospeech.NewService(ctx, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create texttospeech service: %w", err)
	}
	p.svc = svc
	return p, nil
}

// Synthesize renders text with voice and returns the WAV payload.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	lang := voice.Language
	if lang == "" {
		lang = p.language
	}
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         voice.ID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   audioEncoding,
			SampleRateHertz: int64(p.sampleRate),
		},
	}

	resp, err := p.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && (gerr.Code == http.StatusBadRequest || gerr.Code == http.StatusNotFound) {
			return nil, fmt.Errorf("google: synthesize with voice %q: %w: %s", voice.ID, tts.ErrVoiceRejected, gerr.Message)
		}
		return nil, fmt.Errorf("google: synthesize: %w", err)
	}

	wav, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google: decode audio content: %w", err)
	}
	if _, err := audio.ParseWAV(wav); err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	return wav, nil
}

// ListVoices returns every voice the service offers, sorted by name.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	resp, err := p.svc.Voices.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google: list voices: %w", err)
	}

	profiles := make([]tts.VoiceProfile, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		if v == nil {
			continue
		}
		vp := tts.VoiceProfile{
			ID:       v.Name,
			Name:     v.Name,
			Provider: "google",
			Metadata: map[string]string{
				"gender":      v.SsmlGender,
				"sample_rate": fmt.Sprint(v.NaturalSampleRateHertz),
			},
		}
		if len(v.LanguageCodes) > 0 {
			vp.Language = v.LanguageCodes[0]
		}
		profiles = append(profiles, vp)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}
