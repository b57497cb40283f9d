// Package coqui synthesizes speech on a self-hosted Coqui TTS server.
//
// Two server flavours are supported. [APIModeStandard] (default) targets the
// stock tts-server: GET /api/tts with query parameters, voices from
// GET /details. [APIModeXTTS] targets the XTTS v2 API server: POST
// /tts_to_audio/ with a JSON body, voices from GET /studio_speakers.
//
// Each call returns one complete WAV file, validated before it is handed back.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	providerName    = "coqui"
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language used when the voice carries none. Defaults
// to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds each HTTP call. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithAPIMode selects the server flavour. Defaults to [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.mode = mode }
}

// WithHTTPClient replaces the HTTP client. Its own Timeout, when set, wins
// over [WithTimeout].
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// dialect is the per-flavour part of the protocol.
type dialect interface {
	synthesisRequest(ctx context.Context, base, text, voice, lang string) (*http.Request, error)
	voicesPath() string
	voices(body io.Reader) ([]tts.VoiceProfile, error)
}

// Provider is safe for concurrent use.
type Provider struct {
	base     string
	language string
	timeout  time.Duration
	mode     APIMode
	client   *http.Client
	dialect  dialect
}

// New returns a Provider for the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		base:     strings.TrimRight(serverURL, "/"),
		language: defaultLanguage,
		timeout:  defaultTimeout,
		mode:     APIModeStandard,
	}
	for _, o := range opts {
		o(p)
	}
	switch p.mode {
	case APIModeStandard:
		p.dialect = standardAPI{}
	case APIModeXTTS:
		p.dialect = xttsAPI{}
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.mode)
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: p.timeout}
	} else if p.client.Timeout == 0 {
		c := *p.client
		c.Timeout = p.timeout
		p.client = &c
	}
	return p, nil
}

// Synthesize renders text and returns the WAV body. Client errors (4xx) wrap
// [tts.ErrVoiceRejected]; both flavours answer unknown speakers that way.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if voice.ID == "" && p.mode == APIModeXTTS {
		return nil, errors.New("coqui: xtts needs a speaker (voice.ID)")
	}
	req, err := p.dialect.synthesisRequest(ctx, p.base, text, voice.ID, p.languageFor(voice))
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	if _, err := audio.ParseWAV(body); err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	return body, nil
}

// ListVoices returns the server's speakers sorted by name.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+p.dialect.voicesPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	voices, err := p.dialect.voices(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coqui: decode %s: %w", p.dialect.voicesPath(), err)
	}
	return voices, nil
}

// Ping reports whether the server answers its voice catalogue endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.ListVoices(ctx)
	return err
}

func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("coqui: %s %s: status %d: %w", req.Method, req.URL.Path, resp.StatusCode, tts.ErrVoiceRejected)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("coqui: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s: %w", req.URL.Path, err)
	}
	return body, nil
}

// languageFor takes the primary subtag of the voice language ("en-US" → "en").
func (p *Provider) languageFor(voice tts.VoiceProfile) string {
	if voice.Language == "" {
		return p.language
	}
	lang, _, _ := strings.Cut(voice.Language, "-")
	return lang
}

// ---- standard tts-server ----

type standardAPI struct{}

func (standardAPI) synthesisRequest(ctx context.Context, base, text, voice, lang string) (*http.Request, error) {
	q := url.Values{"text": {text}}
	if voice != "" {
		q.Set("speaker_id", voice)
	}
	if lang != "" {
		q.Set("language_id", lang)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tts?"+q.Encode(), nil)
}

func (standardAPI) voicesPath() string { return "/details" }

func (standardAPI) voices(body io.Reader) ([]tts.VoiceProfile, error) {
	var d struct {
		ModelName string   `json:"model_name"`
		Language  string   `json:"language"`
		Speakers  []string `json:"speakers"`
	}
	if err := json.NewDecoder(body).Decode(&d); err != nil {
		return nil, err
	}
	if len(d.Speakers) == 0 {
		name := d.ModelName
		if name == "" {
			name = "default"
		}
		return []tts.VoiceProfile{{
			ID: name, Name: name, Provider: providerName, Language: d.Language,
			Metadata: map[string]string{"type": "single-speaker", "model_name": name},
		}}, nil
	}
	speakers := slices.Sorted(slices.Values(d.Speakers))
	out := make([]tts.VoiceProfile, 0, len(speakers))
	for _, s := range speakers {
		out = append(out, tts.VoiceProfile{
			ID: s, Name: s, Provider: providerName, Language: d.Language,
			Metadata: map[string]string{"type": "speaker", "model_name": d.ModelName},
		})
	}
	return out, nil
}

// ---- XTTS v2 API server ----

type xttsAPI struct{}

func (xttsAPI) synthesisRequest(ctx context.Context, base, text, voice, lang string) (*http.Request, error) {
	data, err := json.Marshal(struct {
		Text       string `json:"text"`
		SpeakerWav string `json:"speaker_wav"`
		Language   string `json:"language"`
	}{text, voice, lang})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/tts_to_audio/", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (xttsAPI) voicesPath() string { return "/studio_speakers" }

// voices reads the speaker names; the embeddings keyed under them are unused.
func (xttsAPI) voices(body io.Reader) ([]tts.VoiceProfile, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(raw))
	for n := range raw {
		names = append(names, n)
	}
	slices.Sort(names)
	out := make([]tts.VoiceProfile, 0, len(names))
	for _, n := range names {
		out = append(out, tts.VoiceProfile{
			ID: n, Name: n, Provider: providerName,
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return out, nil
}
