package tts_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/scriptvox/pkg/audio"
	"github.com/MrWong99/scriptvox/pkg/provider/tts"
	"github.com/MrWong99/scriptvox/pkg/provider/tts/mock"
	"github.com/MrWong99/scriptvox/pkg/types"
)

func TestSynthesizer_StoresAsset(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	p := &mock.Provider{SynthesizeResult: mock.WAV(16000, 1, pcm)}
	slot := &audio.MemorySlot{}
	s := tts.NewSynthesizer(p, slot)

	asset, err := s.Synthesize(context.Background(), "Hello", "en-US-Wavenet-F")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if asset.Format.SampleRate != 16000 || asset.Format.Channels != 1 {
		t.Errorf("format = %+v", asset.Format)
	}
	if asset.DataOffset != 44 {
		t.Errorf("DataOffset = %d, want 44", asset.DataOffset)
	}

	if len(p.SynthesizeCalls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(p.SynthesizeCalls))
	}
	call := p.SynthesizeCalls[0]
	if call.Text != "Hello" || call.Voice.ID != "en-US-Wavenet-F" || call.Voice.Language != "en-US" {
		t.Errorf("call = %+v", call)
	}

	rc, err := slot.Open(asset)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	stored, _ := io.ReadAll(rc)
	if string(stored[asset.DataOffset:]) != string(pcm) {
		t.Errorf("stored payload = %v, want %v", stored[asset.DataOffset:], pcm)
	}
}

func TestSynthesizer_Normalizes(t *testing.T) {
	// 4 stereo frames at 32 kHz become 2 mono frames at 16 kHz.
	stereo := make([]byte, 16)
	for i := range 8 {
		binary.LittleEndian.PutUint16(stereo[i*2:], uint16(100))
	}
	p := &mock.Provider{SynthesizeResult: mock.WAV(32000, 2, stereo)}
	s := tts.NewSynthesizer(p, &audio.MemorySlot{}, tts.WithSampleRate(16000))

	asset, err := s.Synthesize(context.Background(), "Hello", "voice")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := types.AudioFormat{Encoding: "LINEAR16", SampleRate: 16000, Channels: 1}
	if asset.Format != want {
		t.Errorf("format = %+v, want %+v", asset.Format, want)
	}
	if asset.Size != 44+4 {
		t.Errorf("size = %d, want %d", asset.Size, 48)
	}
}

func TestSynthesizer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		provider *mock.Provider
	}{
		{name: "empty text", text: "  ", provider: &mock.Provider{}},
		{name: "provider failure", text: "hi", provider: &mock.Provider{SynthesizeErr: errors.New("unreachable")}},
		{name: "voice rejected", text: "hi", provider: &mock.Provider{SynthesizeErr: tts.ErrVoiceRejected}},
		{name: "invalid audio", text: "hi", provider: &mock.Provider{SynthesizeResult: []byte("junk")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tts.NewSynthesizer(tt.provider, &audio.MemorySlot{})
			_, err := s.Synthesize(context.Background(), tt.text, "voice")
			if !errors.Is(err, types.ErrSynthesis) {
				t.Fatalf("err = %v, want synthesis error", err)
			}
		})
	}
}

func TestSynthesizer_EmptyTextSkipsProvider(t *testing.T) {
	p := &mock.Provider{}
	s := tts.NewSynthesizer(p, &audio.MemorySlot{})
	_, _ = s.Synthesize(context.Background(), "", "voice")
	if p.CallCount() != 0 {
		t.Errorf("provider calls = %d, want 0", p.CallCount())
	}
}

func TestVoiceFromSelector(t *testing.T) {
	tests := []struct {
		selector string
		wantLang string
	}{
		{"en-US-Wavenet-F", "en-US"},
		{"de-DE-Neural2-B", "de-DE"},
		{"p225", ""},
		{"alice-smith", ""},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			v := tts.VoiceFromSelector(tt.selector)
			if v.ID != tt.selector {
				t.Errorf("ID = %q, want %q", v.ID, tt.selector)
			}
			if v.Language != tt.wantLang {
				t.Errorf("Language = %q, want %q", v.Language, tt.wantLang)
			}
		})
	}
}
