// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to script transcripts or failures per call and to inspect which
// audio assets reached the recognizer.
//
// Example:
//
//	p := &mock.Provider{Transcripts: []string{"yeah sure"}}
//	res, _ := p.Recognize(ctx, asset)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/scriptvox/pkg/provider/stt"
	"github.com/MrWong99/scriptvox/pkg/types"
)

// RecognizeCall records a single invocation of Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Asset is the audio asset passed to Recognize.
	Asset types.AudioAsset
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcripts are returned in order, one per call. Once exhausted the last
	// entry is repeated. An empty list yields an empty transcript.
	Transcripts []string

	// Errs, when non-empty, is consulted per call before Transcripts: a non-nil
	// entry at the call's index is returned as the error.
	Errs []error

	// Err, if non-nil, is returned from every call.
	Err error

	// OnRecognize, if set, runs at the start of every call while no lock is
	// held. Tests use it to interleave other operations with a recognition.
	OnRecognize func(ctx context.Context, asset types.AudioAsset)

	// RecognizeCalls records every call to Recognize in order.
	RecognizeCalls []RecognizeCall
}

// Recognize records the call and returns the scripted outcome for it.
func (p *Provider) Recognize(ctx context.Context, asset types.AudioAsset) (types.RecognitionResult, error) {
	p.mu.Lock()
	hook := p.OnRecognize
	p.mu.Unlock()
	if hook != nil {
		hook(ctx, asset)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.RecognizeCalls)
	p.RecognizeCalls = append(p.RecognizeCalls, RecognizeCall{Ctx: ctx, Asset: asset})

	if p.Err != nil {
		return types.RecognitionResult{}, p.Err
	}
	if idx < len(p.Errs) && p.Errs[idx] != nil {
		return types.RecognitionResult{}, p.Errs[idx]
	}
	if len(p.Transcripts) == 0 {
		return types.RecognitionResult{IsFinal: true}, nil
	}
	text := p.Transcripts[min(idx, len(p.Transcripts)-1)]
	return types.RecognitionResult{Transcript: text, IsFinal: true}, nil
}

// CallCount returns the number of Recognize calls recorded so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RecognizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RecognizeCalls = nil
}

var _ stt.Provider = (*Provider)(nil)
