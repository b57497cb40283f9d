// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider streams one stored audio asset to a recognition service and
// settles with the first final transcript the service commits to. Errors are
// reported as [types.Error] values of kind Connection, Protocol, Timeout or
// Recognition so that callers can map them without knowing the backend.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Recognize streams asset to the backend and returns its first non-empty
	// final transcript. The returned error, if any, is a recognition-stage
	// [types.Error].
	Recognize(ctx context.Context, asset types.AudioAsset) (types.RecognitionResult, error)
}
