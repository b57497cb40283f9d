// Package audio holds the audio plumbing between the synthesis and recognition
// stages: the single-slot asset store, WAV framing, PCM conversion, and the
// ordered chunk reader that feeds the recognition stream.
//
// A [Slot] holds exactly one asset at a time. Every Store overwrites the
// previous asset and bumps its generation; readers that present a stale
// handle get [ErrAssetReplaced]. The slot is the only audio resource shared
// between requests, so callers that need true concurrency must serialise
// synthesis and recognition around it.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// ErrAssetReplaced is returned by Open when the slot has been overwritten
// since the asset handle was issued.
var ErrAssetReplaced = errors.New("audio: asset was replaced by a newer synthesis")

// ErrEmptySlot is returned by Open when nothing has been stored yet.
var ErrEmptySlot = errors.New("audio: slot is empty")

// Opener gives read access to a stored asset.
type Opener interface {
	Open(asset types.AudioAsset) (io.ReadCloser, error)
}

// Slot is a single-slot audio store.
type Slot interface {
	Opener

	// Store replaces the slot contents with data and returns a handle to it.
	// dataOffset is the size of any container header in data.
	Store(ctx context.Context, data []byte, format types.AudioFormat, dataOffset int) (types.AudioAsset, error)
}

// ---- FileSlot ----

// FileSlot keeps the asset in one file at a well-known path. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// reader never observes a half-written asset.
type FileSlot struct {
	path string

	mu         sync.Mutex
	generation uint64
}

var _ Slot = (*FileSlot)(nil)

// NewFileSlot returns a FileSlot writing to path. The parent directory is
// created if it does not exist.
func NewFileSlot(path string) (*FileSlot, error) {
	if path == "" {
		return nil, errors.New("audio: slot path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audio: create slot dir: %w", err)
	}
	return &FileSlot{path: path}, nil
}

// Path returns the file the slot writes to.
func (s *FileSlot) Path() string { return s.path }

// Store writes data to the slot file, replacing the previous asset.
func (s *FileSlot) Store(ctx context.Context, data []byte, format types.AudioFormat, dataOffset int) (types.AudioAsset, error) {
	if err := ctx.Err(); err != nil {
		return types.AudioAsset{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".slot-*")
	if err != nil {
		return types.AudioAsset{}, fmt.Errorf("audio: create temp asset: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return types.AudioAsset{}, fmt.Errorf("audio: write temp asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return types.AudioAsset{}, fmt.Errorf("audio: close temp asset: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return types.AudioAsset{}, fmt.Errorf("audio: replace asset: %w", err)
	}
	s.generation++
	return types.AudioAsset{
		Location:   s.path,
		Format:     format,
		DataOffset: dataOffset,
		Size:       len(data),
		Generation: s.generation,
	}, nil
}

// Open returns a reader over the asset file.
func (s *FileSlot) Open(asset types.AudioAsset) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == 0 {
		return nil, ErrEmptySlot
	}
	if asset.Location != s.path || asset.Generation != s.generation {
		return nil, ErrAssetReplaced
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("audio: open asset: %w", err)
	}
	return f, nil
}

// ---- MemorySlot ----

// memoryLocation is the Location reported for assets held by a MemorySlot.
const memoryLocation = "mem://slot"

// MemorySlot keeps the asset in memory. Useful for tests and deployments that
// do not need the asset on disk.
type MemorySlot struct {
	mu         sync.RWMutex
	data       []byte
	generation uint64
}

var _ Slot = (*MemorySlot)(nil)

// Store replaces the in-memory asset with a copy of data.
func (s *MemorySlot) Store(ctx context.Context, data []byte, format types.AudioFormat, dataOffset int) (types.AudioAsset, error) {
	if err := ctx.Err(); err != nil {
		return types.AudioAsset{}, err
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = cp
	s.generation++
	return types.AudioAsset{
		Location:   memoryLocation,
		Format:     format,
		DataOffset: dataOffset,
		Size:       len(cp),
		Generation: s.generation,
	}, nil
}

// Open returns a reader over the in-memory asset.
func (s *MemorySlot) Open(asset types.AudioAsset) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.generation == 0 {
		return nil, ErrEmptySlot
	}
	if asset.Location != memoryLocation || asset.Generation != s.generation {
		return nil, ErrAssetReplaced
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}
