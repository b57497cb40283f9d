package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is 250 ms of 16 kHz mono LINEAR16 audio.
const DefaultChunkSize = 8000

// SendChunks reads r in order and calls send once per chunk of at most size
// bytes. Each chunk is a fresh slice, so send may retain it. The first skip
// bytes of r are discarded (used to drop container headers).
//
// SendChunks stops at the first send error, read error, or ctx cancellation.
// It returns the number of chunks delivered.
func SendChunks(ctx context.Context, r io.Reader, skip, size int, send func([]byte) error) (int, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
			return 0, fmt.Errorf("audio: skip header: %w", err)
		}
	}

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if sendErr := send(buf[:n]); sendErr != nil {
				return sent, sendErr
			}
			sent++
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return sent, nil
		default:
			return sent, fmt.Errorf("audio: read asset: %w", err)
		}
	}
}
