package audio

import (
	"encoding/binary"
	"errors"
)

// WAVInfo holds the format metadata extracted from a RIFF/WAVE header.
type WAVInfo struct {
	DataOffset    int // byte offset of the first PCM sample
	SampleRate    int // samples per second (e.g., 16000, 22050, 24000)
	Channels      int // 1 = mono, 2 = stereo
	BitsPerSample int
}

// ErrNotWAV is returned by [ParseWAV] when the input is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

// ParseWAV walks the RIFF chunks in wav and returns the data offset and audio
// format from the "fmt " sub-chunk. The fmt chunk size may vary between
// encoders, so the offset is located rather than assumed to be 44.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, ErrNotWAV
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch id {
		case "fmt ":
			if size >= 16 && offset+8+16 <= len(wav) {
				f := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return WAVInfo{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			info.DataOffset = offset + 8
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + size
		if size%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: WAV missing data chunk")
}

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte RIFF/WAVE
// header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const headerSize = 44
	le := binary.LittleEndian
	buf := make([]byte, headerSize+len(pcm))

	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], 1) // PCM
	le.PutUint16(buf[22:24], uint16(channels))
	le.PutUint32(buf[24:28], uint32(sampleRate))
	le.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	le.PutUint16(buf[32:34], uint16(channels*2))
	le.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[headerSize:], pcm)
	return buf
}
