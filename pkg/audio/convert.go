package audio

import "github.com/MrWong99/scriptvox/pkg/types"

// Normalize converts 16-bit little-endian PCM in format from into mono PCM at
// rate. A rate of 0 keeps the source rate. The returned format describes the
// converted payload. Formats with more than two channels are returned
// unchanged because there is no unambiguous downmix for them.
func Normalize(pcm []byte, from types.AudioFormat, rate int) ([]byte, types.AudioFormat) {
	out := from
	if from.Channels == 2 {
		pcm = StereoToMono(pcm)
		out.Channels = 1
	}
	if out.Channels != 1 {
		return pcm, from
	}
	if rate > 0 && from.SampleRate > 0 && from.SampleRate != rate {
		pcm = ResampleMono16(pcm, from.SampleRate, rate)
		out.SampleRate = rate
	}
	return pcm, out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := min(max((l+r)/2, -32768), 32767)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	sample := func(i int) int16 { return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8 }

	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
