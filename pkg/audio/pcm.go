// Package audio holds small helpers for 16-bit signed little-endian PCM:
// level metering, duration arithmetic, WAV wrapping, resampling, and a
// silence detector.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BitsPerSample is fixed for all helpers in this package.
const BitsPerSample = 16

// Drain reads from ch until it is closed, discarding all values.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// RMS returns the root-mean-square level of pcm in sample units (0..32767).
// Buffers shorter than one sample yield 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// NormalizedRMS is [RMS] scaled to 0..1.
func NormalizedRMS(pcm []byte) float64 {
	return RMS(pcm) / 32768
}

// Duration returns how long pcm plays at the given format.
func Duration(pcm []byte, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (BitsPerSample / 8)
	return time.Duration(len(pcm)) * time.Second / time.Duration(bytesPerSec)
}

// EncodeWAV wraps pcm in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * BitsPerSample / 8
	blockAlign := channels * BitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// ResampleMono16 converts mono pcm from srcRate to dstRate by linear
// interpolation. Equal or invalid rates return the input unchanged.
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
	sample := func(i int) int16 { return int16(binary.LittleEndian.Uint16(pcm[i*2:])) }

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
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
