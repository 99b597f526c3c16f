package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
)

// pcmScale maps float samples in [-1, 1] onto the int16 range.
const pcmScale = 32768.0

// PCMMimeType returns the MIME type used for raw 16-bit PCM at rate Hz.
func PCMMimeType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// EncodePCM16 converts float samples to little-endian int16 PCM and returns
// the bytes as standard base64. Each sample is scaled by 32768 and truncated
// toward zero. Results outside the int16 range are clamped.
func EncodePCM16(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// FloatToPCM16 is the binary half of [EncodePCM16].
func FloatToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(floatToInt16(s)))
	}
	return buf
}

// DecodePCM16 reverses [EncodePCM16] for mono audio. A trailing odd byte is
// ignored.
func DecodePCM16(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	planar := InterleaveToPlanar(PCM16ToInt16(raw), 1, FrameCount(len(raw), 1))
	return planar[0], nil
}

// PCM16ToInt16 reinterprets little-endian bytes as int16 samples.
func PCM16ToInt16(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out
}

// FrameCount returns the number of whole frames in byteLen bytes of 16-bit
// PCM with the given channel count.
func FrameCount(byteLen, channels int) int {
	if channels <= 0 {
		return 0
	}
	return byteLen / 2 / channels
}

// InterleaveToPlanar splits interleaved int16 samples into one float slice
// per channel: planar[c][i] = interleaved[i*channels+c] / 32768.
func InterleaveToPlanar(interleaved []int16, channels, frames int) [][]float32 {
	if channels <= 0 {
		return nil
	}
	if limit := len(interleaved) / channels; frames > limit {
		frames = limit
	}
	planar := make([][]float32, channels)
	for c := range planar {
		planar[c] = make([]float32, frames)
		for i := range frames {
			planar[c][i] = float32(float64(interleaved[i*channels+c]) / pcmScale)
		}
	}
	return planar
}

func floatToInt16(s float32) int16 {
	v := int64(float64(s) * pcmScale)
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
