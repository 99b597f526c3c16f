package audio

import "time"

// Chunk is a fixed-size run of mono PCM captured from the microphone,
// already encoded for transport. A Chunk is immutable once produced.
type Chunk struct {
	// Data is the base64 encoding of little-endian int16 PCM.
	Data string

	// MIMEType names the payload encoding, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Samples is the number of samples encoded in Data.
	Samples int

	// SampleRate in Hz of the encoded samples.
	SampleRate int
}

// NewChunk encodes samples captured at sampleRate into a [Chunk].
func NewChunk(samples []float32, sampleRate int) Chunk {
	return Chunk{
		Data:       EncodePCM16(samples),
		MIMEType:   PCMMimeType(sampleRate),
		Samples:    len(samples),
		SampleRate: sampleRate,
	}
}

// PlaybackUnit is a decoded buffer of output audio together with the offset
// on the playback clock at which it is scheduled to start.
type PlaybackUnit struct {
	// Samples holds mono float samples in [-1, 1].
	Samples []float32

	// SampleRate of Samples in Hz.
	SampleRate int

	// Start is the scheduled start offset on the playback context clock.
	Start time.Duration
}

// Duration returns the playback length of the unit.
func (u PlaybackUnit) Duration() time.Duration {
	return SamplesDuration(len(u.Samples), u.SampleRate)
}

// End returns Start + Duration.
func (u PlaybackUnit) End() time.Duration {
	return u.Start + u.Duration()
}

// SamplesDuration converts a sample count at rate into a duration.
func SamplesDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(samples) * int64(time.Second) / int64(rate))
}

// DurationSamples converts d into a sample offset at rate, rounded to the
// nearest sample. It inverts [SamplesDuration] exactly.
func DurationSamples(d time.Duration, rate int) int64 {
	if rate <= 0 {
		return 0
	}
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}
