package audio_test

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/studymate/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestEncodePCM16_KnownValues(t *testing.T) {
	t.Parallel()

	got := audio.EncodePCM16([]float32{0, 0.5, -0.5, -1})
	raw, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("output is not base64: %v", err)
	}
	want := samplesToBytes([]int16{0, 16384, -16384, -32768})
	if string(raw) != string(want) {
		t.Errorf("bytes = %v, want %v", raw, want)
	}
}

func TestEncodePCM16_Truncates(t *testing.T) {
	t.Parallel()

	// 0.00005 * 32768 = 1.6384 -> 1; -0.00005 * 32768 = -1.6384 -> -1.
	raw, _ := base64.StdEncoding.DecodeString(audio.EncodePCM16([]float32{0.00005, -0.00005}))
	want := samplesToBytes([]int16{1, -1})
	if string(raw) != string(want) {
		t.Errorf("bytes = %v, want %v", raw, want)
	}
}

func TestEncodePCM16_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{name: "exactly one", in: 1, want: 32767},
		{name: "above one", in: 1.5, want: 32767},
		{name: "far above", in: 40, want: 32767},
		{name: "below minus one", in: -1.5, want: -32768},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			raw, _ := base64.StdEncoding.DecodeString(audio.EncodePCM16([]float32{tc.in}))
			got := int16(binary.LittleEndian.Uint16(raw))
			if got != tc.want {
				t.Errorf("sample = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDecodePCM16_RoundTrip(t *testing.T) {
	t.Parallel()

	in := make([]float32, 4096)
	for i := range in {
		// Sweep the full [-1, 1] range including both ends.
		in[i] = float32(-1 + 2*float64(i)/float64(len(in)-1))
	}
	out, err := audio.DecodePCM16(audio.EncodePCM16(in))
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	const tol = 1.0 / 32768
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > tol+1e-9 {
			t.Fatalf("sample %d: got %v, want %v (diff %v)", i, out[i], in[i], d)
		}
	}
}

func TestDecodePCM16_InvalidBase64(t *testing.T) {
	t.Parallel()

	if _, err := audio.DecodePCM16("not base64!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestDecodePCM16_OddTrailingByte(t *testing.T) {
	t.Parallel()

	raw := append(samplesToBytes([]int16{16384}), 0x7f)
	out, err := audio.DecodePCM16(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if len(out) != 1 || out[0] != 0.5 {
		t.Errorf("out = %v, want [0.5]", out)
	}
}

func TestFrameCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes, channels, want int
	}{
		{bytes: 8192, channels: 1, want: 4096},
		{bytes: 8192, channels: 2, want: 2048},
		{bytes: 7, channels: 1, want: 3},
		{bytes: 8, channels: 0, want: 0},
	}
	for _, tc := range tests {
		if got := audio.FrameCount(tc.bytes, tc.channels); got != tc.want {
			t.Errorf("FrameCount(%d, %d) = %d, want %d", tc.bytes, tc.channels, got, tc.want)
		}
	}
}

func TestInterleaveToPlanar(t *testing.T) {
	t.Parallel()

	interleaved := []int16{16384, -16384, 8192, -8192, 0, 32767}
	planar := audio.InterleaveToPlanar(interleaved, 2, 3)
	if len(planar) != 2 {
		t.Fatalf("channels = %d, want 2", len(planar))
	}
	wantL := []float32{0.5, 0.25, 0}
	wantR := []float32{-0.5, -0.25, float32(32767.0 / 32768.0)}
	for i := range 3 {
		if planar[0][i] != wantL[i] {
			t.Errorf("L[%d] = %v, want %v", i, planar[0][i], wantL[i])
		}
		if planar[1][i] != wantR[i] {
			t.Errorf("R[%d] = %v, want %v", i, planar[1][i], wantR[i])
		}
	}
}

func TestInterleaveToPlanar_FramesBeyondInput(t *testing.T) {
	t.Parallel()

	planar := audio.InterleaveToPlanar([]int16{1, 2, 3}, 2, 10)
	if len(planar[0]) != 1 || len(planar[1]) != 1 {
		t.Errorf("frames = %d/%d, want 1/1", len(planar[0]), len(planar[1]))
	}
}

func TestNewChunk(t *testing.T) {
	t.Parallel()

	c := audio.NewChunk(make([]float32, 4096), 16000)
	if c.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", c.MIMEType)
	}
	if c.Samples != 4096 || c.SampleRate != 16000 {
		t.Errorf("Samples/SampleRate = %d/%d", c.Samples, c.SampleRate)
	}
	raw, _ := base64.StdEncoding.DecodeString(c.Data)
	if len(raw) != 8192 {
		t.Errorf("payload bytes = %d, want 8192", len(raw))
	}
}

func TestPlaybackUnit_Duration(t *testing.T) {
	t.Parallel()

	u := audio.PlaybackUnit{Samples: make([]float32, 12000), SampleRate: 24000, Start: time.Second}
	if u.Duration() != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", u.Duration())
	}
	if u.End() != 1500*time.Millisecond {
		t.Errorf("End = %v, want 1.5s", u.End())
	}
	if audio.SamplesDuration(10, 0) != 0 {
		t.Error("SamplesDuration with zero rate should be 0")
	}
}

func TestDurationSamples_InvertsSamplesDuration(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{16000, 22050, 24000, 44100} {
		for _, n := range []int{0, 1, 7, 1000, 4096, 123457} {
			if got := audio.DurationSamples(audio.SamplesDuration(n, rate), rate); got != int64(n) {
				t.Errorf("rate %d: DurationSamples(SamplesDuration(%d)) = %d", rate, n, got)
			}
		}
	}
	if audio.DurationSamples(time.Second, 0) != 0 {
		t.Error("DurationSamples with zero rate should be 0")
	}
}
