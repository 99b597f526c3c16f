package pulse

import (
	"io"
	"testing"
	"time"

	"github.com/MrWong99/studymate/pkg/audio"
)

func TestProcessorNode_RegroupsFragmentsIntoFrames(t *testing.T) {
	t.Parallel()

	var frames [][]float32
	p := &processorNode{frameBytes: 8, fn: func(f []float32) {
		frames = append(frames, append([]float32(nil), f...))
	}}

	// Two 16384 samples, then a fragment that completes the first frame and
	// starts the second.
	frag1 := []byte{0x00, 0x40, 0x00, 0x40}
	frag2 := []byte{0x00, 0x40, 0x00, 0x40, 0x00, 0xc0}
	if n, err := p.onPCM(frag1); err != nil || n != len(frag1) {
		t.Fatalf("onPCM = %d, %v", n, err)
	}
	if len(frames) != 0 {
		t.Fatalf("frames = %d before a full frame, want 0", len(frames))
	}
	if _, err := p.onPCM(frag2); err != nil {
		t.Fatalf("onPCM: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	for i, s := range frames[0] {
		if s != 0.5 {
			t.Errorf("sample %d = %v, want 0.5", i, s)
		}
	}
	if len(p.pending) != 2 {
		t.Errorf("pending = %d bytes, want 2", len(p.pending))
	}
}

func TestProcessorNode_StoppedReturnsEOF(t *testing.T) {
	t.Parallel()

	p := &processorNode{frameBytes: 4, fn: func([]float32) { t.Error("fn called after stop") }}
	p.stopped = true
	if _, err := p.onPCM([]byte{1, 2, 3, 4}); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func newTestPlayback(rate int) *playbackContext {
	return &playbackContext{rate: rate, voices: make(map[uint64]*voice)}
}

func TestPlaybackContext_MixesByOffsetAndAdvancesClock(t *testing.T) {
	t.Parallel()

	c := newTestPlayback(1000)
	ended := 0
	_, err := c.Schedule(audio.PlaybackUnit{
		Samples:    []float32{0.5, 0.5},
		SampleRate: 1000,
		Start:      2 * time.Millisecond,
	}, func() { ended++ })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	buf := make([]int16, 3)
	if n, err := c.fill(buf); err != nil || n != 3 {
		t.Fatalf("fill = %d, %v", n, err)
	}
	if buf[0] != 0 || buf[1] != 0 || buf[2] == 0 {
		t.Errorf("first block = %v, want silence then audio at offset 2", buf)
	}
	if ended != 0 {
		t.Fatalf("ended fired early")
	}
	if got := c.CurrentTime(); got != 3*time.Millisecond {
		t.Errorf("CurrentTime = %v, want 3ms", got)
	}

	if _, err := c.fill(buf); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if buf[0] == 0 || buf[1] != 0 {
		t.Errorf("second block = %v, want tail then silence", buf)
	}
	if ended != 1 {
		t.Errorf("ended = %d, want 1", ended)
	}
	if len(c.voices) != 0 {
		t.Errorf("voices = %d, want 0", len(c.voices))
	}
}

func TestPlaybackContext_UnitsMeetAtSampleBoundary(t *testing.T) {
	t.Parallel()

	// 1000 samples at 24 kHz is not a whole number of nanoseconds, so the
	// second unit's start is a truncated duration.
	const rate, n = 24000, 1000
	c := newTestPlayback(rate)
	level := float32(0.25)
	unit := make([]float32, n)
	for i := range unit {
		unit[i] = level
	}
	first := audio.PlaybackUnit{Samples: unit, SampleRate: rate}
	second := audio.PlaybackUnit{Samples: unit, SampleRate: rate, Start: first.End()}
	for _, u := range []audio.PlaybackUnit{first, second} {
		if _, err := c.Schedule(u, nil); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	buf := make([]int16, 2*n)
	if _, err := c.fill(buf); err != nil {
		t.Fatalf("fill: %v", err)
	}
	want := int16(level * 32767)
	for i, s := range buf {
		if s != want {
			t.Fatalf("buf[%d] = %d, want %d (overlap or gap at the boundary)", i, s, want)
		}
	}
}

func TestPlaybackSource_StopPreventsEnded(t *testing.T) {
	t.Parallel()

	c := newTestPlayback(1000)
	src, err := c.Schedule(audio.PlaybackUnit{Samples: []float32{1}, SampleRate: 1000}, func() {
		t.Error("ended fired for a stopped source")
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	buf := make([]int16, 4)
	if _, err := c.fill(buf); err != nil {
		t.Fatalf("fill: %v", err)
	}
	for i, s := range buf {
		if s != 0 {
			t.Errorf("buf[%d] = %d, want silence", i, s)
		}
	}
}

func TestPlaybackContext_ClipsMixedOutput(t *testing.T) {
	t.Parallel()

	c := newTestPlayback(1000)
	for range 2 {
		if _, err := c.Schedule(audio.PlaybackUnit{Samples: []float32{0.8}, SampleRate: 1000}, nil); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	buf := make([]int16, 1)
	if _, err := c.fill(buf); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if buf[0] != 32767 {
		t.Errorf("mixed sample = %d, want clipped 32767", buf[0])
	}
}

func TestCaptureContext_CloseTwice(t *testing.T) {
	t.Parallel()

	p := New()
	c, err := p.NewCaptureContext(16000)
	if err != nil {
		t.Fatalf("NewCaptureContext: %v", err)
	}
	if c.Closed() {
		t.Fatal("new context reports closed")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err == nil {
		t.Error("second Close should fail")
	}
	if !c.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestPlatform_RejectsInvalidRates(t *testing.T) {
	t.Parallel()

	p := New()
	if _, err := p.NewCaptureContext(0); err == nil {
		t.Error("NewCaptureContext(0) should fail")
	}
	if _, err := p.NewPlaybackContext(-1); err == nil {
		t.Error("NewPlaybackContext(-1) should fail")
	}
}
