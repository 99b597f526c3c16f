package voice_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/studymate/internal/voice"
	"github.com/MrWong99/studymate/pkg/audio"
	livemock "github.com/MrWong99/studymate/pkg/provider/live/mock"
)

func newCapture(t *testing.T, queue int) *voice.Capture {
	t.Helper()
	c := voice.NewCapture(voice.CaptureConfig{SampleRate: 16000, QueueSize: queue})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCapture_DropsWhenNotReady(t *testing.T) {
	t.Parallel()

	c := newCapture(t, 4)
	c.OnFrame(make([]float32, 4096))

	st := c.Stats()
	require.Equal(t, int64(1), st.Captured)
	require.Equal(t, int64(1), st.Dropped)
	require.ErrorIs(t, c.Push(audio.Chunk{}), voice.ErrNotReady)
}

func TestCapture_SendsInOrder(t *testing.T) {
	t.Parallel()

	c := newCapture(t, 8)
	sess := &livemock.Session{}
	sent := sess.Sent()
	c.Attach(sess)

	frames := [][]float32{{0.5}, {-0.5}, {0.25}}
	for _, f := range frames {
		c.OnFrame(f)
	}
	for range frames {
		select {
		case <-sent:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for chunk")
		}
	}

	chunks := sess.SentChunks()
	require.Len(t, chunks, 3)
	for i, f := range frames {
		require.Equal(t, audio.EncodePCM16(f), chunks[i].Data)
		require.Equal(t, "audio/pcm;rate=16000", chunks[i].MIMEType)
	}
	require.Eventually(t, func() bool { return c.Stats().Sent == 3 }, time.Second, 5*time.Millisecond)
}

func TestCapture_Resamples(t *testing.T) {
	t.Parallel()

	c := voice.NewCapture(voice.CaptureConfig{SampleRate: 48000, TargetRate: 16000})
	t.Cleanup(func() { _ = c.Close() })
	sess := &livemock.Session{}
	sent := sess.Sent()
	c.Attach(sess)

	c.OnFrame(make([]float32, 4800))
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
	}
	chunk := sess.SentChunks()[0]
	require.Equal(t, 1600, chunk.Samples)
	require.Equal(t, 16000, chunk.SampleRate)
}

func TestCapture_SendErrorsAreNotFatal(t *testing.T) {
	t.Parallel()

	c := newCapture(t, 8)
	sess := &livemock.Session{SendErr: errors.New("broken pipe")}
	c.Attach(sess)

	c.OnFrame([]float32{0.1})
	c.OnFrame([]float32{0.2})
	require.Eventually(t, func() bool { return c.Stats().Failed == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestCapture_DetachDrops(t *testing.T) {
	t.Parallel()

	c := newCapture(t, 8)
	c.Attach(&livemock.Session{})
	c.Detach()
	c.OnFrame([]float32{0.1})
	require.Equal(t, int64(1), c.Stats().Dropped)
}

func TestCapture_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := voice.NewCapture(voice.CaptureConfig{SampleRate: 16000})
	sess := &livemock.Session{}
	c.Attach(sess)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Attach after close is ignored and frames are dropped.
	c.Attach(sess)
	c.OnFrame([]float32{0.1})
	require.Equal(t, int64(1), c.Stats().Dropped)
	require.Empty(t, sess.SentChunks())
}
