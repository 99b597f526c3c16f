package voice_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/studymate/internal/voice"
	"github.com/MrWong99/studymate/pkg/audio"
	"github.com/MrWong99/studymate/pkg/audio/mock"
)

// payload returns base64 PCM holding n samples.
func payload(n int) string {
	return audio.EncodePCM16(make([]float32, n))
}

func newScheduler(t *testing.T) (*voice.Scheduler, *mock.PlaybackContext) {
	t.Helper()
	p := &mock.Platform{}
	pc, err := p.NewPlaybackContext(24000)
	require.NoError(t, err)
	return voice.NewScheduler(pc, nil, nil), p.LastPlayback()
}

func TestScheduler_BackToBack(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)

	// 2400 samples at 24 kHz is 100ms.
	for range 3 {
		require.NoError(t, s.Enqueue(payload(2400)))
	}

	units := pc.Scheduled()
	require.Len(t, units, 3)
	for i, u := range units {
		require.Equal(t, time.Duration(i)*100*time.Millisecond, u.Unit.Start, "unit %d", i)
		require.Equal(t, 24000, u.Unit.SampleRate)
	}
	require.Equal(t, 300*time.Millisecond, s.Cursor())
	require.Equal(t, 3, s.Pending())
}

func TestScheduler_NeverStartsInThePast(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	require.NoError(t, s.Enqueue(payload(2400)))

	// Network stall: the output clock moved past the cursor.
	pc.SetTime(time.Second)
	require.NoError(t, s.Enqueue(payload(2400)))

	units := pc.Scheduled()
	require.Equal(t, time.Second, units[1].Unit.Start)
	require.Equal(t, 1100*time.Millisecond, s.Cursor())

	// Next unit follows the cursor, not the clock.
	pc.SetTime(1050 * time.Millisecond)
	require.NoError(t, s.Enqueue(payload(1200)))
	require.Equal(t, 1100*time.Millisecond, pc.Scheduled()[2].Unit.Start)
}

func TestScheduler_MonotonicStarts(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	sizes := []int{480, 2400, 24, 7200, 1}
	clock := []time.Duration{0, 10 * time.Millisecond, 500 * time.Millisecond, 505 * time.Millisecond, 2 * time.Second}
	for i, n := range sizes {
		pc.SetTime(clock[i])
		require.NoError(t, s.Enqueue(payload(n)))
	}

	units := pc.Scheduled()
	for i := 1; i < len(units); i++ {
		prev, cur := units[i-1].Unit, units[i].Unit
		require.GreaterOrEqual(t, cur.Start, prev.End(), "unit %d overlaps", i)
		require.GreaterOrEqual(t, cur.Start, clock[i], "unit %d in the past", i)
	}
}

func TestScheduler_SampleExactStarts(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	// 1000 samples at 24 kHz does not divide into whole nanoseconds.
	for range 50 {
		require.NoError(t, s.Enqueue(payload(1000)))
	}
	for i, u := range pc.Scheduled() {
		require.Equal(t, int64(i*1000), audio.DurationSamples(u.Unit.Start, 24000), "unit %d", i)
	}
	require.Equal(t, int64(50000), audio.DurationSamples(s.Cursor(), 24000))
}

func TestScheduler_CompletionRemovesUnit(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	require.NoError(t, s.Enqueue(payload(240)))
	require.NoError(t, s.Enqueue(payload(240)))

	pc.Finish(0)
	require.Equal(t, 1, s.Pending())
	pc.Finish(1)
	require.Equal(t, 0, s.Pending())
}

func TestScheduler_DecodeErrorIsIsolated(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	require.NoError(t, s.Enqueue(payload(2400)))

	require.Error(t, s.Enqueue("%%% not base64"))
	require.Equal(t, 100*time.Millisecond, s.Cursor())

	require.NoError(t, s.Enqueue(payload(2400)))
	require.Len(t, pc.Scheduled(), 2)
}

func TestScheduler_EmptyPayloadIgnored(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	require.NoError(t, s.Enqueue(""))
	require.Empty(t, pc.Scheduled())
	require.Zero(t, s.Cursor())
}

func TestScheduler_ScheduleError(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	pc.ScheduleError = errors.New("device gone")
	require.ErrorContains(t, s.Enqueue(payload(240)), "device gone")
	require.Zero(t, s.Cursor())
	require.Zero(t, s.Pending())
}

func TestScheduler_StopCancelsPending(t *testing.T) {
	t.Parallel()

	s, pc := newScheduler(t)
	for range 3 {
		require.NoError(t, s.Enqueue(payload(2400)))
	}
	units := pc.Scheduled()
	units[1].Source.StopError = errors.New("already finished")

	s.Stop()
	require.Zero(t, s.Pending())
	require.Zero(t, s.Cursor())
	for i, u := range units {
		require.True(t, u.Source.Stopped(), "unit %d not stopped", i)
	}

	// Late completion events from cancelled units must not touch new state.
	require.NoError(t, s.Enqueue(payload(2400)))
	for i := range units {
		pc.FireEnded(i)
	}
	require.Equal(t, 1, s.Pending())

	s.Stop()
	s.Stop()
	require.Zero(t, s.Pending())
}
