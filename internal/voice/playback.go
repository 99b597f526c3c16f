package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/studymate/internal/observe"
	"github.com/MrWong99/studymate/pkg/audio"
)

// Scheduler plays decoded output audio back to back on a [audio.PlaybackContext].
//
// Units are scheduled in the order Enqueue is called. Each unit starts at
// max(cursor, current output time) so playback never overlaps and never
// starts in the past. All methods are safe for concurrent use.
type Scheduler struct {
	ctx     audio.PlaybackContext
	log     *slog.Logger
	metrics *observe.Metrics

	mu sync.Mutex
	// cursor is the sample offset where the next unit may start.
	cursor int64
	live   map[uint64]audio.Source
	nextID uint64
	// gen invalidates ended callbacks of units cancelled by Stop.
	gen uint64
}

// NewScheduler returns a Scheduler writing to pc with its cursor at 0.
func NewScheduler(pc audio.PlaybackContext, log *slog.Logger, m *observe.Metrics) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Scheduler{
		ctx:     pc,
		log:     log,
		metrics: m,
		live:    make(map[uint64]audio.Source),
	}
}

// Enqueue decodes one base64 PCM payload and schedules it after everything
// queued so far. A payload that cannot be decoded or scheduled is reported
// as an error and leaves the cursor untouched. Empty payloads are ignored.
func (s *Scheduler) Enqueue(encoded string) error {
	samples, err := audio.DecodePCM16(encoded)
	if err != nil {
		s.metrics.RecordPlaybackUnit(context.Background(), observe.UnitDecodeError)
		return fmt.Errorf("voice: playback: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rate := s.ctx.SampleRate()
	start := max(s.cursor, samplesAtOrAfter(s.ctx.CurrentTime(), rate))
	unit := audio.PlaybackUnit{
		Samples:    samples,
		SampleRate: rate,
		Start:      audio.SamplesDuration(int(start), rate),
	}
	id, gen := s.nextID, s.gen
	s.nextID++

	src, err := s.ctx.Schedule(unit, func() { s.ended(gen, id) })
	if err != nil {
		s.metrics.RecordPlaybackUnit(context.Background(), observe.UnitScheduleError)
		return fmt.Errorf("voice: playback: schedule: %w", err)
	}
	s.live[id] = src
	s.cursor = start + int64(len(samples))
	s.metrics.RecordPlaybackUnit(context.Background(), observe.UnitScheduled)
	return nil
}

func (s *Scheduler) ended(gen, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	delete(s.live, id)
}

// Stop cancels every pending unit, clears the live set and resets the cursor
// to 0. Stop errors from individual sources are logged and ignored. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	pending := s.live
	s.live = make(map[uint64]audio.Source)
	s.gen++
	s.cursor = 0
	s.mu.Unlock()

	for id, src := range pending {
		if err := src.Stop(); err != nil {
			s.log.Debug("voice: stop playback unit", "id", id, "err", err)
		}
	}
}

// Pending returns the number of scheduled units that have not finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Cursor returns the start time the next unit would get if the output clock
// were at 0.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return audio.SamplesDuration(int(s.cursor), s.ctx.SampleRate())
}

// samplesAtOrAfter returns the first sample offset at rate that does not
// start before t.
func samplesAtOrAfter(t time.Duration, rate int) int64 {
	if rate <= 0 || t <= 0 {
		return 0
	}
	return (int64(t)*int64(rate) + int64(time.Second) - 1) / int64(time.Second)
}
