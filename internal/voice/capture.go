package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/studymate/internal/observe"
	"github.com/MrWong99/studymate/pkg/audio"
	"github.com/MrWong99/studymate/pkg/provider/live"
)

// ErrNotReady is returned by [Capture.Push] when no live session is attached.
var ErrNotReady = errors.New("voice: session not ready")

// errQueueFull is returned by [Capture.Push] when the send queue is full.
var errQueueFull = errors.New("voice: send queue full")

// CaptureStats counts chunks handled by a [Capture].
type CaptureStats struct {
	Captured int64
	Sent     int64
	Dropped  int64
	Failed   int64
}

// CaptureConfig configures a [Capture].
type CaptureConfig struct {
	// SampleRate is the rate frames arrive at.
	SampleRate int

	// TargetRate is the rate sent to the live session. Defaults to SampleRate.
	TargetRate int

	// QueueSize bounds the number of chunks waiting to be sent.
	QueueSize int

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Capture turns microphone frames into encoded chunks and forwards them to
// the attached live session.
//
// OnFrame never blocks: chunks are dropped when no session is attached or the
// queue is full. A single goroutine performs the sends in frame order.
type Capture struct {
	rate    int
	target  int
	log     *slog.Logger
	metrics *observe.Metrics

	queue chan audio.Chunk
	done  chan struct{}
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	sess   live.Session
	closed bool

	captured atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewCapture starts a Capture with no attached session.
func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = cfg.SampleRate
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Capture{
		rate:    cfg.SampleRate,
		target:  cfg.TargetRate,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		queue:   make(chan audio.Chunk, cfg.QueueSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.sendLoop()
	return c
}

// Attach makes sess the destination of subsequent chunks.
func (c *Capture) Attach(sess live.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.sess = sess
}

// Detach stops forwarding. Chunks produced afterwards are dropped.
func (c *Capture) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = nil
}

// OnFrame is an [audio.FrameFunc]. It encodes frame and queues it for
// sending, dropping it when the session is not ready.
func (c *Capture) OnFrame(frame []float32) {
	if len(frame) == 0 {
		return
	}
	samples := audio.ResampleMono(frame, c.rate, c.target)
	chunk := audio.NewChunk(samples, c.target)
	c.captured.Add(1)
	c.metrics.RecordChunk(c.ctx, observe.ChunkCaptured)

	if err := c.Push(chunk); err != nil {
		c.dropped.Add(1)
		c.metrics.RecordChunk(c.ctx, observe.ChunkDropped)
	}
}

// Push queues an already encoded chunk. It returns [ErrNotReady] when no
// session is attached or the capture is closed.
func (c *Capture) Push(chunk audio.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sess == nil {
		return ErrNotReady
	}
	select {
	case c.queue <- chunk:
		return nil
	default:
		return errQueueFull
	}
}

func (c *Capture) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case chunk := <-c.queue:
			c.mu.Lock()
			sess := c.sess
			c.mu.Unlock()
			if sess == nil {
				c.dropped.Add(1)
				c.metrics.RecordChunk(c.ctx, observe.ChunkDropped)
				continue
			}
			if err := sess.SendRealtimeInput(c.ctx, chunk); err != nil {
				c.failed.Add(1)
				c.metrics.RecordChunk(c.ctx, observe.ChunkSendError)
				c.log.Debug("voice: send audio chunk", "err", err)
				continue
			}
			c.sent.Add(1)
			c.metrics.RecordChunk(c.ctx, observe.ChunkSent)
		}
	}
}

// Stats returns a snapshot of the chunk counters.
func (c *Capture) Stats() CaptureStats {
	return CaptureStats{
		Captured: c.captured.Load(),
		Sent:     c.sent.Load(),
		Dropped:  c.dropped.Load(),
		Failed:   c.failed.Load(),
	}
}

// Close detaches the session, discards queued chunks and waits for the
// sender to exit. Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.sess = nil
	c.mu.Unlock()

	c.cancel()
	close(c.done)
	c.wg.Wait()
	return nil
}
