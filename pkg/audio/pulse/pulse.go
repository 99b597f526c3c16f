// Package pulse implements [audio.Platform] on top of a PulseAudio (or
// PipeWire-pulse) server using github.com/jfreymuth/pulse.
//
// Capture opens one record stream per processor node at the requested rate
// and regroups the server's fragments into fixed-size frames. Playback keeps a
// single always-running stream per context and mixes scheduled units into it
// by absolute sample offset; the context clock counts samples handed to the
// server.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/MrWong99/studymate/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform        = (*Platform)(nil)
	_ audio.CaptureContext  = (*captureContext)(nil)
	_ audio.PlaybackContext = (*playbackContext)(nil)
)

const (
	defaultAppName   = "studymate"
	playbackLatency  = 0.05 // seconds
	captureMediaName = "studymate voice chat"
	playMediaName    = "studymate tutor voice"
)

// errContextClosed is returned when operating on a closed context.
var errContextClosed = errors.New("pulse: context closed")

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Platform.
type Option func(*Platform)

// WithApplicationName sets the client name shown by the sound server.
func WithApplicationName(name string) Option {
	return func(p *Platform) { p.appName = name }
}

// WithSource selects a capture source by its server ID. Empty uses the
// default source.
func WithSource(id string) Option {
	return func(p *Platform) { p.sourceID = id }
}

// WithSink selects a playback sink by its server ID. Empty uses the default
// sink.
func WithSink(id string) Option {
	return func(p *Platform) { p.sinkID = id }
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Platform) { p.log = l }
}

// ── Platform ───────────────────────────────────────────────────────────────────

// Platform implements [audio.Platform] against the local sound server.
type Platform struct {
	appName  string
	sourceID string
	sinkID   string
	log      *slog.Logger
}

// New creates a Platform with the given options.
func New(opts ...Option) *Platform {
	p := &Platform{appName: defaultAppName}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

func (p *Platform) newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(p.appName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse: connect server: %w", err)
	}
	return client, nil
}

// OpenMicrophone implements [audio.Platform]. It connects to the server and
// resolves the configured source.
func (p *Platform) OpenMicrophone(ctx context.Context) (audio.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := p.newClient()
	if err != nil {
		return nil, err
	}

	var source *pulse.Source
	if p.sourceID != "" {
		source, err = client.SourceByID(p.sourceID)
	} else {
		source, err = client.DefaultSource()
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pulse: resolve source %q: %w", p.sourceID, err)
	}
	return &microphone{client: client, source: source}, nil
}

// NewCaptureContext implements [audio.Platform].
func (p *Platform) NewCaptureContext(sampleRate int) (audio.CaptureContext, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pulse: invalid capture sample rate %d", sampleRate)
	}
	return &captureContext{rate: sampleRate, started: time.Now(), log: p.log}, nil
}

// NewPlaybackContext implements [audio.Platform]. The underlying stream starts
// immediately and plays silence until units are scheduled.
func (p *Platform) NewPlaybackContext(sampleRate int) (audio.PlaybackContext, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pulse: invalid playback sample rate %d", sampleRate)
	}
	client, err := p.newClient()
	if err != nil {
		return nil, err
	}

	pc := &playbackContext{
		rate:   sampleRate,
		client: client,
		voices: make(map[uint64]*voice),
	}

	opts := []pulse.PlaybackOption{
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(playbackLatency),
		pulse.PlaybackMediaName(playMediaName),
	}
	if p.sinkID != "" {
		sink, err := client.SinkByID(p.sinkID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("pulse: resolve sink %q: %w", p.sinkID, err)
		}
		opts = append(opts, pulse.PlaybackSink(sink))
	}

	stream, err := client.NewPlayback(pulse.Int16Reader(pc.fill), opts...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pulse: create playback stream: %w", err)
	}
	pc.stream = stream
	stream.Start()
	return pc, nil
}

// ── Microphone ─────────────────────────────────────────────────────────────────

type microphone struct {
	client *pulse.Client
	source *pulse.Source
	once   sync.Once
}

// StopTracks closes the server connection, ending every record stream opened
// on it.
func (m *microphone) StopTracks() error {
	m.once.Do(m.client.Close)
	return nil
}

// ── Capture ────────────────────────────────────────────────────────────────────

type captureContext struct {
	rate    int
	started time.Time
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (c *captureContext) SampleRate() int { return c.rate }

func (c *captureContext) CurrentTime() time.Duration { return time.Since(c.started) }

func (c *captureContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *captureContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errContextClosed
	}
	c.closed = true
	return nil
}

func (c *captureContext) NewSource(stream audio.MediaStream) (audio.Node, error) {
	mic, ok := stream.(*microphone)
	if !ok {
		return nil, fmt.Errorf("pulse: unsupported media stream %T", stream)
	}
	if c.Closed() {
		return nil, errContextClosed
	}
	return &sourceNode{mic: mic}, nil
}

func (c *captureContext) NewProcessor(src audio.Node, frameSize int, fn audio.FrameFunc) (audio.Node, error) {
	sn, ok := src.(*sourceNode)
	if !ok {
		return nil, fmt.Errorf("pulse: unsupported source node %T", src)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("pulse: invalid frame size %d", frameSize)
	}
	if c.Closed() {
		return nil, errContextClosed
	}

	proc := &processorNode{frameBytes: frameSize * 2, fn: fn}
	writer := pulse.NewWriter(writerFunc(proc.onPCM), pulseproto.FormatInt16LE)
	stream, err := sn.mic.client.NewRecord(
		writer,
		pulse.RecordSource(sn.mic.source),
		pulse.RecordMono,
		pulse.RecordSampleRate(c.rate),
		pulse.RecordBufferFragmentSize(uint32(proc.frameBytes)),
		pulse.RecordMediaName(captureMediaName),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse: create record stream: %w", err)
	}
	proc.stream = stream
	stream.Start()
	c.log.Debug("pulse: capture started", "rate", c.rate, "frame_size", frameSize)
	return proc, nil
}

type sourceNode struct {
	mic *microphone
}

// Disconnect is a no-op: the source has no server-side object of its own.
func (s *sourceNode) Disconnect() error { return nil }

type processorNode struct {
	frameBytes int
	fn         audio.FrameFunc
	stream     *pulse.RecordStream

	mu      sync.Mutex
	pending []byte
	stopped bool
}

// onPCM regroups server fragments into frames of frameBytes and hands each
// one to fn as float samples.
func (p *processorNode) onPCM(buf []byte) (int, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, io.EOF
	}
	p.pending = append(p.pending, buf...)
	var frames [][]float32
	for len(p.pending) >= p.frameBytes {
		planar := audio.InterleaveToPlanar(audio.PCM16ToInt16(p.pending[:p.frameBytes]), 1, p.frameBytes/2)
		frames = append(frames, planar[0])
		p.pending = p.pending[p.frameBytes:]
	}
	p.mu.Unlock()

	for _, f := range frames {
		p.fn(f)
	}
	return len(buf), nil
}

func (p *processorNode) Disconnect() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.pending = nil
	p.mu.Unlock()

	p.stream.Stop()
	p.stream.Close()
	return nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// ── Playback ───────────────────────────────────────────────────────────────────

type voice struct {
	start   int64 // absolute sample offset
	samples []float32
	onEnded func()
}

type playbackContext struct {
	rate   int
	client *pulse.Client
	stream *pulse.PlaybackStream

	mu       sync.Mutex
	consumed int64
	voices   map[uint64]*voice
	nextID   uint64
	scratch  []float32
	closed   bool
}

func (c *playbackContext) SampleRate() int { return c.rate }

func (c *playbackContext) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return audio.SamplesDuration(int(c.consumed), c.rate)
}

func (c *playbackContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *playbackContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errContextClosed
	}
	c.closed = true
	c.voices = make(map[uint64]*voice)
	c.mu.Unlock()

	c.stream.Stop()
	c.stream.Close()
	c.client.Close()
	return nil
}

func (c *playbackContext) Schedule(unit audio.PlaybackUnit, onEnded func()) (audio.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errContextClosed
	}
	c.nextID++
	id := c.nextID
	c.voices[id] = &voice{
		start:   audio.DurationSamples(unit.Start, c.rate),
		samples: unit.Samples,
		onEnded: onEnded,
	}
	return &playbackSource{ctx: c, id: id}, nil
}

// fill is the stream's pull callback. It mixes every voice overlapping the
// next len(buf) samples and fires ended callbacks outside the lock.
func (c *playbackContext) fill(buf []int16) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, pulse.EndOfData
	}
	n := len(buf)
	if cap(c.scratch) < n {
		c.scratch = make([]float32, n)
	}
	mix := c.scratch[:n]
	clear(mix)

	base := c.consumed
	var ended []func()
	for id, v := range c.voices {
		end := v.start + int64(len(v.samples))
		from := max(v.start, base)
		to := min(end, base+int64(n))
		for t := from; t < to; t++ {
			mix[t-base] += v.samples[t-v.start]
		}
		if end <= base+int64(n) {
			delete(c.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	c.consumed += int64(n)

	for i, s := range mix {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		buf[i] = int16(s * 32767)
	}
	c.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return n, nil
}

type playbackSource struct {
	ctx *playbackContext
	id  uint64
}

func (s *playbackSource) Stop() error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	delete(s.ctx.voices, s.id)
	return nil
}
