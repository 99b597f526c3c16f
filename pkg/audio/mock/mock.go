// Package mock provides in-memory implementations of the [audio.Platform]
// device interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every object they hand
// out so that tests can drive frames, advance clocks and finish scheduled
// units by hand, and they expose exported error fields to inject failures.
//
// Typical usage:
//
//	p := &mock.Platform{}
//	mgr := voice.NewManager(p, provider, cfg)
//	_ = mgr.Start(ctx)
//	p.LastCapture().Processor().Emit(make([]float32, 4096))
//	p.LastPlayback().SetTime(500 * time.Millisecond)
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/studymate/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform        = (*Platform)(nil)
	_ audio.MediaStream     = (*Stream)(nil)
	_ audio.CaptureContext  = (*CaptureContext)(nil)
	_ audio.PlaybackContext = (*PlaybackContext)(nil)
	_ audio.Node            = (*Node)(nil)
	_ audio.Source          = (*Source)(nil)
)

// ErrClosed is returned by Close on an already closed context.
var ErrClosed = errors.New("mock: context already closed")

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// OpenMicrophoneError is returned by OpenMicrophone when non-nil.
	OpenMicrophoneError error

	// CaptureContextError is returned by NewCaptureContext when non-nil.
	CaptureContextError error

	// PlaybackContextError is returned by NewPlaybackContext when non-nil.
	PlaybackContextError error

	// Streams records every stream returned by OpenMicrophone.
	Streams []*Stream

	// Captures records every capture context created.
	Captures []*CaptureContext

	// Playbacks records every playback context created.
	Playbacks []*PlaybackContext
}

// OpenMicrophone implements [audio.Platform].
func (p *Platform) OpenMicrophone(_ context.Context) (audio.MediaStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenMicrophoneError != nil {
		return nil, p.OpenMicrophoneError
	}
	s := &Stream{}
	p.Streams = append(p.Streams, s)
	return s, nil
}

// NewCaptureContext implements [audio.Platform].
func (p *Platform) NewCaptureContext(sampleRate int) (audio.CaptureContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CaptureContextError != nil {
		return nil, p.CaptureContextError
	}
	c := &CaptureContext{clock: clock{rate: sampleRate}}
	p.Captures = append(p.Captures, c)
	return c, nil
}

// NewPlaybackContext implements [audio.Platform].
func (p *Platform) NewPlaybackContext(sampleRate int) (audio.PlaybackContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlaybackContextError != nil {
		return nil, p.PlaybackContextError
	}
	c := &PlaybackContext{clock: clock{rate: sampleRate}}
	p.Playbacks = append(p.Playbacks, c)
	return c, nil
}

// LastStream returns the most recently opened stream or nil.
func (p *Platform) LastStream() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Streams) == 0 {
		return nil
	}
	return p.Streams[len(p.Streams)-1]
}

// LastCapture returns the most recently created capture context or nil.
func (p *Platform) LastCapture() *CaptureContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Captures) == 0 {
		return nil
	}
	return p.Captures[len(p.Captures)-1]
}

// LastPlayback returns the most recently created playback context or nil.
func (p *Platform) LastPlayback() *PlaybackContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Playbacks) == 0 {
		return nil
	}
	return p.Playbacks[len(p.Playbacks)-1]
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock [audio.MediaStream].
type Stream struct {
	mu sync.Mutex

	// StopError is returned by StopTracks.
	StopError error

	// StopHook, if set, runs at the start of every StopTracks call without
	// holding the stream lock.
	StopHook func()

	// CallCountStopTracks records how many times StopTracks was called.
	CallCountStopTracks int
}

// StopTracks implements [audio.MediaStream].
func (s *Stream) StopTracks() error {
	s.mu.Lock()
	hook := s.StopHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStopTracks++
	return s.StopError
}

// Stopped reports whether StopTracks has been called at least once.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStopTracks > 0
}

// ─── Clock ────────────────────────────────────────────────────────────────────

// clock is a manually advanced context clock shared by both context mocks.
type clock struct {
	mu     sync.Mutex
	rate   int
	now    time.Duration
	closed bool

	closeCalls int
}

func (c *clock) SampleRate() int { return c.rate }

func (c *clock) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SetTime moves the clock to t.
func (c *clock) SetTime(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *clock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return nil
}

// CloseCalls returns how many times Close was called.
func (c *clock) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// CaptureContext is a mock [audio.CaptureContext].
type CaptureContext struct {
	clock

	// SourceError is returned by NewSource when non-nil.
	SourceError error

	// ProcessorError is returned by NewProcessor when non-nil.
	ProcessorError error

	source    *Node
	processor *Node
}

// NewSource implements [audio.CaptureContext].
func (c *CaptureContext) NewSource(_ audio.MediaStream) (audio.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SourceError != nil {
		return nil, c.SourceError
	}
	c.source = &Node{}
	return c.source, nil
}

// NewProcessor implements [audio.CaptureContext].
func (c *CaptureContext) NewProcessor(_ audio.Node, frameSize int, fn audio.FrameFunc) (audio.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ProcessorError != nil {
		return nil, c.ProcessorError
	}
	c.processor = &Node{FrameSize: frameSize, fn: fn}
	return c.processor, nil
}

// Source returns the source node or nil.
func (c *CaptureContext) Source() *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Processor returns the processor node or nil.
func (c *CaptureContext) Processor() *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processor
}

// Node is a mock [audio.Node]. Processor nodes deliver frames via Emit.
type Node struct {
	mu sync.Mutex

	// FrameSize is the frame size requested for processor nodes.
	FrameSize int

	// DisconnectError is returned by Disconnect.
	DisconnectError error

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	fn           audio.FrameFunc
	disconnected bool
}

// Disconnect implements [audio.Node].
func (n *Node) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CallCountDisconnect++
	n.disconnected = true
	return n.DisconnectError
}

// Disconnected reports whether Disconnect has been called.
func (n *Node) Disconnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disconnected
}

// Emit delivers frame to the processor callback as the audio thread would.
// It reports false when the node is disconnected or has no callback.
func (n *Node) Emit(frame []float32) bool {
	n.mu.Lock()
	fn := n.fn
	gone := n.disconnected
	n.mu.Unlock()
	if fn == nil || gone {
		return false
	}
	fn(frame)
	return true
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Scheduled records one call to [PlaybackContext.Schedule].
type Scheduled struct {
	Unit    audio.PlaybackUnit
	Source  *Source
	onEnded func()
}

// PlaybackContext is a mock [audio.PlaybackContext].
type PlaybackContext struct {
	clock

	// ScheduleError is returned by Schedule when non-nil.
	ScheduleError error

	scheduled []*Scheduled
}

// Schedule implements [audio.PlaybackContext].
func (c *PlaybackContext) Schedule(unit audio.PlaybackUnit, onEnded func()) (audio.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ScheduleError != nil {
		return nil, c.ScheduleError
	}
	src := &Source{}
	c.scheduled = append(c.scheduled, &Scheduled{Unit: unit, Source: src, onEnded: onEnded})
	return src, nil
}

// Scheduled returns a snapshot of everything scheduled so far.
func (c *PlaybackContext) Scheduled() []*Scheduled {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Scheduled, len(c.scheduled))
	copy(out, c.scheduled)
	return out
}

// Finish simulates natural completion of the i-th scheduled unit. The ended
// callback is invoked unless the source was stopped.
func (c *PlaybackContext) Finish(i int) {
	c.mu.Lock()
	if i < 0 || i >= len(c.scheduled) {
		c.mu.Unlock()
		return
	}
	s := c.scheduled[i]
	c.mu.Unlock()

	if s.Source.Stopped() || s.onEnded == nil {
		return
	}
	s.onEnded()
}

// FireEnded invokes the ended callback of the i-th unit unconditionally,
// modelling a completion event that races with Stop.
func (c *PlaybackContext) FireEnded(i int) {
	c.mu.Lock()
	if i < 0 || i >= len(c.scheduled) {
		c.mu.Unlock()
		return
	}
	fn := c.scheduled[i].onEnded
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Source is a mock [audio.Source].
type Source struct {
	mu sync.Mutex

	// StopError is returned by Stop.
	StopError error

	stopped bool
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.StopError
}

// Stopped reports whether Stop has been called.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
