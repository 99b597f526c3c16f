// Package audio defines the PCM codec, audio data types and the device
// abstractions used by the StudyMate voice pipeline.
//
// The device model mirrors a browser-style audio graph:
//
//   - [Platform] acquires microphone streams and creates audio contexts.
//   - [CaptureContext] turns a [MediaStream] into a source [Node] and a
//     processor [Node] that delivers fixed-size frames to a [FrameFunc].
//   - [PlaybackContext] exposes an output clock and schedules decoded
//     [PlaybackUnit] values at absolute offsets on that clock.
//
// Implementations live in sub-packages (audio/pulse for PulseAudio and
// PipeWire, audio/mock for tests). All interfaces must be safe for
// concurrent use.
package audio

import (
	"context"
	"time"
)

// FrameFunc receives one frame of mono samples from a processor node. It is
// invoked on the audio subsystem's goroutine and must not block. The slice is
// only valid for the duration of the call.
type FrameFunc func(frame []float32)

// MediaStream is an acquired microphone stream.
type MediaStream interface {
	// StopTracks releases the microphone. Safe to call more than once.
	StopTracks() error
}

// Node is a connected element of a capture graph.
type Node interface {
	// Disconnect detaches the node. Safe to call more than once.
	Disconnect() error
}

// Context is the part shared by capture and playback contexts.
type Context interface {
	// SampleRate is the rate the context runs at.
	SampleRate() int

	// CurrentTime returns the context clock, starting at 0 when created.
	CurrentTime() time.Duration

	// Closed reports whether Close has been called.
	Closed() bool

	// Close releases the context. Returns an error when already closed.
	Close() error
}

// CaptureContext builds the capture graph for one session.
type CaptureContext interface {
	Context

	// NewSource wraps stream as a source node.
	NewSource(stream MediaStream) (Node, error)

	// NewProcessor connects src to a processor that calls fn with frames of
	// frameSize samples once the node is created.
	NewProcessor(src Node, frameSize int, fn FrameFunc) (Node, error)
}

// Source is a scheduled playback unit that can be cancelled.
type Source interface {
	// Stop cancels playback. Stopping an already finished source is a no-op.
	Stop() error
}

// PlaybackContext schedules output audio on its own clock.
type PlaybackContext interface {
	Context

	// Schedule plays unit starting at unit.Start. onEnded is called once when
	// the unit finishes naturally; it is not called after Stop.
	Schedule(unit PlaybackUnit, onEnded func()) (Source, error)
}

// Platform is the entry point to an audio backend.
type Platform interface {
	// OpenMicrophone requests microphone access.
	OpenMicrophone(ctx context.Context) (MediaStream, error)

	// NewCaptureContext creates a capture context running at sampleRate.
	NewCaptureContext(sampleRate int) (CaptureContext, error)

	// NewPlaybackContext creates a playback context running at sampleRate.
	NewPlaybackContext(sampleRate int) (PlaybackContext, error)
}
