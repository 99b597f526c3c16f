// Package live defines the Provider interface for realtime voice backends.
//
// A live provider wraps a bidirectional session with a speech model: the
// client streams microphone audio in, and the model streams synthesised audio
// and transcriptions of both sides back. Unlike request/response LLMs, the
// session is stateful and event driven. Implementations report lifecycle and
// content through a [Handler] whose methods are invoked in order from a single
// receive goroutine.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"

	"github.com/MrWong99/studymate/pkg/audio"
)

// Message is one content event from the model. Any combination of fields may
// be set on a single message.
type Message struct {
	// InputTranscription is a fragment of the transcription of the user's
	// speech.
	InputTranscription string

	// OutputTranscription is a fragment of the transcription of the model's
	// speech.
	OutputTranscription string

	// Audio holds base64-encoded 16-bit PCM payloads at the output rate, in
	// arrival order.
	Audio []string

	// TurnComplete marks the end of a conversational turn.
	TurnComplete bool

	// Interrupted reports that the model stopped its reply because the user
	// started speaking.
	Interrupted bool
}

// Handler receives session events. Calls are serialised: a handler method is
// never invoked concurrently with another method of the same handler, and no
// method is invoked after the session has been closed locally.
type Handler interface {
	// OnOpen is called once the remote end has accepted the session setup.
	OnOpen()

	// OnMessage is called for every content event.
	OnMessage(msg Message)

	// OnError is called when the session fails. No further events follow.
	OnError(err error)

	// OnClose is called when the remote end closes the session normally. No
	// further events follow.
	OnClose(reason string)
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Instructions is the system instruction for the model.
	Instructions string

	// Voice is the prebuilt voice name. Empty selects the provider default.
	Voice string

	// InputTranscription requests transcription of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcription of the model's speech.
	OutputTranscription bool
}

// Session is an open live session.
type Session interface {
	// SendRealtimeInput streams one captured audio chunk to the model.
	SendRealtimeInput(ctx context.Context, chunk audio.Chunk) error

	// Close terminates the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any live voice backend.
type Provider interface {
	// Connect dials the backend and sends the session setup. Events for the
	// session are delivered to h. The returned Session accepts input
	// immediately, but the remote end only processes it after OnOpen.
	Connect(ctx context.Context, cfg SessionConfig, h Handler) (Session, error)
}

// HandlerFuncs adapts plain functions to [Handler]. Nil fields are ignored.
type HandlerFuncs struct {
	Open    func()
	Message func(Message)
	Error   func(error)
	Close   func(string)
}

var _ Handler = HandlerFuncs{}

// OnOpen implements [Handler].
func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

// OnMessage implements [Handler].
func (h HandlerFuncs) OnMessage(msg Message) {
	if h.Message != nil {
		h.Message(msg)
	}
}

// OnError implements [Handler].
func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// OnClose implements [Handler].
func (h HandlerFuncs) OnClose(reason string) {
	if h.Close != nil {
		h.Close(reason)
	}
}
