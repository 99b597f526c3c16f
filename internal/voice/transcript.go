package voice

import (
	"strings"

	"github.com/MrWong99/studymate/pkg/provider/live"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Turn is a finalised span of speech committed to chat history.
type Turn struct {
	Speaker Speaker
	Text    string
}

// Update describes what changed after a message was applied.
type Update struct {
	// UserPartial and ModelPartial are the full accumulated buffers after the
	// message, empty once a turn was completed.
	UserPartial  string
	ModelPartial string

	// PartialsChanged is true when either partial value differs from before.
	PartialsChanged bool

	// Committed holds the turns finalised by this message, user first.
	Committed []Turn
}

// Reconciler accumulates transcription fragments for both speakers and
// commits them as turns on turn-complete signals.
//
// A turn boundary resets both buffers, even when only one of them had
// content. Reconciler is not safe for concurrent use; the [Manager]
// serialises access.
type Reconciler struct {
	user  strings.Builder
	model strings.Builder
}

// NewReconciler returns an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Apply folds msg into the buffers and reports the resulting state. A
// fragment delivered together with the turn-complete signal is part of the
// committed text.
func (r *Reconciler) Apply(msg live.Message) Update {
	prevUser, prevModel := r.user.String(), r.model.String()

	r.user.WriteString(msg.InputTranscription)
	r.model.WriteString(msg.OutputTranscription)

	var u Update
	if msg.TurnComplete {
		if text := strings.TrimSpace(r.user.String()); text != "" {
			u.Committed = append(u.Committed, Turn{Speaker: SpeakerUser, Text: text})
		}
		if text := strings.TrimSpace(r.model.String()); text != "" {
			u.Committed = append(u.Committed, Turn{Speaker: SpeakerModel, Text: text})
		}
		r.Reset()
	}

	u.UserPartial, u.ModelPartial = r.user.String(), r.model.String()
	u.PartialsChanged = u.UserPartial != prevUser || u.ModelPartial != prevModel
	return u
}

// Partial returns the current accumulated user and model text.
func (r *Reconciler) Partial() (user, model string) {
	return r.user.String(), r.model.String()
}

// Reset clears both buffers.
func (r *Reconciler) Reset() {
	r.user.Reset()
	r.model.Reset()
}
