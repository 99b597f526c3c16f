package voice

import "fmt"

// State is the lifecycle state of a voice session.
type State string

// Event drives a [State] transition.
type Event string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateClosing  State = "closing"
)

const (
	EventStart  Event = "start"
	EventOpen   Event = "open"
	EventStop   Event = "stop"
	EventClosed Event = "closed"
	EventFail   Event = "fail"
)

// Transition returns the state reached from current on event.
//
// Starting is allowed from Closing so that a new session may be requested
// while the previous teardown is still settling. Stop is accepted from every
// state.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateStarting, nil
		case EventStop:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStarting:
		switch event {
		case EventOpen:
			return StateActive, nil
		case EventStop, EventFail:
			return StateClosing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateActive:
		switch event {
		case EventStop, EventFail:
			return StateClosing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosing:
		switch event {
		case EventStart:
			return StateStarting, nil
		case EventClosed:
			return StateIdle, nil
		case EventStop, EventFail:
			return StateClosing, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
