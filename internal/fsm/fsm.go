package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle            State = "idle"
	StateRequesting      State = "requesting"
	StateNegotiating     State = "negotiating"
	StateMarker          State = "marker"
	StateAwaitingTrigger State = "awaiting_trigger"
	StateSettling        State = "settling"
	StateCapturing       State = "capturing"
	StateAwaitingAck     State = "awaiting_ack"
	StateCompleted       State = "completed"
	StateAborted         State = "aborted"
)

const (
	EventStart       Event = "start"
	EventRequested   Event = "requested"
	EventAccepted    Event = "accepted"
	EventHighlighted Event = "highlighted"
	EventTriggered   Event = "triggered"
	EventSettled     Event = "settled"
	EventTaken       Event = "taken"
	EventNext        Event = "next"
	EventWaiting     Event = "waiting"
	EventFail        Event = "fail"
	EventReset       Event = "reset"
)

// Terminal reports whether s ends a calibration run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		switch current {
		case StateIdle, StateCompleted, StateAborted:
			return current, invalidTransition(current, event)
		default:
			return StateAborted, nil
		}
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRequesting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRequesting:
		switch event {
		case EventRequested:
			return StateNegotiating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateNegotiating:
		switch event {
		case EventAccepted:
			return StateMarker, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateMarker:
		switch event {
		case EventHighlighted:
			return StateAwaitingTrigger, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingTrigger:
		switch event {
		case EventTriggered:
			return StateSettling, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSettling:
		switch event {
		case EventSettled:
			return StateCapturing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCapturing:
		switch event {
		case EventTaken:
			return StateAwaitingAck, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingAck:
		switch event {
		case EventNext:
			return StateMarker, nil
		case EventWaiting:
			return StateCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCompleted, StateAborted:
		switch event {
		case EventReset:
			return StateIdle, nil
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
