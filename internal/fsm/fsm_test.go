package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle
	steps := []struct {
		event Event
		want  State
	}{
		{EventStart, StateRequesting},
		{EventRequested, StateNegotiating},
		{EventAccepted, StateMarker},
		{EventHighlighted, StateAwaitingTrigger},
		{EventTriggered, StateSettling},
		{EventSettled, StateCapturing},
		{EventTaken, StateAwaitingAck},
		{EventNext, StateMarker},
		{EventHighlighted, StateAwaitingTrigger},
		{EventTriggered, StateSettling},
		{EventSettled, StateCapturing},
		{EventTaken, StateAwaitingAck},
		{EventWaiting, StateCompleted},
		{EventReset, StateIdle},
	}

	for _, step := range steps {
		next, err := Transition(s, step.event)
		require.NoError(t, err)
		require.Equal(t, step.want, next)
		s = next
	}
}

func TestTransitionFailFromActiveStatesAborts(t *testing.T) {
	states := []State{
		StateRequesting, StateNegotiating, StateMarker, StateAwaitingTrigger,
		StateSettling, StateCapturing, StateAwaitingAck,
	}
	for _, state := range states {
		next, err := Transition(state, EventFail)
		require.NoError(t, err)
		require.Equal(t, StateAborted, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle fail invalid", state: StateIdle, event: EventFail, want: StateIdle, wantErr: true},
		{name: "idle triggered invalid", state: StateIdle, event: EventTriggered, want: StateIdle, wantErr: true},
		{name: "negotiating next invalid", state: StateNegotiating, event: EventNext, want: StateNegotiating, wantErr: true},
		{name: "marker taken invalid", state: StateMarker, event: EventTaken, want: StateMarker, wantErr: true},
		{name: "awaiting trigger settled invalid", state: StateAwaitingTrigger, event: EventSettled, want: StateAwaitingTrigger, wantErr: true},
		{name: "capturing next invalid", state: StateCapturing, event: EventNext, want: StateCapturing, wantErr: true},
		{name: "completed fail invalid", state: StateCompleted, event: EventFail, want: StateCompleted, wantErr: true},
		{name: "aborted start invalid", state: StateAborted, event: EventStart, want: StateAborted, wantErr: true},
		{name: "aborted reset valid", state: StateAborted, event: EventReset, want: StateIdle, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

func TestTerminal(t *testing.T) {
	require.True(t, StateCompleted.Terminal())
	require.True(t, StateAborted.Terminal())
	require.False(t, StateAwaitingAck.Terminal())
	require.False(t, StateIdle.Terminal())
}
