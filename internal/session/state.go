/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import "fmt"

// State is a playback session state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateBuffering    State = "buffering"
	StatePlaying      State = "playing"
	StatePaused       State = "paused"
	StateIdle         State = "idle" // transient: deciding what plays next
	StateDestroyed    State = "destroyed"
)

// States lists every state.
var States = []State{
	StateDisconnected,
	StateConnecting,
	StateReady,
	StateBuffering,
	StatePlaying,
	StatePaused,
	StateIdle,
	StateDestroyed,
}

// Trigger is an input to the state machine.
type Trigger string

const (
	TriggerConnect      Trigger = "connect"
	TriggerSinkReady    Trigger = "sink_ready"
	TriggerSinkFailed   Trigger = "sink_failed"
	TriggerSinkLost     Trigger = "sink_lost"
	TriggerPlay         Trigger = "play"
	TriggerSkip         Trigger = "skip"
	TriggerAdvance      Trigger = "advance"
	TriggerBound        Trigger = "bound"
	TriggerResolveFail  Trigger = "resolve_failed"
	TriggerHalt         Trigger = "halt"
	TriggerPause        Trigger = "pause"
	TriggerResume       Trigger = "resume"
	TriggerTrackEnded   Trigger = "track_ended"
	TriggerRuntimeError Trigger = "runtime_error"
	TriggerDrained      Trigger = "drained"
	TriggerStop         Trigger = "stop"
	TriggerDestroy      Trigger = "destroy"
)

// Triggers lists every trigger.
var Triggers = []Trigger{
	TriggerConnect,
	TriggerSinkReady,
	TriggerSinkFailed,
	TriggerSinkLost,
	TriggerPlay,
	TriggerSkip,
	TriggerAdvance,
	TriggerBound,
	TriggerResolveFail,
	TriggerHalt,
	TriggerPause,
	TriggerResume,
	TriggerTrackEnded,
	TriggerRuntimeError,
	TriggerDrained,
	TriggerStop,
	TriggerDestroy,
}

type transitionKey struct {
	from    State
	trigger Trigger
}

// transitions is the complete state machine. Pairs not listed are invalid.
var transitions = buildTransitions()

func buildTransitions() map[transitionKey]State {
	t := map[transitionKey]State{
		{StateDisconnected, TriggerConnect}:   StateConnecting,
		{StateConnecting, TriggerSinkReady}:   StateReady,
		{StateConnecting, TriggerSinkFailed}:  StateDisconnected,
		{StateBuffering, TriggerBound}:        StatePlaying,
		{StateBuffering, TriggerResolveFail}:  StateIdle,
		{StatePlaying, TriggerPause}:          StatePaused,
		{StatePaused, TriggerResume}:          StatePlaying,
		{StatePlaying, TriggerTrackEnded}:     StateIdle,
		{StatePaused, TriggerTrackEnded}:      StateIdle,
		{StatePlaying, TriggerRuntimeError}:   StateIdle,
		{StatePaused, TriggerRuntimeError}:    StateIdle,
		{StateIdle, TriggerAdvance}:           StateBuffering,
		{StateIdle, TriggerHalt}:              StateReady,
		{StateIdle, TriggerDrained}:           StateDisconnected,
	}

	for _, from := range []State{StateReady, StateIdle, StatePlaying, StateBuffering} {
		t[transitionKey{from, TriggerPlay}] = StateBuffering
	}
	for _, from := range []State{StateReady, StatePlaying, StatePaused, StateBuffering, StateIdle} {
		t[transitionKey{from, TriggerSkip}] = StateIdle
		t[transitionKey{from, TriggerSinkLost}] = StateDisconnected
	}
	for _, from := range States {
		if from == StateDestroyed {
			continue
		}
		t[transitionKey{from, TriggerStop}] = StateDisconnected
		t[transitionKey{from, TriggerDestroy}] = StateDestroyed
	}
	return t
}

// next returns the target state for trigger fired in from.
func next(from State, trigger Trigger) (State, error) {
	to, ok := transitions[transitionKey{from, trigger}]
	if !ok {
		return from, fmt.Errorf("%w: %s <- %s", ErrInvalidState, from, trigger)
	}
	return to, nil
}

// Allowed reports whether trigger is valid in state from.
func Allowed(from State, trigger Trigger) bool {
	_, ok := transitions[transitionKey{from, trigger}]
	return ok
}
