package session

import "slices"

// State is the lifecycle stage of a recording session.
type State string

const (
	// StateIdle is a session that has never been started.
	StateIdle State = "idle"

	// StateListening has an open recognizer stream.
	StateListening State = "listening"

	// StatePaused keeps the transcript but holds no recognizer stream.
	StatePaused State = "paused"

	// StateProcessing is synthesising the note after stop. The note is not
	// available in this state.
	StateProcessing State = "processing"

	// StateCompleted holds a synthesised note.
	StateCompleted State = "completed"

	// StateError follows a fatal recognizer failure. Start begins a new
	// attempt.
	StateError State = "error"
)

var transitions = map[State][]State{
	StateIdle:       {StateListening},
	StateListening:  {StatePaused, StateProcessing, StateError},
	StatePaused:     {StateListening, StateProcessing},
	StateProcessing: {StateCompleted},
	StateCompleted:  {StateListening},
	StateError:      {StateListening},
}

// CanTransition reports whether to is reachable from s in one step.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// Active reports whether the session holds or may resume a recognizer
// stream.
func (s State) Active() bool {
	return s == StateListening || s == StatePaused
}
