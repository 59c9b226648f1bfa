package session

import "testing"

func TestState_CanTransition(t *testing.T) {
	all := []State{StateIdle, StateListening, StatePaused, StateProcessing, StateCompleted, StateError}
	allowed := map[[2]State]bool{
		{StateIdle, StateListening}:       true,
		{StateListening, StatePaused}:     true,
		{StateListening, StateProcessing}: true,
		{StateListening, StateError}:      true,
		{StatePaused, StateListening}:     true,
		{StatePaused, StateProcessing}:    true,
		{StateProcessing, StateCompleted}: true,
		{StateCompleted, StateListening}:  true,
		{StateError, StateListening}:      true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]State{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestState_Active(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateIdle, false},
		{StateListening, true},
		{StatePaused, true},
		{StateProcessing, false},
		{StateCompleted, false},
		{StateError, false},
	}
	for _, tt := range tests {
		if got := tt.state.Active(); got != tt.want {
			t.Errorf("%s.Active() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
