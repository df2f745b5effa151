package runtime

import (
	"errors"
	"testing"
)

func TestLifecycleSuccessPath(t *testing.T) {
	l := NewLifecycle()
	if l.State() != StateCreated {
		t.Fatalf("initial state = %s, want %s", l.State(), StateCreated)
	}

	for _, to := range []State{StateStarted, StateRunning} {
		if err := l.Transition(to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	if err := l.Exited(Exit{Success: true}); err != nil {
		t.Fatalf("Exited: %v", err)
	}
	if err := l.Transition(StateRemoved); err != nil {
		t.Fatalf("Transition(removed): %v", err)
	}

	if l.State() != StateRemoved {
		t.Errorf("state = %s, want %s", l.State(), StateRemoved)
	}
	if !l.Exit().Success {
		t.Error("exit not recorded as success")
	}
}

func TestLifecycleCancellation(t *testing.T) {
	l := NewLifecycle()
	l.Transition(StateStarted)
	l.Transition(StateRunning)

	if err := l.Exited(Exit{Reason: ReasonCancelled}); err != nil {
		t.Fatalf("Exited: %v", err)
	}
	if err := l.Transition(StateRemoved); err != nil {
		t.Fatalf("Transition(removed): %v", err)
	}

	exit := l.Exit()
	if exit.Success || exit.Reason != ReasonCancelled {
		t.Errorf("exit = %+v, want cancelled failure", exit)
	}
}

func TestLifecycleCreatedToRemoved(t *testing.T) {
	l := NewLifecycle()
	if err := l.Transition(StateRemoved); err != nil {
		t.Fatalf("Transition(removed): %v", err)
	}
}

func TestLifecycleInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		to   State
	}{
		{"created to running", nil, StateRunning},
		{"created to exited", nil, StateExited},
		{"started to removed", []State{StateStarted}, StateRemoved},
		{"running to removed", []State{StateStarted, StateRunning}, StateRemoved},
		{"removed to created", []State{StateRemoved}, StateCreated},
		{"removed to started", []State{StateRemoved}, StateStarted},
		{"removed to removed", []State{StateRemoved}, StateRemoved},
		{"running to started", []State{StateStarted, StateRunning}, StateStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle()
			for _, s := range tt.path {
				if err := l.Transition(s); err != nil {
					t.Fatalf("setup Transition(%s): %v", s, err)
				}
			}

			var err error
			if tt.to == StateExited {
				err = l.Exited(Exit{})
			} else {
				err = l.Transition(tt.to)
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error = %v, want %v", err, ErrInvalidTransition)
			}
		})
	}
}

func TestLifecycleTransitionRejectsExited(t *testing.T) {
	l := NewLifecycle()
	l.Transition(StateStarted)

	if err := l.Transition(StateExited); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want %v", err, ErrInvalidTransition)
	}
	if l.State() != StateStarted {
		t.Errorf("state = %s, want %s", l.State(), StateStarted)
	}
}

func TestStateString(t *testing.T) {
	if got := StateRunning.String(); got != "running" {
		t.Errorf("String() = %q, want %q", got, "running")
	}
	if got := State(42).String(); got != "state(42)" {
		t.Errorf("String() = %q, want %q", got, "state(42)")
	}
}
