package runtime

import (
	"fmt"
	"sync"
)

// Lifecycle state of a sandbox.
type State int

const (
	StateCreated State = iota // Container exists, no task yet.
	StateStarted              // Task created with its streams attached.
	StateRunning              // Task process started.
	StateExited               // Task process exited or was killed.
	StateRemoved              // Task and container deleted. Terminal.
)

// Exit reason recorded when the caller cancels a build.
const ReasonCancelled = "cancelled"

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// How a sandbox process ended.
type Exit struct {
	Success bool   // Process exited with code 0.
	Reason  string // Why the process ended unsuccessfully, if known.
}

var transitions = map[State][]State{
	StateCreated: {StateStarted, StateRemoved},
	StateStarted: {StateRunning, StateExited},
	StateRunning: {StateExited},
	StateExited:  {StateRemoved},
}

// Tracks the state of one sandbox. Safe for concurrent use.
type Lifecycle struct {
	mu    sync.Mutex
	state State
	exit  Exit
}

// Returns a lifecycle in [StateCreated].
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateCreated}
}

// Returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Returns how the process ended. Only meaningful once the sandbox has
// reached [StateExited].
func (l *Lifecycle) Exit() Exit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exit
}

// Moves to the given state, which must not be [StateExited].
func (l *Lifecycle) Transition(to State) error {
	if to == StateExited {
		return fmt.Errorf("%w: use Exited to enter %s", ErrInvalidTransition, to)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(to)
}

// Moves to [StateExited] recording the outcome.
func (l *Lifecycle) Exited(exit Exit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.move(StateExited); err != nil {
		return err
	}
	l.exit = exit
	return nil
}

func (l *Lifecycle) move(to State) error {
	for _, next := range transitions[l.state] {
		if next == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, l.state, to)
}
