package contractsupport

import (
	"fmt"
	"slices"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow"
)

// StateMachine tracks a state that may only move along allowed transitions.
// It is safe for concurrent use.
type StateMachine[S comparable] struct {
	mu      sync.Mutex
	state   S
	allowed map[S][]S
}

// NewStateMachine starts in initial. States missing from allowed are terminal.
func NewStateMachine[S comparable](initial S, allowed map[S][]S) *StateMachine[S] {
	return &StateMachine[S]{state: initial, allowed: allowed}
}

// State returns the current state.
func (sm *StateMachine[S]) State() S {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return sm.state
}

// CanTransitionTo reports whether moving to next is allowed.
func (sm *StateMachine[S]) CanTransitionTo(next S) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return slices.Contains(sm.allowed[sm.state], next)
}

// TransitionTo moves to next or fails with InvalidInput.
func (sm *StateMachine[S]) TransitionTo(next S) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !slices.Contains(sm.allowed[sm.state], next) {
		return escrow.InvalidInput("state", fmt.Sprintf("transition %v -> %v is not allowed", sm.state, next))
	}

	sm.state = next

	return nil
}
