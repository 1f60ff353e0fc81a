// Package statemachine is a small table-driven helper used by the thread
// pool planner: named states, an
// allowed-transition bitmask per state, and an invariant hook that runs on
// every move. A violated invariant is a design-law violation, not a user
// error, and aborts the process — see spec §4.2 and §7.
package statemachine

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// State identifies one named state by small integer index.
type State int

// Flags mark a state as a valid starting or terminal point.
type Flags uint8

const (
	// Initial marks the state a machine is constructed in.
	Initial Flags = 1 << iota
	// Final marks a state with no further transitions.
	Final
)

// Conf describes one state: its display name, its flags, and the bitmask of
// states reachable directly from it (bit i set means State(i) is allowed).
type Conf struct {
	Name    string
	Flags   Flags
	Allowed uint64
}

// Bit returns the bitmask contribution of a single state, for building
// Conf.Allowed values: Bit(A) | Bit(B).
func Bit(s State) uint64 {
	return 1 << uint(s)
}

// Invariant is evaluated after every successful transition, given the state
// the machine was in before the move and the state it is in now. It must
// return true; a false return is a fatal design-law violation.
type Invariant func(prev, cur State) bool

// Machine is a table-driven state machine. It is not safe for concurrent use;
// callers that move a Machine from multiple goroutines must hold their own
// lock around Move, exactly as the pool's planner holds the pool mutex.
type Machine struct {
	name      string
	states    []Conf
	invariant Invariant
	current   State
}

// New constructs a Machine with the given human-readable name (used in log
// and panic messages), state table, optional invariant (nil disables
// checking), and initial state. It panics if initial is not marked Initial
// in the table, matching the source's sm_init precondition.
func New(name string, states []Conf, invariant Invariant, initial State) *Machine {
	if int(initial) >= len(states) {
		panic(fmt.Sprintf("statemachine %s: initial state %d out of range", name, initial))
	}
	if states[initial].Flags&Initial == 0 {
		panic(fmt.Sprintf("statemachine %s: state %d is not marked Initial", name, initial))
	}
	return &Machine{
		name:      name,
		states:    states,
		invariant: invariant,
		current:   initial,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.current
}

// Name returns the configured display name of the current state.
func (m *Machine) Name() string {
	return m.states[m.current].Name
}

// IsFinal reports whether the current state is marked Final.
func (m *Machine) IsFinal() bool {
	return m.states[m.current].Flags&Final != 0
}

// Move transitions the machine to next. It aborts the process if next is not
// reachable from the current state, or if the invariant rejects the result —
// both are design-law violations per spec §4.2/§7, never recoverable errors.
func (m *Machine) Move(next State) {
	prev := m.current
	if int(next) >= len(m.states) {
		log.Panic().Str("sm", m.name).Int("prev", int(prev)).Int("next", int(next)).
			Msg("statemachine: transition to unknown state")
	}
	allowed := m.states[prev].Allowed
	if allowed&Bit(next) == 0 {
		log.Panic().
			Str("sm", m.name).
			Str("prev", m.states[prev].Name).
			Str("next", m.states[next].Name).
			Msg("statemachine: illegal transition")
	}

	m.current = next

	if m.invariant != nil && !m.invariant(prev, next) {
		log.Panic().
			Str("sm", m.name).
			Str("prev", m.states[prev].Name).
			Str("next", m.states[next].Name).
			Msg("statemachine: invariant violated after transition")
	}

	log.Trace().Str("sm", m.name).Str("prev", m.states[prev].Name).Str("next", m.states[next].Name).Msg("statemachine: transition")
}
