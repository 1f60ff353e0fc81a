package statemachine

import "testing"

const (
	sOpen State = iota
	sHalfClosed
	sClosed
)

func testStates() []Conf {
	return []Conf{
		sOpen:       {Name: "open", Flags: Initial, Allowed: Bit(sHalfClosed)},
		sHalfClosed: {Name: "half-closed", Allowed: Bit(sClosed)},
		sClosed:     {Name: "closed", Flags: Final},
	}
}

func TestMoveFollowsAllowedTransitions(t *testing.T) {
	m := New("conn", testStates(), nil, sOpen)

	m.Move(sHalfClosed)
	if m.State() != sHalfClosed {
		t.Fatalf("expected half-closed, got %s", m.Name())
	}

	m.Move(sClosed)
	if !m.IsFinal() {
		t.Fatal("closed should be final")
	}
}

func TestMovePanicsOnIllegalTransition(t *testing.T) {
	m := New("conn", testStates(), nil, sOpen)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic moving directly from open to closed")
		}
	}()
	m.Move(sClosed)
}

func TestMovePanicsOnInvariantViolation(t *testing.T) {
	states := testStates()
	// Make every state reachable from every other, so the only thing that
	// can reject the move is the invariant.
	for i := range states {
		states[i].Allowed = Bit(sOpen) | Bit(sHalfClosed) | Bit(sClosed)
	}
	alwaysFalse := func(prev, cur State) bool { return false }
	m := New("conn", states, alwaysFalse, sOpen)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when invariant rejects the transition")
		}
	}()
	m.Move(sHalfClosed)
}

func TestNewPanicsWhenInitialNotMarked(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing machine with non-initial start state")
		}
	}()
	New("conn", testStates(), nil, sHalfClosed)
}
