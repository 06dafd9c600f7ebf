package tstate

import (
	"errors"
	"testing"
)

type step int

const (
	stepA step = iota
	stepB
	stepC
)

func (s step) String() string {
	return [...]string{"a", "b", "c"}[s]
}

func TestMachine(t *testing.T) {
	var moves []string
	m := New(stepA, []Edge[step]{
		{From: stepA, To: stepB},
		{From: stepB, To: stepC},
	}, func(from, to step) {
		moves = append(moves, from.String()+">"+to.String())
	})

	if got := m.Current(); got != stepA {
		t.Fatalf("Current = %v, want a", got)
	}
	if err := m.Move(stepC); err == nil {
		t.Fatal("expected error moving a -> c")
	} else {
		var ime InvalidMoveError[step]
		if !errors.As(err, &ime) || ime.From != stepA || ime.To != stepC {
			t.Fatalf("Move error = %v", err)
		}
	}
	if err := m.Move(stepB); err != nil {
		t.Fatalf("Move(b): %v", err)
	}
	if err := m.Move(stepC); err != nil {
		t.Fatalf("Move(c): %v", err)
	}
	if got := m.Current(); got != stepC {
		t.Fatalf("Current = %v, want c", got)
	}

	trail := m.Trail()
	if len(trail) != 3 || trail[0] != stepA || trail[1] != stepB || trail[2] != stepC {
		t.Fatalf("Trail = %v", trail)
	}
	if len(moves) != 2 || moves[0] != "a>b" || moves[1] != "b>c" {
		t.Fatalf("onMove calls = %v", moves)
	}
}
