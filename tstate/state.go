// Package tstate tracks the phases of a multi-step operation and rejects
// phase changes that were not declared up front.
package tstate

import (
	"fmt"
	"sync"
)

// Phase is a step of an operation.
type Phase interface {
	comparable
	fmt.Stringer
}

// Edge declares that an operation may move From one phase To another.
type Edge[P Phase] struct {
	From P
	To   P
}

// InvalidMoveError is returned when a move was not declared.
type InvalidMoveError[P Phase] struct {
	From P
	To   P
}

func (e InvalidMoveError[P]) Error() string {
	return fmt.Sprintf("qtrust: invalid phase change %s -> %s", e.From, e.To)
}

// Machine records the current phase and every phase visited.
type Machine[P Phase] struct {
	mu      sync.Mutex
	current P
	trail   []P
	edges   map[Edge[P]]bool
	onMove  func(from, to P)
}

// New returns a machine in phase start. onMove, if not nil, is called
// after every accepted move.
func New[P Phase](start P, edges []Edge[P], onMove func(from, to P)) *Machine[P] {
	m := &Machine[P]{
		current: start,
		trail:   []P{start},
		edges:   make(map[Edge[P]]bool, len(edges)),
		onMove:  onMove,
	}
	for _, e := range edges {
		m.edges[e] = true
	}
	return m
}

// Move changes to phase to if the move was declared.
func (m *Machine[P]) Move(to P) error {
	m.mu.Lock()
	from := m.current
	if !m.edges[Edge[P]{From: from, To: to}] {
		m.mu.Unlock()
		return InvalidMoveError[P]{From: from, To: to}
	}
	m.current = to
	m.trail = append(m.trail, to)
	m.mu.Unlock()

	if m.onMove != nil {
		m.onMove(from, to)
	}
	return nil
}

// Current returns the current phase.
func (m *Machine[P]) Current() P {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Trail returns every phase visited, starting with the initial phase.
func (m *Machine[P]) Trail() []P {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]P(nil), m.trail...)
}
