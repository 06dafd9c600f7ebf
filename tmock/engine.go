// Package tmock holds test doubles for the qtrust storage, parsing and
// user interface collaborators.
package tmock

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/kardianos/qtrust/tdef"
	"github.com/kardianos/qtrust/tstore"
)

// Op names an engine operation for fault injection.
type Op string

const (
	OpDictExists  Op = "dict_exists"
	OpCreateDict  Op = "create_dict"
	OpReadEntry   Op = "read"
	OpWriteEntry  Op = "write"
	OpKeys        Op = "keys"
	OpDeleteEntry Op = "delete"
)

// FaultFunc decides whether an operation on key should fail.
// Returning nil lets the operation proceed.
type FaultFunc func(op Op, dict, key string) error

// MemEngine is an in-memory tstore.Engine.
type MemEngine struct {
	mu    sync.Mutex
	dicts map[string]map[string][]byte
	calls []string

	// Fault, if set, is consulted before every operation.
	Fault FaultFunc
}

var _ tstore.Engine = (*MemEngine)(nil)

func NewMemEngine() *MemEngine {
	return &MemEngine{dicts: make(map[string]map[string][]byte)}
}

// FailKey returns a FaultFunc that fails op on key with err.
func FailKey(op Op, key string, err error) FaultFunc {
	return func(o Op, _, k string) error {
		if o == op && k == key {
			return err
		}
		return nil
	}
}

// FailOp returns a FaultFunc that fails every op with err.
func FailOp(op Op, err error) FaultFunc {
	return func(o Op, _, _ string) error {
		if o == op {
			return err
		}
		return nil
	}
}

// FailNth returns a FaultFunc that fails only the nth (1-based) call of op.
func FailNth(op Op, n int, err error) FaultFunc {
	var mu sync.Mutex
	seen := 0
	return func(o Op, _, _ string) error {
		if o != op {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen == n {
			return err
		}
		return nil
	}
}

func (e *MemEngine) enter(op Op, dict, key string) error {
	e.calls = append(e.calls, fmt.Sprintf("%s %s/%s", op, dict, key))
	if e.Fault != nil {
		return e.Fault(op, dict, key)
	}
	return nil
}

func checkKey(key string) error {
	if key == "" {
		return tstore.InvalidNameError{Name: key, Reason: "empty"}
	}
	if len(key) > tdef.MaxKeyLen {
		return tstore.KeyLengthError{Key: key}
	}
	return nil
}

func (e *MemEngine) DictExists(dict string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpDictExists, dict, ""); err != nil {
		return false, err
	}
	_, ok := e.dicts[dict]
	return ok, nil
}

func (e *MemEngine) CreateDict(dict string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpCreateDict, dict, ""); err != nil {
		return err
	}
	if _, ok := e.dicts[dict]; !ok {
		e.dicts[dict] = make(map[string][]byte)
	}
	return nil
}

func (e *MemEngine) ReadEntry(dict, key string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpReadEntry, dict, key); err != nil {
		return nil, err
	}
	d, ok := e.dicts[dict]
	if !ok {
		return nil, tstore.ErrNotFound
	}
	v, ok := d[key]
	if !ok {
		return nil, tstore.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (e *MemEngine) WriteEntry(dict, key string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpWriteEntry, dict, key); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	d, ok := e.dicts[dict]
	if !ok {
		return tstore.ErrNoDict
	}
	d[key] = bytes.Clone(data)
	return nil
}

func (e *MemEngine) Keys(dict string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpKeys, dict, ""); err != nil {
		return nil, err
	}
	d, ok := e.dicts[dict]
	if !ok {
		return nil, tstore.ErrNoDict
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return keys, nil
}

func (e *MemEngine) DeleteEntry(dict, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpDeleteEntry, dict, key); err != nil {
		return err
	}
	d, ok := e.dicts[dict]
	if !ok {
		return tstore.ErrNotFound
	}
	if _, ok := d[key]; !ok {
		return tstore.ErrNotFound
	}
	delete(d, key)
	return nil
}

func (e *MemEngine) Path() string { return "mem" }

func (e *MemEngine) Close() error { return nil }

// Put stores raw bytes directly, creating the dictionary. No fault is consulted.
func (e *MemEngine) Put(dict, key string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.dicts[dict]
	if !ok {
		d = make(map[string][]byte)
		e.dicts[dict] = d
	}
	d[key] = bytes.Clone(data)
}

// HasDict reports whether dict exists without recording a call.
func (e *MemEngine) HasDict(dict string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.dicts[dict]
	return ok
}

// Len returns the number of entries in dict.
func (e *MemEngine) Len(dict string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dicts[dict])
}

// Calls returns the operations performed so far, formatted "op dict/key".
func (e *MemEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// ResetCalls clears the call record.
func (e *MemEngine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}
