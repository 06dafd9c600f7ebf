// Package tstore provides the dictionary storage engines that qtrust
// persists trust anchors into.
//
// An engine groups entries into named dictionaries. Each entry is a flat
// byte blob that is always read and written whole. Entry names share a
// fixed budget with the engine's own per-entry metadata, see tdef.KeyNameLen.
package tstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kardianos/qtrust/tdef"
)

// Engine is the persistent storage collaborator.
type Engine interface {
	// DictExists reports whether the dictionary has been created.
	DictExists(dict string) (bool, error)

	// CreateDict creates the dictionary. Creating an existing dictionary is not an error.
	CreateDict(dict string) error

	// ReadEntry returns the full contents of an entry.
	// Returns ErrNotFound if the dictionary or entry does not exist.
	ReadEntry(dict, key string) ([]byte, error)

	// WriteEntry replaces the full contents of an entry, creating it if needed.
	// Returns ErrNoDict if the dictionary does not exist.
	WriteEntry(dict, key string, data []byte) error

	// Keys lists the entry names of a dictionary.
	// Returns ErrNoDict if the dictionary does not exist.
	Keys(dict string) ([]string, error)

	// DeleteEntry removes an entry.
	// Returns ErrNotFound if the dictionary or entry does not exist.
	DeleteEntry(dict, key string) error

	// Path returns the storage location for display purposes.
	Path() string

	// Close releases any resources held by the engine.
	Close() error
}

var (
	// ErrNotFound is returned when a dictionary entry does not exist.
	ErrNotFound = errors.New("qtrust: entry not found")

	// ErrNoDict is returned when a dictionary does not exist.
	ErrNoDict = errors.New("qtrust: dictionary not found")

	// ErrKeyLength matches any KeyLengthError.
	ErrKeyLength = errors.New("qtrust: key too long")
)

// KeyLengthError is returned when an entry name exceeds tdef.MaxKeyLen.
type KeyLengthError struct {
	Key string
}

func (e KeyLengthError) Error() string {
	return fmt.Sprintf("qtrust: key of %d bytes exceeds %d byte limit", len(e.Key), tdef.MaxKeyLen)
}

func (e KeyLengthError) Is(target error) bool {
	return target == ErrKeyLength
}

// InvalidNameError is returned for dictionary or entry names an engine cannot hold.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e InvalidNameError) Error() string {
	return fmt.Sprintf("qtrust: invalid name %q: %s", e.Name, e.Reason)
}

func checkKey(key string) error {
	if key == "" {
		return InvalidNameError{Name: key, Reason: "empty"}
	}
	if len(key) > tdef.MaxKeyLen {
		return KeyLengthError{Key: key}
	}
	return nil
}

func checkDict(dict string) error {
	switch {
	case dict == "":
		return InvalidNameError{Name: dict, Reason: "empty"}
	case dict == "." || dict == "..":
		return InvalidNameError{Name: dict, Reason: "relative path element"}
	case strings.ContainsAny(dict, `/\`+"\x00"):
		return InvalidNameError{Name: dict, Reason: "contains a path separator"}
	case len(dict) > tdef.MaxKeyLen:
		return InvalidNameError{Name: dict, Reason: "too long"}
	}
	return nil
}
