// Package tdef holds the shared definitions for qtrust: the persisted
// trust anchor record, its storage key schemes and the error values
// returned by the store and codec layers.
package tdef

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Dict is the namespace holding trusted TLS certificate authorities.
	Dict = "tls.trusted"

	// VersionKey is reserved for a namespace schema-version marker.
	// Nothing writes it yet.
	VersionKey = "__version"

	// ReservedPrefix marks namespace metadata keys.
	ReservedPrefix = "__"
)

// KeyNameLen is the per-entry name budget of the storage engine:
// 127 bytes less the address, length, reserved (u64 each), flags and
// age (u32 each) fields.
const KeyNameLen = 127 - 8 - 8 - 8 - 4 - 4

// MaxKeyLen is the longest key text that fits KeyNameLen with its terminator.
const MaxKeyLen = KeyNameLen - 1

var (
	// ErrReservedKey matches any ReservedKeyError.
	ErrReservedKey = errors.New("qtrust: reserved key")

	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("qtrust: key is empty")
)

// ReservedKeyError is returned when a write uses a key with the reserved prefix.
type ReservedKeyError struct {
	Key string
}

func (e ReservedKeyError) Error() string {
	return fmt.Sprintf("qtrust: may not set key %q beginning with %q", e.Key, ReservedPrefix)
}

func (e ReservedKeyError) Is(target error) bool {
	return target == ErrReservedKey
}

// IsReserved reports whether key is in the reserved metadata space.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// CheckWriteKey validates a key for any write path.
func CheckWriteKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if IsReserved(key) {
		return ReservedKeyError{Key: key}
	}
	return nil
}
