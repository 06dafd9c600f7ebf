package tstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirConfig configures a DirEngine.
type DirConfig struct {
	// Dir is the root directory. "~" and environment variables are expanded.
	Dir string

	// Sealed encrypts entry contents at rest.
	Sealed bool
}

// DirEngine implements Engine on the filesystem. Each dictionary is a
// directory and each entry a file. File names are the base64url form of
// the entry name so any key bytes can be stored.
type DirEngine struct {
	dir    string
	sealed bool
	mu     sync.RWMutex
}

var _ Engine = (*DirEngine)(nil)

// OpenDir creates the root directory if needed and returns an engine over it.
func OpenDir(cfg DirConfig) (*DirEngine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	dir := ExpandPath(cfg.Dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data store directory: %w", err)
	}
	return &DirEngine{dir: dir, sealed: cfg.Sealed}, nil
}

var nameEncoding = base64.RawURLEncoding

func (e *DirEngine) dictPath(dict string) string {
	return filepath.Join(e.dir, dict)
}

func (e *DirEngine) entryPath(dict, key string) string {
	return filepath.Join(e.dir, dict, nameEncoding.EncodeToString([]byte(key)))
}

// DictExists reports whether the dictionary directory exists.
func (e *DirEngine) DictExists(dict string) (bool, error) {
	if err := checkDict(dict); err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	fi, err := os.Stat(e.dictPath(dict))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, fmt.Errorf("qtrust: dictionary %q is not a directory", dict)
	}
	return true, nil
}

// CreateDict creates the dictionary directory.
func (e *DirEngine) CreateDict(dict string) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return os.MkdirAll(e.dictPath(dict), 0700)
}

// ReadEntry reads and, for sealed engines, opens the entry file.
func (e *DirEngine) ReadEntry(dict, key string) ([]byte, error) {
	if err := checkDict(dict); err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	data, err := os.ReadFile(e.entryPath(dict, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !e.sealed {
		return data, nil
	}
	plain, err := unseal(data)
	if err != nil {
		return nil, fmt.Errorf("unseal %q: %w", key, err)
	}
	return plain, nil
}

// WriteEntry atomically replaces the entry file.
func (e *DirEngine) WriteEntry(dict, key string, data []byte) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if fi, err := os.Stat(e.dictPath(dict)); err != nil || !fi.IsDir() {
		return ErrNoDict
	}
	if e.sealed {
		sealed, err := seal(data)
		if err != nil {
			return fmt.Errorf("seal %q: %w", key, err)
		}
		data = sealed
	}
	return atomicWriteFile(e.entryPath(dict, key), data, 0600)
}

// Keys lists the decoded entry names. Files that are not entries are skipped.
func (e *DirEngine) Keys(dict string) ([]string, error) {
	if err := checkDict(dict); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	list, err := os.ReadDir(e.dictPath(dict))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoDict
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(list))
	for _, de := range list {
		if !de.Type().IsRegular() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		name, err := nameEncoding.DecodeString(de.Name())
		if err != nil {
			continue
		}
		keys = append(keys, string(name))
	}
	return keys, nil
}

// DeleteEntry removes the entry file.
func (e *DirEngine) DeleteEntry(dict, key string) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	err := os.Remove(e.entryPath(dict, key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Path returns the root directory.
func (e *DirEngine) Path() string {
	return e.dir
}

// Close releases resources.
func (e *DirEngine) Close() error {
	return nil
}

// atomicWriteFile writes data to a temp file and renames it to the target path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}

// ExpandPath expands a leading ~/ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.Expand(path, os.Getenv)
}
