//go:build windows

package tstore

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// RegistryEngine implements Engine on the Windows registry. Each dictionary
// is a subkey and each entry a binary value named by the base64url form of
// the entry name. Values are sealed with DPAPI.
type RegistryEngine struct {
	hive    registry.Key
	keyPath string
}

var _ Engine = (*RegistryEngine)(nil)

// OpenRegistry returns an engine rooted at path.
// Path format: "HIVE/path/to/key" where HIVE is LM, LOCAL_MACHINE, CU or CURRENT_USER.
func OpenRegistry(path string) (*RegistryEngine, error) {
	path = strings.ReplaceAll(path, "/", `\`)

	hiveStr, keyPath, found := strings.Cut(path, `\`)
	if !found {
		return nil, fmt.Errorf("invalid registry path: missing hive prefix (use LM/ or CU/)")
	}

	var hive registry.Key
	switch strings.ToUpper(hiveStr) {
	case "LM", "LOCAL_MACHINE":
		hive = registry.LOCAL_MACHINE
	case "CU", "CURRENT_USER":
		hive = registry.CURRENT_USER
	default:
		return nil, fmt.Errorf("invalid registry hive: %s (use LM, LOCAL_MACHINE, CU, or CURRENT_USER)", hiveStr)
	}

	key, _, err := registry.CreateKey(hive, keyPath, registry.ALL_ACCESS)
	if err != nil {
		return nil, fmt.Errorf("create registry key: %w", err)
	}
	key.Close()

	return &RegistryEngine{hive: hive, keyPath: keyPath}, nil
}

func (e *RegistryEngine) dictPath(dict string) string {
	return e.keyPath + `\` + dict
}

func (e *RegistryEngine) openDict(dict string, access uint32) (registry.Key, error) {
	k, err := registry.OpenKey(e.hive, e.dictPath(dict), access)
	if errors.Is(err, registry.ErrNotExist) {
		return 0, ErrNoDict
	}
	return k, err
}

// DictExists reports whether the dictionary subkey exists.
func (e *RegistryEngine) DictExists(dict string) (bool, error) {
	if err := checkDict(dict); err != nil {
		return false, err
	}
	k, err := e.openDict(dict, registry.QUERY_VALUE)
	if errors.Is(err, ErrNoDict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	k.Close()
	return true, nil
}

// CreateDict creates the dictionary subkey.
func (e *RegistryEngine) CreateDict(dict string) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	k, _, err := registry.CreateKey(e.hive, e.dictPath(dict), registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("create registry key: %w", err)
	}
	return k.Close()
}

// ReadEntry reads and unseals an entry value.
func (e *RegistryEngine) ReadEntry(dict, key string) ([]byte, error) {
	if err := checkDict(dict); err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	k, err := e.openDict(dict, registry.QUERY_VALUE)
	if errors.Is(err, ErrNoDict) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer k.Close()

	data, _, err := k.GetBinaryValue(nameEncoding.EncodeToString([]byte(key)))
	if errors.Is(err, registry.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	plain, err := unseal(data)
	if err != nil {
		return nil, fmt.Errorf("unseal %q: %w", key, err)
	}
	return plain, nil
}

// WriteEntry seals and stores an entry value.
func (e *RegistryEngine) WriteEntry(dict, key string, data []byte) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	k, err := e.openDict(dict, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()

	sealed, err := seal(data)
	if err != nil {
		return fmt.Errorf("seal %q: %w", key, err)
	}
	return k.SetBinaryValue(nameEncoding.EncodeToString([]byte(key)), sealed)
}

// Keys lists the decoded value names of the dictionary.
func (e *RegistryEngine) Keys(dict string) ([]string, error) {
	if err := checkDict(dict); err != nil {
		return nil, err
	}
	k, err := e.openDict(dict, registry.QUERY_VALUE)
	if err != nil {
		return nil, err
	}
	defer k.Close()

	names, err := k.ReadValueNames(0)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		name, err := nameEncoding.DecodeString(n)
		if err != nil {
			continue
		}
		keys = append(keys, string(name))
	}
	return keys, nil
}

// DeleteEntry removes an entry value.
func (e *RegistryEngine) DeleteEntry(dict, key string) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	k, err := e.openDict(dict, registry.SET_VALUE)
	if errors.Is(err, ErrNoDict) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer k.Close()

	err = k.DeleteValue(nameEncoding.EncodeToString([]byte(key)))
	if errors.Is(err, registry.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Path returns the registry location for display.
func (e *RegistryEngine) Path() string {
	var hiveStr string
	switch e.hive {
	case registry.LOCAL_MACHINE:
		hiveStr = "HKLM"
	case registry.CURRENT_USER:
		hiveStr = "HKCU"
	default:
		hiveStr = "UNKNOWN"
	}
	return hiveStr + `\` + e.keyPath
}

// Close releases resources.
func (e *RegistryEngine) Close() error {
	return nil
}
