package tstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// BoltConfig configures a BoltEngine.
type BoltConfig struct {
	// Path is the database file. Parent directories are created.
	Path string

	// Timeout bounds waiting for the database file lock.
	// If zero, defaults to one second.
	Timeout time.Duration
}

// BoltEngine implements Engine on a bbolt database with one bucket per dictionary.
type BoltEngine struct {
	db   *bbolt.DB
	path string
}

var _ Engine = (*BoltEngine)(nil)

// OpenBolt opens or creates the database at cfg.Path.
func OpenBolt(cfg BoltConfig) (*BoltEngine, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	path := ExpandPath(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &BoltEngine{db: db, path: path}, nil
}

// DictExists reports whether the dictionary bucket exists.
func (e *BoltEngine) DictExists(dict string) (bool, error) {
	if err := checkDict(dict); err != nil {
		return false, err
	}
	var ok bool
	err := e.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket([]byte(dict)) != nil
		return nil
	})
	return ok, err
}

// CreateDict creates the dictionary bucket.
func (e *BoltEngine) CreateDict(dict string) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	return e.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dict))
		return err
	})
}

// ReadEntry returns a copy of the entry value.
func (e *BoltEngine) ReadEntry(dict, key string) ([]byte, error) {
	if err := checkDict(dict); err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var data []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dict))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		data = bytes.Clone(v)
		return nil
	})
	return data, err
}

// WriteEntry replaces the entry value.
func (e *BoltEngine) WriteEntry(dict, key string, data []byte) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	return e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dict))
		if b == nil {
			return ErrNoDict
		}
		return b.Put([]byte(key), data)
	})
}

// Keys lists the entry names in byte order.
func (e *BoltEngine) Keys(dict string) ([]string, error) {
	if err := checkDict(dict); err != nil {
		return nil, err
	}
	var keys []string
	err := e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dict))
		if b == nil {
			return ErrNoDict
		}
		return b.ForEach(func(k, v []byte) error {
			if v == nil {
				return nil // Nested bucket.
			}
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// DeleteEntry removes the entry.
func (e *BoltEngine) DeleteEntry(dict, key string) error {
	if err := checkDict(dict); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	return e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(dict))
		if b == nil || b.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(key))
	})
}

// Path returns the database file path.
func (e *BoltEngine) Path() string {
	return e.path
}

// Close closes the database.
func (e *BoltEngine) Close() error {
	return e.db.Close()
}
