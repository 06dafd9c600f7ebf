package qtrust

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/kardianos/qtrust/tcodec"
	"github.com/kardianos/qtrust/tdef"
	"github.com/kardianos/qtrust/tstore"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Engine is the persistent storage. Required.
	Engine tstore.Engine

	// Dict is the dictionary holding the anchors.
	// If empty, defaults to tdef.Dict.
	Dict string

	// Logger receives diagnostics. If nil, the package loggo logger is used.
	Logger Logger

	// Metrics is optional.
	Metrics *Metrics
}

// Store reads and writes trust anchors in one dictionary of an engine.
type Store struct {
	engine  tstore.Engine
	dict    string
	log     Logger
	metrics *Metrics
}

// NewStore returns a store over cfg.Engine. The dictionary is created lazily.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("storage engine is required")
	}
	dict := cfg.Dict
	if dict == "" {
		dict = tdef.Dict
	}
	return &Store{
		engine:  cfg.Engine,
		dict:    dict,
		log:     loggerOr(cfg.Logger),
		metrics: cfg.Metrics,
	}, nil
}

// Dict returns the dictionary name.
func (s *Store) Dict() string {
	return s.dict
}

// Engine returns the underlying storage engine.
func (s *Store) Engine() tstore.Engine {
	return s.engine
}

func (s *Store) ensureDict() error {
	ok, err := s.engine.DictExists(s.dict)
	if err != nil {
		return fmt.Errorf("check dict %q: %w", s.dict, err)
	}
	if ok {
		return nil
	}
	s.log.Infof("dict %q does not exist, creating it", s.dict)
	if err := s.engine.CreateDict(s.dict); err != nil {
		return fmt.Errorf("create dict %q: %w", s.dict, err)
	}
	return nil
}

// Save stores ta under key, replacing anything already there.
// Keys starting with "__" are rejected before any I/O.
func (s *Store) Save(key string, ta tdef.TrustAnchor) error {
	if err := tdef.CheckWriteKey(key); err != nil {
		s.metrics.op("save", ResultError)
		return err
	}
	err := s.save(key, ta)
	if err != nil {
		s.metrics.op("save", ResultError)
		return err
	}
	s.metrics.op("save", ResultOK)
	return nil
}

func (s *Store) save(key string, ta tdef.TrustAnchor) error {
	s.log.Tracef("set %q = %q", key, ta.Subject)
	if err := s.ensureDict(); err != nil {
		return err
	}
	rec, err := tcodec.Encode(ta)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.engine.WriteEntry(s.dict, key, rec); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// SaveAnchor stores ta under its derived storage key and returns the key.
func (s *Store) SaveAnchor(ta tdef.TrustAnchor) (string, error) {
	key := ta.StorageKey()
	return key, s.Save(key, ta)
}

// Get returns the anchor stored under key. The dictionary is created if it
// does not exist. A missing entry and an entry that fails to decode both
// report ok == false; only storage failures return an error.
func (s *Store) Get(key string) (ta tdef.TrustAnchor, ok bool, err error) {
	if err := s.ensureDict(); err != nil {
		s.metrics.op("get", ResultError)
		return tdef.TrustAnchor{}, false, err
	}
	rec, err := s.engine.ReadEntry(s.dict, key)
	if errors.Is(err, tstore.ErrNotFound) {
		s.metrics.op("get", ResultAbsent)
		return tdef.TrustAnchor{}, false, nil
	}
	if err != nil {
		s.metrics.op("get", ResultError)
		return tdef.TrustAnchor{}, false, fmt.Errorf("read %q: %w", key, err)
	}
	ta, err = tcodec.Decode(rec)
	if err != nil {
		s.log.Warningf("get %q: %v", key, err)
		s.metrics.decodeFailure()
		s.metrics.op("get", ResultAbsent)
		return tdef.TrustAnchor{}, false, nil
	}
	s.log.Tracef("get %q = %q", key, ta.Subject)
	s.metrics.op("get", ResultOK)
	return ta, true, nil
}

// Del removes the anchor stored under key. Removing an absent key is not
// an error and storage failures are logged rather than returned.
// Only a reserved key is refused.
func (s *Store) Del(key string) error {
	if err := tdef.CheckWriteKey(key); err != nil {
		s.metrics.op("del", ResultError)
		return err
	}
	err := s.engine.DeleteEntry(s.dict, key)
	switch {
	case err == nil:
		s.log.Infof("deleted %q", key)
		s.metrics.op("del", ResultOK)
	case errors.Is(err, tstore.ErrNotFound):
		s.log.Debugf("delete %q: not present", key)
		s.metrics.op("del", ResultAbsent)
	default:
		s.log.Warningf("failed to delete %q: %v", key, err)
		s.metrics.op("del", ResultError)
	}
	return nil
}

// DelAll deletes every entry in the dictionary one at a time and returns
// how many were deleted. A failed entry is logged and skipped, so a partial
// result is possible. The error reports only a failure to list the entries.
func (s *Store) DelAll() (int, error) {
	keys, err := s.engine.Keys(s.dict)
	if errors.Is(err, tstore.ErrNoDict) {
		return 0, nil
	}
	if err != nil {
		s.metrics.op("del_all", ResultError)
		return 0, fmt.Errorf("list dict %q: %w", s.dict, err)
	}
	count := 0
	for _, key := range keys {
		if err := s.engine.DeleteEntry(s.dict, key); err != nil {
			s.log.Warningf("failed to delete %q: %v", key, err)
			s.metrics.op("del", ResultError)
			continue
		}
		s.log.Infof("deleted %q", key)
		s.metrics.op("del", ResultOK)
		count++
	}
	s.metrics.op("del_all", ResultOK)
	return count, nil
}

// Keys lists the entry names in the dictionary, sorted.
// The dictionary is created if it does not exist.
func (s *Store) Keys() ([]string, error) {
	if err := s.ensureDict(); err != nil {
		return nil, err
	}
	keys, err := s.engine.Keys(s.dict)
	if err != nil {
		return nil, fmt.Errorf("list dict %q: %w", s.dict, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// List returns every anchor that decodes, keyed by entry name.
// Reserved keys are skipped.
func (s *Store) List() (map[string]tdef.TrustAnchor, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]tdef.TrustAnchor, len(keys))
	for _, key := range keys {
		if tdef.IsReserved(key) {
			continue
		}
		ta, ok, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = ta
		}
	}
	return out, nil
}

// Export writes the raw record of every non-reserved entry to w in the
// tstore key=value format and returns the number of entries written.
func (s *Store) Export(w io.Writer) (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	kv := make(tstore.KeyValue, len(keys))
	for _, key := range keys {
		if tdef.IsReserved(key) {
			continue
		}
		rec, err := s.engine.ReadEntry(s.dict, key)
		if errors.Is(err, tstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("read %q: %w", key, err)
		}
		kv[key] = rec
	}
	if err := tstore.WriteKeyValue(w, kv); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(kv), nil
}

// Import reads entries written by Export and saves them. Every entry is
// checked before anything is written: a reserved key or a record that does
// not decode fails the whole import. It returns the number of entries saved.
func (s *Store) Import(r io.Reader) (int, error) {
	kv, err := tstore.ReadKeyValue(r)
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}
	keys := make([]string, 0, len(kv))
	anchors := make(map[string]tdef.TrustAnchor, len(kv))
	for key, rec := range kv {
		if err := tdef.CheckWriteKey(key); err != nil {
			return 0, err
		}
		ta, err := tcodec.Decode(rec)
		if err != nil {
			return 0, fmt.Errorf("import %q: %w", key, err)
		}
		keys = append(keys, key)
		anchors[key] = ta
	}
	sort.Strings(keys)

	count := 0
	for _, key := range keys {
		if err := s.Save(key, anchors[key]); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
