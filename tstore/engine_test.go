package tstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/kardianos/qtrust/tdef"
)

func engines(t *testing.T) map[string]Engine {
	t.Helper()
	dir := t.TempDir()

	bolt, err := OpenBolt(BoltConfig{Path: filepath.Join(dir, "bolt", "trust.db")})
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	plain, err := OpenDir(DirConfig{Dir: filepath.Join(dir, "plain")})
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	sealed, err := OpenDir(DirConfig{Dir: filepath.Join(dir, "sealed"), Sealed: true})
	if err != nil {
		t.Fatalf("OpenDir sealed: %v", err)
	}
	m := map[string]Engine{"bolt": bolt, "dir": plain, "sealed": sealed}
	t.Cleanup(func() {
		for _, e := range m {
			e.Close()
		}
	})
	return m
}

func TestEngineLifecycle(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := e.DictExists(tdef.Dict)
			if err != nil || ok {
				t.Fatalf("DictExists before create = %v, %v", ok, err)
			}
			if _, err := e.Keys(tdef.Dict); !errors.Is(err, ErrNoDict) {
				t.Fatalf("Keys before create = %v, want ErrNoDict", err)
			}
			if err := e.WriteEntry(tdef.Dict, "a", []byte("x")); !errors.Is(err, ErrNoDict) {
				t.Fatalf("WriteEntry before create = %v, want ErrNoDict", err)
			}
			if _, err := e.ReadEntry(tdef.Dict, "a"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("ReadEntry before create = %v, want ErrNotFound", err)
			}

			if err := e.CreateDict(tdef.Dict); err != nil {
				t.Fatalf("CreateDict: %v", err)
			}
			if err := e.CreateDict(tdef.Dict); err != nil {
				t.Fatalf("CreateDict again: %v", err)
			}
			if ok, err := e.DictExists(tdef.Dict); err != nil || !ok {
				t.Fatalf("DictExists after create = %v, %v", ok, err)
			}

			// Keys with bytes a file name cannot hold.
			keys := []string{"Example Root ABCD", "a/b", "..", "\x00\xff", "0a:1b:2c"}
			for i, k := range keys {
				if err := e.WriteEntry(tdef.Dict, k, []byte{byte(i), 1, 2}); err != nil {
					t.Fatalf("WriteEntry(%q): %v", k, err)
				}
			}
			if err := e.WriteEntry(tdef.Dict, keys[0], []byte("replaced")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			data, err := e.ReadEntry(tdef.Dict, keys[0])
			if err != nil || !bytes.Equal(data, []byte("replaced")) {
				t.Fatalf("ReadEntry after overwrite = %q, %v", data, err)
			}
			data, err = e.ReadEntry(tdef.Dict, "\x00\xff")
			if err != nil || !bytes.Equal(data, []byte{3, 1, 2}) {
				t.Fatalf("ReadEntry binary key = %v, %v", data, err)
			}

			got, err := e.Keys(tdef.Dict)
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			sort.Strings(got)
			want := append([]string(nil), keys...)
			sort.Strings(want)
			if strings.Join(got, "|") != strings.Join(want, "|") {
				t.Fatalf("Keys = %q, want %q", got, want)
			}

			if err := e.DeleteEntry(tdef.Dict, "a/b"); err != nil {
				t.Fatalf("DeleteEntry: %v", err)
			}
			if err := e.DeleteEntry(tdef.Dict, "a/b"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("DeleteEntry twice = %v, want ErrNotFound", err)
			}
			if _, err := e.ReadEntry(tdef.Dict, "a/b"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("ReadEntry deleted = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestEngineNameLimits(t *testing.T) {
	for name, e := range engines(t) {
		t.Run(name, func(t *testing.T) {
			if err := e.CreateDict(tdef.Dict); err != nil {
				t.Fatal(err)
			}
			long := strings.Repeat("k", tdef.MaxKeyLen+1)
			if err := e.WriteEntry(tdef.Dict, long, []byte("x")); !errors.Is(err, ErrKeyLength) {
				t.Errorf("WriteEntry long key = %v, want ErrKeyLength", err)
			}
			fits := strings.Repeat("k", tdef.MaxKeyLen)
			if err := e.WriteEntry(tdef.Dict, fits, []byte("x")); err != nil {
				t.Errorf("WriteEntry max key: %v", err)
			}
			for _, d := range []string{"", "..", "a/b", `a\b`} {
				var ne InvalidNameError
				if err := e.CreateDict(d); !errors.As(err, &ne) {
					t.Errorf("CreateDict(%q) = %v, want InvalidNameError", d, err)
				}
			}
		})
	}
}

func TestDirEngineSealedAtRest(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenDir(DirConfig{Dir: dir, Sealed: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CreateDict(tdef.Dict); err != nil {
		t.Fatal(err)
	}
	secret := []byte("CN=Plain Text Marker")
	if err := e.WriteEntry(tdef.Dict, "k", secret); err != nil {
		t.Fatal(err)
	}
	list, err := os.ReadDir(filepath.Join(dir, tdef.Dict))
	if err != nil || len(list) != 1 {
		t.Fatalf("ReadDir = %v, %v", list, err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, tdef.Dict, list[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, secret) {
		t.Fatal("sealed entry stored in plain text")
	}

	// Corrupt the file and expect a read error rather than garbage.
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(filepath.Join(dir, tdef.Dict, list[0].Name()), raw, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ReadEntry(tdef.Dict, "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadEntry corrupt sealed = %v, want unseal error", err)
	}
}

func TestDirEngineSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenDir(DirConfig{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.CreateDict(tdef.Dict); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, tdef.Dict, ".tmp-123"), nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, tdef.Dict, "not base64!"), nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, tdef.Dict, "sub"), 0700); err != nil {
		t.Fatal(err)
	}
	keys, err := e.Keys(tdef.Dict)
	if err != nil || len(keys) != 0 {
		t.Fatalf("Keys = %q, %v", keys, err)
	}
}
