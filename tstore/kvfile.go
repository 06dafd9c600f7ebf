package tstore

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// KeyValue holds the entries of a key=value text file.
// Format:
//
//	key=T{text value}
//	key=T{
//	multi-line text
//	}
//	key=B{base64encoded}
//	key=B{
//	base64encoded
//	over multiple lines
//	}
//	"quoted \x00 key"=B{...}
//
// Text encoding uses T{...}, binary encoding uses B{...} with base64.
// Keys that are not plain printable text are written Go-quoted.
type KeyValue map[string][]byte

// needsBinaryEncoding returns true if the value should use binary (base64) encoding.
func needsBinaryEncoding(data []byte) bool {
	for _, b := range data {
		if b < 0x20 && b != '\n' && b != '\t' && b != '\r' {
			return true
		}
		if b >= 0x7f {
			return true
		}
		if b == '{' || b == '}' {
			return true
		}
	}
	return false
}

// needsQuotedKey returns true if key cannot be written bare.
func needsQuotedKey(key string) bool {
	if key == "" || key != strings.TrimSpace(key) {
		return true
	}
	if key[0] == '#' || key[0] == '"' {
		return true
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		if b < 0x20 || b >= 0x7f || b == '=' {
			return true
		}
	}
	return false
}

// LoadKeyValue reads a key=value file from path.
func LoadKeyValue(path string) (KeyValue, error) {
	f, err := os.Open(ExpandPath(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadKeyValue(f)
}

// ReadKeyValue parses the key=value format.
func ReadKeyValue(r io.Reader) (KeyValue, error) {
	kv := make(KeyValue)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var multiLineKey string
	var inMultiLine bool
	var multiLineValue bytes.Buffer
	var isBinary bool

	for scanner.Scan() {
		line := scanner.Text()

		if inMultiLine {
			if line != "}" {
				if multiLineValue.Len() > 0 {
					multiLineValue.WriteByte('\n')
				}
				multiLineValue.WriteString(line)
				continue
			}
			var value []byte
			if isBinary {
				decoded, err := base64.StdEncoding.DecodeString(multiLineValue.String())
				if err != nil {
					return nil, fmt.Errorf("decode base64 for key %q: %w", multiLineKey, err)
				}
				value = decoded
			} else {
				value = bytes.Clone(bytes.Trim(multiLineValue.Bytes(), "\n"))
			}
			kv[multiLineKey] = value
			inMultiLine = false
			multiLineValue.Reset()
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := splitLine(line)
		if err != nil {
			return nil, err
		}
		if value == "" {
			continue
		}

		switch {
		case value == "T{" || value == "B{":
			multiLineKey = key
			inMultiLine = true
			isBinary = value == "B{"
		case strings.HasPrefix(value, "T{") && strings.HasSuffix(value, "}"):
			kv[key] = []byte(value[2 : len(value)-1])
		case strings.HasPrefix(value, "B{") && strings.HasSuffix(value, "}"):
			decoded, err := base64.StdEncoding.DecodeString(value[2 : len(value)-1])
			if err != nil {
				return nil, fmt.Errorf("decode base64 for key %q: %w", key, err)
			}
			kv[key] = decoded
		}
	}
	if inMultiLine {
		return nil, fmt.Errorf("unterminated value for key %q", multiLineKey)
	}
	return kv, scanner.Err()
}

// splitLine separates a bare or quoted key from its value.
func splitLine(line string) (key, value string, err error) {
	if strings.HasPrefix(line, `"`) {
		quoted, err := strconv.QuotedPrefix(line)
		if err != nil {
			return "", "", fmt.Errorf("parse quoted key: %w", err)
		}
		key, err = strconv.Unquote(quoted)
		if err != nil {
			return "", "", fmt.Errorf("parse quoted key: %w", err)
		}
		rest := strings.TrimSpace(line[len(quoted):])
		if !strings.HasPrefix(rest, "=") {
			return "", "", fmt.Errorf("missing = after key %q", key)
		}
		return key, strings.TrimSpace(rest[1:]), nil
	}
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", nil
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), nil
}

// SaveKeyValue atomically writes kv to path.
func SaveKeyValue(path string, kv KeyValue) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteKeyValue(&buf, kv); err != nil {
		return err
	}
	return atomicWriteFile(path, buf.Bytes(), 0600)
}

// WriteKeyValue writes kv in key order.
func WriteKeyValue(w io.Writer, kv KeyValue) error {
	keyList := make([]string, 0, len(kv))
	for key := range kv {
		keyList = append(keyList, key)
	}
	sort.Strings(keyList)

	for _, key := range keyList {
		value := kv[key]
		name := key
		if needsQuotedKey(key) {
			name = strconv.Quote(key)
		}

		var err error
		switch {
		case needsBinaryEncoding(value):
			encoded := base64.StdEncoding.EncodeToString(value)
			if len(encoded) > 60 {
				err = writeBinaryMultiline(w, name, encoded)
			} else {
				_, err = fmt.Fprintf(w, "%s=B{%s}\n\n", name, encoded)
			}
		case bytes.Contains(value, []byte{'\n'}):
			_, err = fmt.Fprintf(w, "%s=T{\n%s\n}\n\n", name, value)
		default:
			_, err = fmt.Fprintf(w, "%s=T{%s}\n\n", name, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeBinaryMultiline(w io.Writer, name, encoded string) error {
	if _, err := fmt.Fprintf(w, "%s=B{\n", name); err != nil {
		return err
	}
	for i := 0; i < len(encoded); i += 60 {
		end := min(i+60, len(encoded))
		if _, err := fmt.Fprintf(w, "%s\n", encoded[i:end]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "}\n\n")
	return err
}
