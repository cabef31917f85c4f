package reftable

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Load reads a table persisted as a flat JSON object. Key order in the file
// becomes table order.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode table %s: %w", path, err)
	}
	return t, nil
}

// Decode parses a flat JSON object of string keys. Non-string scalar values
// are kept in their JSON text form; null and trailing data are rejected.
func Decode(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("table must be a JSON object")
	}
	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		route, err := scalarString(raw)
		if err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Route: route})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after table object")
	}
	return New(entries...), nil
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("empty value")
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return "", errors.New("nested values are not supported")
	case 'n':
		return "", errors.New("null route")
	default:
		return string(raw), nil
	}
}

// Save writes t to path as an indented JSON object in table order. The file
// is replaced atomically.
func Save(path string, t *Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create table dir: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".table-*.json")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace table: %w", err)
	}
	return nil
}

// Encode writes t as a JSON object with four-space indentation.
func Encode(w io.Writer, t *Table) error {
	entries := t.Entries()
	if len(entries) == 0 {
		_, err := io.WriteString(w, "{}\n")
		return err
	}
	var b strings.Builder
	b.WriteString("{\n")
	for i, e := range entries {
		k, err := marshalString(e.Key)
		if err != nil {
			return err
		}
		v, err := marshalString(e.Route)
		if err != nil {
			return err
		}
		b.WriteString("    ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		if i < len(entries)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func marshalString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
