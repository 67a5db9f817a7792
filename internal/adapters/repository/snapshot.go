package repository

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/shopstudy/internal/domain/model"
)

// File names of the two-file layout.
const (
	SessionsFile = "sessions.jsonl"
	EventsFile   = "events.jsonl"
)

// WriteSnapshot writes sessions and events into dir using the file store
// layout, replacing whatever is there.
func WriteSnapshot(dir string, sessions []*model.Session, events []*model.Event) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrStorage, dir, err)
	}
	if err := writeLines(filepath.Join(dir, SessionsFile), sessions); err != nil {
		return err
	}
	return writeLines(filepath.Join(dir, EventsFile), events)
}

// RemoveSnapshot deletes both files. Missing files are not an error.
func RemoveSnapshot(dir string) error {
	for _, name := range []string{SessionsFile, EventsFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %w", ErrStorage, name, err)
		}
	}
	return nil
}

// writeLines replaces path atomically with one JSON document per line.
func writeLines[T any](path string, items []T) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("%w: encode: %w", ErrStorage, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// readLines decodes every JSON document in path. A missing file is empty.
func readLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer f.Close()

	var out []T
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var v T
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s record %d: %w", ErrCorrupt, filepath.Base(path), len(out)+1, err)
		}
		out = append(out, v)
	}
}

// readLog decodes an append-only JSON-lines file. A record counts only once
// its newline is on disk, so an unterminated or undecodable final record is
// reported as torn along with the offset where it starts. Damage before the
// final record is ErrCorrupt. A missing file is empty.
func readLog[T any](path string) (items []T, end int64, torn bool, err error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	for len(raw) > 0 {
		nl := bytes.IndexByte(raw, '\n')
		if nl < 0 {
			return items, end, true, nil
		}
		line := raw[:nl]
		raw = raw[nl+1:]
		if len(bytes.TrimSpace(line)) > 0 {
			var v T
			if err := json.Unmarshal(line, &v); err != nil {
				if len(raw) == 0 {
					return items, end, true, nil
				}
				return nil, 0, false, fmt.Errorf("%w: %s record %d: %w", ErrCorrupt, filepath.Base(path), len(items)+1, err)
			}
			items = append(items, v)
		}
		end += int64(nl + 1)
	}
	return items, end, false, nil
}
