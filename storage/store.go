// Package storage persists tracks, leaderboards, and finished-race records
// as JSON documents under a data directory. Writes are atomic: a document is
// marshaled to a temp file in the same directory and renamed into place, so
// a crash can never leave a half-written file behind.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	collTracks       = "tracks"
	collLeaderboards = "leaderboards"
	collRaces        = "races"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrBadID    = errors.New("invalid document id")
)

// Store is a filesystem-backed JSON document store. One mutex serializes
// writers; the datasets are small (tracks, top-100 boards) and writes are
// rare next to the 60 Hz hot path, which never touches the store.
type Store struct {
	mu   sync.RWMutex
	log  zerolog.Logger
	root string
}

// NewStore opens (or creates) the data directory and seeds the built-in
// tracks if they are absent.
func NewStore(log zerolog.Logger, dir string) (*Store, error) {
	s := &Store{
		log:  log.With().Str("component", "storage").Logger(),
		root: dir,
	}
	for _, coll := range []string{collTracks, collLeaderboards, collRaces} {
		if err := os.MkdirAll(filepath.Join(dir, coll), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	if err := s.seedDefaultTracks(); err != nil {
		return nil, err
	}
	return s, nil
}

// validID permits filename-safe document IDs only, closing the path
// traversal hole a raw join would open.
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func (s *Store) path(coll, id string) string {
	return filepath.Join(s.root, coll, id+".json")
}

// write marshals v and renames it into place. Caller holds the write lock.
func (s *Store) write(coll, id string, v any) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrBadID, id)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", coll, id, err)
	}

	dir := filepath.Join(s.root, coll)
	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("temp file for %s/%s: %w", coll, id, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s/%s: %w", coll, id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s/%s: %w", coll, id, err)
	}
	if err := os.Rename(tmp.Name(), s.path(coll, id)); err != nil {
		return fmt.Errorf("rename %s/%s: %w", coll, id, err)
	}
	return nil
}

// read unmarshals a document into v. Caller holds at least the read lock.
func (s *Store) read(coll, id string, v any) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrBadID, id)
	}
	data, err := os.ReadFile(s.path(coll, id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, coll, id)
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", coll, id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", coll, id, err)
	}
	return nil
}

// ids lists the document IDs in a collection, sorted.
func (s *Store) ids(coll string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, coll))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", coll, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(out)
	return out, nil
}

// remove deletes a document. Caller holds the write lock.
func (s *Store) remove(coll, id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrBadID, id)
	}
	err := os.Remove(s.path(coll, id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, coll, id)
	}
	return err
}
