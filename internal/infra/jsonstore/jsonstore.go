// Package jsonstore provides whole-file JSON document persistence.
package jsonstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Store reads and rewrites complete JSON documents under a data directory.
// Every mutation by callers is expected to be a full load/save cycle; there is
// no partial update and no cross-process locking. Concurrent writers can
// clobber each other with last-writer-wins semantics.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of a named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load reads the named document into v. A missing or corrupt file leaves v
// untouched and returns nil, so callers always start from a usable default.
func (s *Store) Load(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read document")
	}

	// Decode into a fresh value so a document that fails mid-parse cannot
	// leave v half populated.
	fresh := reflect.New(reflect.TypeOf(v).Elem())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		zlog.Warn().Msgf("corrupt document, using empty default: name=%s err=%v", name, err)
		return nil
	}
	reflect.ValueOf(v).Elem().Set(fresh.Elem())
	return nil
}

// Save writes v as the complete content of the named document.
func (s *Store) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode document")
	}
	if err := os.WriteFile(s.Path(name), data, 0644); err != nil {
		return errors.Wrap(err, "failed to write document")
	}
	return nil
}
