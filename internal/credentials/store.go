package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"tld/pkg/logging"

	"github.com/spf13/afero"
)

// ErrNotFound is returned by Load when no record of the requested kind exists.
var ErrNotFound = errors.New("credential record not found")

// Store provides durable key/value storage of credential records.
//
// SECURITY: record contents are never logged. Only the record kind and the
// outcome of write/delete operations are reported as audit events.
type Store struct {
	mu      sync.RWMutex
	fs      afero.Fs
	dir     string
	records map[string][]byte
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Dir is the directory holding the record files. Empty keeps records
	// in memory only.
	Dir string

	// Fs defaults to the operating system filesystem.
	Fs afero.Fs
}

// NewStore creates a store. The directory is created lazily on first write.
func NewStore(cfg StoreConfig) *Store {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Store{
		fs:      fsys,
		dir:     cfg.Dir,
		records: make(map[string][]byte),
	}
}

// Persistent reports whether records are written to disk.
func (s *Store) Persistent() bool {
	return s.dir != ""
}

// Path returns the file backing records of the given kind, or "" for a
// memory-only store.
func (s *Store) Path(kind string) string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, "."+kind)
}

// Save writes r, replacing any previous record of the same kind.
func (s *Store) Save(r Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", r.Kind(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[r.Kind()] = data

	if s.dir == "" {
		return nil
	}

	if err := s.writeFile(r.Kind(), data); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "credential_store_failed",
			Outcome: "failure",
			Target:  "." + r.Kind(),
			Error:   err,
		})
		return fmt.Errorf("failed to persist %s record: %w", r.Kind(), err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "credential_stored",
		Outcome: "success",
		Target:  "." + r.Kind(),
	})
	return nil
}

// Load decodes the record of r's kind into r. It returns ErrNotFound when
// neither memory nor disk hold such a record.
func (s *Store) Load(r Record) error {
	kind := r.Kind()

	s.mu.RLock()
	data, ok := s.records[kind]
	s.mu.RUnlock()

	if !ok {
		if s.dir == "" {
			return ErrNotFound
		}

		var err error
		data, err = s.readFile(kind)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.records[kind] = data
		s.mu.Unlock()
	}

	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", kind, err)
	}
	return nil
}

// Delete removes the record of the given kind. Deleting a missing record is
// not an error.
func (s *Store) Delete(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, kind)

	if s.dir == "" {
		return nil
	}

	err := s.fs.Remove(s.Path(kind))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Audit(logging.AuditEvent{
			Action:  "credential_delete_failed",
			Outcome: "failure",
			Target:  "." + kind,
			Error:   err,
		})
		return fmt.Errorf("failed to delete %s record: %w", kind, err)
	}

	logging.Audit(logging.AuditEvent{
		Action:  "credential_deleted",
		Outcome: "success",
		Target:  "." + kind,
	})
	return nil
}

// Exists reports whether a record of the given kind can be loaded.
func (s *Store) Exists(kind string) bool {
	s.mu.RLock()
	_, ok := s.records[kind]
	s.mu.RUnlock()
	if ok {
		return true
	}
	if s.dir == "" {
		return false
	}
	_, err := s.fs.Stat(s.Path(kind))
	return err == nil
}

func (s *Store) writeFile(kind string, data []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+kind+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Chmod(tmpName, 0o600); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	return s.fs.Rename(tmpName, s.Path(kind))
}

func (s *Store) readFile(kind string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.Path(kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s record: %w", kind, err)
	}
	return data, nil
}
