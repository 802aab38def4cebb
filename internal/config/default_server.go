package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const defaultServerFile = "default-server.json"

// ErrNoDefaultServer is returned when no default server has been saved.
var ErrNoDefaultServer = errors.New("no default server saved")

// DefaultServer is the persisted (name, launch command) pair the shell
// connects to when `connect` is given no arguments.
type DefaultServer struct {
	Name    string    `json:"name"`
	Command string    `json:"command"`
	Args    []string  `json:"args,omitempty"`
	SavedAt time.Time `json:"savedAt"`
}

// Validate checks that the record can launch a server.
func (d DefaultServer) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("default server name is empty")
	}
	if strings.TrimSpace(d.Command) == "" {
		return errors.Newf("default server %q has no command", d.Name)
	}
	return nil
}

// DefaultServerStore reads and writes the default server record.
type DefaultServerStore struct {
	path string
}

// NewDefaultServerStore returns a store backed by path.
func NewDefaultServerStore(path string) *DefaultServerStore {
	return &DefaultServerStore{path: path}
}

// Path returns the backing file path.
func (s *DefaultServerStore) Path() string {
	return s.path
}

// Load returns the saved default server, or ErrNoDefaultServer.
func (s *DefaultServerStore) Load() (*DefaultServer, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoDefaultServer
		}
		return nil, errors.Wrap(err, "read default server")
	}

	var ds DefaultServer
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, errors.Wrapf(err, "parse default server %s", s.path)
	}
	if err := ds.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid default server %s", s.path)
	}
	return &ds, nil
}

// Save writes ds atomically, stamping SavedAt.
// Uses a temp file + rename pattern for atomic writes.
func (s *DefaultServerStore) Save(ds DefaultServer) error {
	if err := ds.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "create config dir")
	}

	ds.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal default server")
	}

	tmp, err := os.CreateTemp(dir, defaultServerFile+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "chmod temp file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) // Clean up temp file on failure
		return errors.Wrap(err, "rename default server")
	}
	return nil
}

// Remove deletes the record. It reports whether a record existed.
func (s *DefaultServerStore) Remove() (bool, error) {
	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "remove default server")
	}
	return true, nil
}
