// Package filestore persists the session snapshot to the local filesystem.
// It is the durable analogue of the in-memory session: one JSON document
// carrying the user and the bearer token together, replaced atomically on
// every change.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fieldhouse/fieldhouse-go/session"
)

const (
	sessionFile  = "session.json"
	verifierFile = "verifier"

	fileMode = 0o600
	dirMode  = 0o700
)

var _ session.Store = (*Store)(nil)

// Store is a file-backed session.Store rooted at a single directory.
type Store struct {
	dir string
}

// snapshot is the on-disk layout. User and token travel in one document so
// a crash can never leave one without the other.
type snapshot struct {
	User  session.User `json:"user"`
	Token string       `json:"token"`
}

// New creates the data folder if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("[filestore.New] dir is required")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, errors.Wrap(err, "[filestore.New] os.MkdirAll")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Save(sess *session.Session) error {
	if sess == nil {
		return errors.New("[filestore.Save] nil session")
	}
	data, err := json.MarshalIndent(snapshot{User: sess.User, Token: sess.BearerToken}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[filestore.Save] json.Marshal")
	}
	return s.writeAtomic(sessionFile, data)
}

func (s *Store) Load() (*session.Session, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sessionFile))
	if os.IsNotExist(err) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[filestore.Load] os.ReadFile")
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "[filestore.Load] json.Unmarshal")
	}
	if snap.Token == "" || snap.User.ID == "" {
		// Half-written or hand-edited snapshot. Treat as absent rather than
		// surfacing a partially-authenticated session.
		return nil, session.ErrNotFound
	}
	return &session.Session{User: snap.User, BearerToken: snap.Token}, nil
}

func (s *Store) Clear() error {
	if err := os.Remove(filepath.Join(s.dir, sessionFile)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[filestore.Clear] os.Remove")
	}
	return nil
}

func (s *Store) SaveVerifier(verifier string) error {
	if verifier == "" {
		return errors.New("[filestore.SaveVerifier] empty verifier")
	}
	return s.writeAtomic(verifierFile, []byte(verifier))
}

func (s *Store) TakeVerifier() (string, error) {
	path := filepath.Join(s.dir, verifierFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "[filestore.TakeVerifier] os.ReadFile")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(err, "[filestore.TakeVerifier] os.Remove")
	}
	return string(data), nil
}

func (s *Store) ClearAll() error {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[filestore.ClearAll] os.ReadDir")
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, entry.Name())); err != nil {
			return errors.Wrap(err, "[filestore.ClearAll] os.RemoveAll")
		}
	}
	return nil
}

// writeAtomic writes via a temp file in the same directory followed by a
// rename, so readers see either the old document or the new one.
func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "[filestore.writeAtomic] os.CreateTemp")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore.writeAtomic] tmp.Write")
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[filestore.writeAtomic] tmp.Chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[filestore.writeAtomic] tmp.Close")
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return errors.Wrap(err, "[filestore.writeAtomic] os.Rename")
	}
	return nil
}
