package storefakes

import (
	"sync"

	"github.com/fieldhouse/fieldhouse-go/session"
)

var _ session.Store = (*FakeStore)(nil)

// FakeStore is an in-memory session.Store for tests.
type FakeStore struct {
	lock     sync.RWMutex
	session  *session.Session
	verifier string

	// Counters for asserting on store traffic.
	SaveCalls     int
	ClearCalls    int
	ClearAllCalls int

	// OtherKeys simulates unrelated application state living in the same
	// storage. ClearAll must remove it; Clear must not.
	OtherKeys map[string]string
}

func NewFakeStore() *FakeStore {
	return &FakeStore{OtherKeys: map[string]string{}}
}

func (f *FakeStore) Save(s *session.Session) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	copied := *s
	f.session = &copied
	f.SaveCalls++
	return nil
}

func (f *FakeStore) Load() (*session.Session, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.session == nil {
		return nil, session.ErrNotFound
	}
	copied := *f.session
	return &copied, nil
}

func (f *FakeStore) Clear() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.session = nil
	f.ClearCalls++
	return nil
}

func (f *FakeStore) SaveVerifier(verifier string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.verifier = verifier
	return nil
}

func (f *FakeStore) TakeVerifier() (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.verifier == "" {
		return "", session.ErrNotFound
	}
	v := f.verifier
	f.verifier = ""
	return v, nil
}

func (f *FakeStore) ClearAll() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.session = nil
	f.verifier = ""
	f.OtherKeys = map[string]string{}
	f.ClearAllCalls++
	return nil
}

// HasVerifier reports whether a verifier is currently stored.
func (f *FakeStore) HasVerifier() bool {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.verifier != ""
}
