package session

import "errors"

var (
	// ErrNotFound is returned by Load/TakeVerifier when nothing is stored.
	ErrNotFound = errors.New("not found in store")
)

// Store is the durable mirror of the in-memory session. The user snapshot
// and the bearer token are always written and cleared together - a reader
// must never observe a token without its user or vice versa.
//
// The verifier slot is ephemeral state for an in-flight OAuth code exchange;
// TakeVerifier removes the verifier as it reads it so it can never be reused.
type Store interface {
	// Save atomically persists the session snapshot (user + token).
	Save(s *Session) error

	// Load returns the persisted session, or ErrNotFound.
	Load() (*Session, error)

	// Clear removes the session snapshot. Clearing an empty store is a no-op.
	Clear() error

	// SaveVerifier stores the PKCE code verifier for the pending exchange.
	SaveVerifier(verifier string) error

	// TakeVerifier returns the stored verifier and deletes it, or ErrNotFound.
	TakeVerifier() (string, error)

	// ClearAll wipes everything the store holds, session and ephemeral state
	// alike. Used when the account backing the session no longer exists, so
	// nothing cached from it can leak to the next user of the device.
	ClearAll() error
}
