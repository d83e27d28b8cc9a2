package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrEmailNotVerified means login was refused until the user verifies
	// their email address. Callers should offer the verification flow.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrInvalidCredentials is the generic login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLockoutExpired means the unlock attempt referenced a lockout the
	// server no longer tracks. Callers should fall back to plain login.
	ErrLockoutExpired = errors.New("lockout expired")

	// ErrAccountDeleted means the account behind the session no longer
	// exists. All local state has already been wiped when this is returned.
	ErrAccountDeleted = errors.New("account deleted")

	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrVerifierMissing means a code exchange was attempted without a
	// stored PKCE verifier (already consumed, or never generated).
	ErrVerifierMissing = errors.New("code verifier missing")

	// ErrSuperseded means a logout landed while the operation was in
	// flight; its result was discarded rather than resurrecting a session.
	ErrSuperseded = errors.New("superseded by logout")
)

// LockoutError is returned when login hits an account lockout. It carries
// the locked account's email as reported by the server so callers can start
// the unlock flow without re-asking.
type LockoutError struct {
	Email string
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked: %s", e.Email)
}

// IsLocked unwraps err into a *LockoutError if one is in the chain.
func IsLocked(err error) (*LockoutError, bool) {
	var lockErr *LockoutError
	if errors.As(err, &lockErr) {
		return lockErr, true
	}
	return nil, false
}
