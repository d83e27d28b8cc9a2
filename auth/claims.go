package auth

import (
	"github.com/fieldhouse/fieldhouse-go/token"
)

// TokenClaims returns the best-effort decoded claims of the current bearer
// token plus whether it is past its expiry. Diagnostic only; an opaque
// (non-JWT) token returns an error without implying anything about the
// session's validity.
func (s *Service) TokenClaims() (claims *token.Claims, expired bool, err error) {
	sess := s.Session()
	if sess == nil {
		return nil, false, ErrNotAuthenticated
	}
	claims, err = token.Inspect(sess.BearerToken)
	if err != nil {
		return nil, false, err
	}
	return claims, claims.Expired(s.nowTime()), nil
}
