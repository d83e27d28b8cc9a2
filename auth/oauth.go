package auth

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/fieldhouse/fieldhouse-go/api"
	"github.com/fieldhouse/fieldhouse-go/apimodel"
	"github.com/fieldhouse/fieldhouse-go/session"
)

// GoogleAuthURL starts an Authorization Code + PKCE flow: a fresh code
// verifier is generated and persisted to the ephemeral store slot before the
// provider URL is handed back, so the verifier survives the redirect
// round trip. Each call replaces any previous verifier.
func (s *Service) GoogleAuthURL(ctx context.Context) (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := s.deps.Store.SaveVerifier(verifier); err != nil {
		return "", errors.Wrap(err, "[GoogleAuthURL] store.SaveVerifier")
	}

	resp, err := s.deps.API.GoogleAuthURL(ctx, verifier)
	if err != nil {
		return "", err
	}
	if resp.AuthURL == "" {
		return "", errors.New("[GoogleAuthURL] empty auth URL in response")
	}
	return resp.AuthURL, nil
}

// ExchangeCode trades the provider's authorization code for a session.
//
// Duplicate invocations are tolerated two ways: an already-authenticated
// session short-circuits without a network call, and concurrent calls for
// the same code share one exchange via singleflight. The stored verifier is
// consumed (deleted) whether the exchange succeeds or fails, and an exchange
// error racing an already-valid session counts as success.
func (s *Service) ExchangeCode(ctx context.Context, code string) (*session.Session, error) {
	if sess := s.Session(); sess != nil {
		return sess, nil
	}

	v, err, _ := s.exchangeGroup.Do(code, func() (any, error) {
		return s.exchangeCodeOnce(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	sess, _ := v.(*session.Session)
	return sess, nil
}

func (s *Service) exchangeCodeOnce(ctx context.Context, code string) (*session.Session, error) {
	if sess := s.Session(); sess != nil {
		return sess, nil
	}

	verifier, err := s.deps.Store.TakeVerifier()
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrVerifierMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeCode] store.TakeVerifier")
	}

	req := apimodel.GoogleExchangeRequest{Code: code, CodeVerifier: verifier}
	if err := validateStruct(req); err != nil {
		return nil, errors.Wrap(err, "[ExchangeCode] invalid parameters")
	}

	gen := s.generation()
	resp, err := s.deps.API.GoogleExchange(ctx, req)
	if err != nil {
		// A duplicate callback can lose the race against its twin: the
		// backend rejects the second exchange but the session is already
		// established. That is a success from the caller's point of view.
		if sess := s.Session(); sess != nil {
			return sess, nil
		}
		if apiErr, ok := api.AsAPIError(err); ok {
			s.logger.Debug().Str("code", string(apiErr.Code)).Int("status", apiErr.Status).Msg("code exchange rejected")
		}
		return nil, err
	}
	return s.adoptSession(gen, resp.Token, session.UserFromAPI(resp.User))
}
