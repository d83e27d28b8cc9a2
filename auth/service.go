// Package auth owns the client's session lifecycle: who is logged in, the
// durable mirror of that state, and every transition in and out of it.
// Nothing else in the SDK mutates the session; the transport and the
// realtime channel read the token and ask this service for invalidation.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/fieldhouse/fieldhouse-go/api"
	"github.com/fieldhouse/fieldhouse-go/apimodel"
	"github.com/fieldhouse/fieldhouse-go/session"
	"github.com/fieldhouse/fieldhouse-go/token"
	"github.com/fieldhouse/fieldhouse-go/transport"
)

// State is the session-check verdict exposed to observers.
type State string

const (
	StateUnchecked     State = "unchecked"
	StateChecking      State = "checking"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// LoginReason is attached to a forced navigation back to login.
type LoginReason string

const (
	ReasonLoggedOut      LoginReason = "logged_out"
	ReasonDeleted        LoginReason = "deleted"
	ReasonSessionExpired LoginReason = "session_expired"
)

// Navigator is the surface the service forces the application back to the
// login screen through. Terminal events (logout, deletion, expiry) invoke it
// exactly once per event.
type Navigator interface {
	ToLogin(reason LoginReason)
}

// Channel is the slice of the realtime channel the service needs: the
// ability to tear the connection down when the session ends.
type Channel interface {
	Close() error
}

// Subscriber observes session-state transitions.
type Subscriber func(State, *session.Session)

// Deps holds all collaborator dependencies for the Service.
type Deps struct {
	API       *api.Client            // Backend REST bindings
	Store     session.Store          // Durable session mirror
	Tokens    *token.Holder          // Shared bearer-token surface
	Transport *transport.Interceptor // Intercepting HTTP layer
	Navigator Navigator              // Forced-navigation hook
}

// Service is the single source of truth for the authenticated session.
type Service struct {
	deps   Deps
	logger zerolog.Logger

	lock           sync.Mutex
	state          State
	session        *session.Session
	sessionChecked bool
	gen            uint64 // bumped on every clear; in-flight results from an older gen are discarded
	channel        Channel
	subscribers    []Subscriber

	checkGroup    singleflight.Group
	exchangeGroup singleflight.Group
	nowTime       func() time.Time
}

// ServiceOption modifies the Service at construction time.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes the session service and wires itself into the
// transport's refresh hooks.
func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.API == nil {
		return nil, errors.New("[NewService] API client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("[NewService] Store is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("[NewService] Tokens holder is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[NewService] Navigator is required")
	}

	svc := &Service{
		deps:    deps,
		state:   StateUnchecked,
		nowTime: time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(svc)
	}

	if deps.Transport != nil {
		deps.Transport.SetAuthFailureHandler(svc.onRefreshFailed)
		deps.Transport.SetTokenRefreshedHandler(svc.onTokenRefreshed)
	}
	return svc, nil
}

// SetChannel attaches the realtime channel so terminal transitions can
// disconnect it. Optional; safe to leave unset.
func (s *Service) SetChannel(ch Channel) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.channel = ch
}

// Subscribe registers an observer for session-state transitions. Observers
// are invoked synchronously, outside the service lock.
func (s *Service) Subscribe(fn Subscriber) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// State returns the current session-check verdict.
func (s *Service) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Session returns the current session, or nil when anonymous.
func (s *Service) Session() *session.Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.copySessionLocked()
}

// IsAuthenticated reports whether a session is present.
func (s *Service) IsAuthenticated() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.session != nil
}

// CheckSession resolves the persisted credentials into a verdict. It is
// idempotent: the first call performs at most one network round trip (N
// concurrent callers share it via singleflight); once a verdict exists it is
// served from memory. A network failure leaves the verdict unresolved so a
// later call can retry.
func (s *Service) CheckSession(ctx context.Context) (*session.Session, error) {
	s.lock.Lock()
	if s.sessionChecked {
		sess := s.copySessionLocked()
		s.lock.Unlock()
		return sess, nil
	}
	s.state = StateChecking
	s.lock.Unlock()

	v, err, _ := s.checkGroup.Do("session-check", func() (any, error) {
		return s.checkSessionOnce(ctx)
	})
	if err != nil {
		return nil, err
	}
	sess, _ := v.(*session.Session)
	return sess, nil
}

func (s *Service) checkSessionOnce(ctx context.Context) (*session.Session, error) {
	stored, err := s.deps.Store.Load()
	if errors.Is(err, session.ErrNotFound) {
		s.becomeAnonymous(true)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[CheckSession] store.Load")
	}

	gen := s.generation()
	s.deps.Tokens.Set(stored.BearerToken)

	resp, err := s.deps.API.Session(ctx)
	if err != nil {
		apiErr, ok := api.AsAPIError(err)
		if !ok {
			// Connectivity failure: no verdict, no state change. The stored
			// token stays put and the next CheckSession retries.
			return nil, err
		}
		if apiErr.Code == apimodel.CodeUserDeleted {
			s.handleDeleted(gen)
			return nil, nil
		}
		s.logger.Debug().Str("code", string(apiErr.Code)).Int("status", apiErr.Status).Msg("session check rejected")
		s.becomeAnonymous(true)
		return nil, nil
	}

	if resp.User == nil {
		// The server answered but no longer knows the user. Residual cached
		// data must not survive for whoever uses the device next.
		s.handleDeleted(gen)
		return nil, nil
	}

	user := session.UserFromAPI(resp.User)
	// The server may return a stale or provider-sourced image; a photo the
	// user set locally wins.
	if stored.User.PhotoURL != "" {
		user.PhotoURL = stored.User.PhotoURL
	}

	return s.adoptSession(gen, s.deps.Tokens.Token(), user)
}

// LoginWithPassword exchanges credentials for a session. Failure modes the
// caller must branch on arrive as typed errors: ErrEmailNotVerified,
// *LockoutError (carrying the locked email) and ErrInvalidCredentials.
// Connectivity failures pass through unclassified.
func (s *Service) LoginWithPassword(ctx context.Context, identifier, password string) (*session.Session, error) {
	req := apimodel.LoginRequest{Identifier: identifier, Password: password}
	if err := validateStruct(req); err != nil {
		return nil, errors.Wrap(err, "[LoginWithPassword] invalid parameters")
	}

	gen := s.generation()
	resp, err := s.deps.API.Login(ctx, req)
	if err != nil {
		return nil, s.classifyLoginError(err, identifier)
	}
	return s.adoptSession(gen, resp.Token, session.UserFromAPI(resp.User))
}

// UnlockAccount resolves a lockout with the emailed one-time code; success
// logs the user in. A lockout the server no longer tracks maps to
// ErrLockoutExpired so callers fall back to plain login.
func (s *Service) UnlockAccount(ctx context.Context, email, code string) (*session.Session, error) {
	req := apimodel.UnlockRequest{Email: email, Code: code}
	if err := validateStruct(req); err != nil {
		return nil, errors.Wrap(err, "[UnlockAccount] invalid parameters")
	}

	gen := s.generation()
	resp, err := s.deps.API.Unlock(ctx, req)
	if err != nil {
		if apiErr, ok := api.AsAPIError(err); ok && apiErr.Code == apimodel.CodeLockoutExpired {
			return nil, ErrLockoutExpired
		}
		return nil, err
	}
	return s.adoptSession(gen, resp.Token, session.UserFromAPI(resp.User))
}

// ResendUnlockCode asks for a fresh unlock code. Cooldown refusals from the
// server pass through as API errors.
func (s *Service) ResendUnlockCode(ctx context.Context, email string) error {
	req := apimodel.ResendUnlockCodeRequest{Email: email}
	if err := validateStruct(req); err != nil {
		return errors.Wrap(err, "[ResendUnlockCode] invalid parameters")
	}
	return s.deps.API.ResendUnlockCode(ctx, req)
}

// UpdateProfile merges the partial update into the session optimistically,
// persists it, then confirms with the backend. On backend failure the
// service resynchronizes from the server rather than keeping local-only
// data, and the original error is returned.
func (s *Service) UpdateProfile(ctx context.Context, update apimodel.ProfileUpdate) (*session.Session, error) {
	s.lock.Lock()
	if s.session == nil {
		s.lock.Unlock()
		return nil, ErrNotAuthenticated
	}
	s.session.User = s.session.User.Merge(update)
	sess := s.copySessionLocked()
	s.lock.Unlock()

	if err := s.deps.Store.Save(sess); err != nil {
		return nil, errors.Wrap(err, "[UpdateProfile] store.Save")
	}
	s.notify()

	if _, err := s.deps.API.UpdateProfile(ctx, update); err != nil {
		if resyncErr := s.Revalidate(ctx); resyncErr != nil {
			s.logger.Warn().Err(resyncErr).Msg("profile resync after failed update")
		}
		return nil, err
	}
	return s.Session(), nil
}

// Logout ends the session. The server notification is best-effort; local
// state is cleared and the login navigation fires no matter what, with the
// transport's refresh path suspended so the logout request itself cannot
// trigger a refresh loop.
func (s *Service) Logout(ctx context.Context) error {
	s.lock.Lock()
	if s.session == nil {
		s.lock.Unlock()
		return nil
	}
	s.lock.Unlock()

	if s.deps.Transport != nil {
		s.deps.Transport.Suspend()
		defer s.deps.Transport.Resume()
	}

	if err := s.deps.API.Logout(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("server logout notification failed")
	}

	s.clearLocal()
	if err := s.deps.Store.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("clearing persisted session")
	}
	s.notify()
	s.deps.Navigator.ToLogin(ReasonLoggedOut)
	return nil
}

// VerifyUserExists revalidates the session without CheckSession's one-shot
// guard. On a deleted account it performs the same aggressive wipe and
// redirect as the session check. Anonymous sessions are a no-op.
func (s *Service) VerifyUserExists(ctx context.Context) error {
	s.lock.Lock()
	if s.session == nil {
		s.lock.Unlock()
		return nil
	}
	gen := s.gen
	s.lock.Unlock()

	resp, err := s.deps.API.Session(ctx)
	if err != nil {
		if apiErr, ok := api.AsAPIError(err); ok && apiErr.Code == apimodel.CodeUserDeleted {
			s.handleDeleted(gen)
			return ErrAccountDeleted
		}
		return err
	}
	if resp.User == nil {
		s.handleDeleted(gen)
		return ErrAccountDeleted
	}
	return nil
}

// Revalidate re-fetches the server's copy of the user and merges it into the
// session, preserving the locally-cached photo.
func (s *Service) Revalidate(ctx context.Context) error {
	s.lock.Lock()
	if s.session == nil {
		s.lock.Unlock()
		return ErrNotAuthenticated
	}
	gen := s.gen
	localPhoto := s.session.User.PhotoURL
	s.lock.Unlock()

	resp, err := s.deps.API.Session(ctx)
	if err != nil {
		return err
	}
	if resp.User == nil {
		s.handleDeleted(gen)
		return ErrAccountDeleted
	}

	user := session.UserFromAPI(resp.User)
	if localPhoto != "" {
		user.PhotoURL = localPhoto
	}
	_, err = s.adoptSession(gen, s.deps.Tokens.Token(), user)
	return err
}

// ForcedLogout handles a server-pushed auth:logout for the given user.
func (s *Service) ForcedLogout(userID string) {
	if !s.isCurrentUser(userID) {
		return
	}
	s.logger.Info().Str("user_id", userID).Msg("forced logout received")
	s.clearLocal()
	if err := s.deps.Store.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("clearing persisted session")
	}
	s.notify()
	s.deps.Navigator.ToLogin(ReasonLoggedOut)
}

// AccountUpdated handles a server-pushed auth:account update by re-fetching
// the session.
func (s *Service) AccountUpdated(userID string) {
	if !s.isCurrentUser(userID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.Revalidate(ctx); err != nil && !errors.Is(err, ErrAccountDeleted) {
		s.logger.Warn().Err(err).Msg("revalidation after account update")
	}
}

// AccountDeleted handles a server-pushed auth:account delete: full wipe,
// disconnect, single reliable navigation to login with the deleted flag.
func (s *Service) AccountDeleted(userID string) {
	if !s.isCurrentUser(userID) {
		return
	}
	s.lock.Lock()
	gen := s.gen
	s.lock.Unlock()
	s.handleDeleted(gen)
}

func (s *Service) isCurrentUser(userID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.session != nil && s.session.User.ID == userID
}

// ConnectionRejected handles an authentication refusal on the realtime
// channel's connect, which ends the session exactly like a transport 401
// whose refresh failed.
func (s *Service) ConnectionRejected() {
	s.onRefreshFailed()
}

// onRefreshFailed is the transport's auth-failure hook: the token could not
// be refreshed, so the session is over.
func (s *Service) onRefreshFailed() {
	s.lock.Lock()
	hadSession := s.session != nil
	s.lock.Unlock()
	if !hadSession {
		return
	}
	s.logger.Info().Msg("token refresh failed, ending session")
	s.clearLocal()
	if err := s.deps.Store.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("clearing persisted session")
	}
	s.notify()
	s.deps.Navigator.ToLogin(ReasonSessionExpired)
}

// onTokenRefreshed persists a replacement token delivered by the transport.
// User snapshot and token are rewritten together.
func (s *Service) onTokenRefreshed(tok string) {
	s.lock.Lock()
	s.deps.Tokens.Set(tok)
	if s.session == nil {
		s.lock.Unlock()
		return
	}
	s.session.BearerToken = tok
	sess := s.copySessionLocked()
	s.lock.Unlock()

	if err := s.deps.Store.Save(sess); err != nil {
		s.logger.Warn().Err(err).Msg("persisting refreshed token")
	}
}

// adoptSession installs a freshly authenticated session, unless a logout
// superseded the operation while it was in flight.
func (s *Service) adoptSession(gen uint64, tok string, user session.User) (*session.Session, error) {
	s.lock.Lock()
	if s.gen != gen {
		s.lock.Unlock()
		return nil, ErrSuperseded
	}
	s.session = &session.Session{User: user, BearerToken: tok}
	s.state = StateAuthenticated
	s.sessionChecked = true
	s.deps.Tokens.Set(tok)
	sess := s.copySessionLocked()
	s.lock.Unlock()

	if err := s.deps.Store.Save(sess); err != nil {
		return nil, errors.Wrap(err, "[adoptSession] store.Save")
	}
	s.notify()
	return sess, nil
}

// handleDeleted is the severe path: the account is gone, so everything the
// store holds is wiped (not just the auth keys) and the navigator is told to
// land on login with the deleted indicator. One reliable navigation call.
func (s *Service) handleDeleted(gen uint64) {
	s.lock.Lock()
	if s.gen != gen {
		s.lock.Unlock()
		return
	}
	s.gen++
	s.session = nil
	s.state = StateAnonymous
	s.sessionChecked = true
	ch := s.channel
	s.lock.Unlock()

	s.deps.Tokens.Clear()
	if err := s.deps.Store.ClearAll(); err != nil {
		s.logger.Error().Err(err).Msg("wiping local storage for deleted account")
	}
	if ch != nil {
		_ = ch.Close()
	}
	s.notify()
	s.deps.Navigator.ToLogin(ReasonDeleted)
}

// becomeAnonymous records a resolved anonymous verdict.
func (s *Service) becomeAnonymous(checked bool) {
	s.lock.Lock()
	s.session = nil
	s.state = StateAnonymous
	s.sessionChecked = checked
	s.lock.Unlock()
	s.deps.Tokens.Clear()
	s.notify()
}

// clearLocal drops the in-memory session, token and realtime connection.
func (s *Service) clearLocal() {
	s.lock.Lock()
	s.gen++
	s.session = nil
	s.state = StateAnonymous
	s.sessionChecked = true
	ch := s.channel
	s.lock.Unlock()

	s.deps.Tokens.Clear()
	if ch != nil {
		_ = ch.Close()
	}
}

func (s *Service) classifyLoginError(err error, identifier string) error {
	apiErr, ok := api.AsAPIError(err)
	if !ok {
		return err
	}
	switch apiErr.Code {
	case apimodel.CodeEmailNotVerified:
		return ErrEmailNotVerified
	case apimodel.CodeAccountLocked:
		email := apiErr.Email
		if email == "" {
			email = identifier
		}
		return &LockoutError{Email: email}
	default:
		return errors.Wrap(ErrInvalidCredentials, apiErr.Error())
	}
}

func (s *Service) generation() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.gen
}

func (s *Service) copySessionLocked() *session.Session {
	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

func (s *Service) notify() {
	s.lock.Lock()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	state := s.state
	sess := s.copySessionLocked()
	s.lock.Unlock()

	for _, fn := range subs {
		fn(state, sess)
	}
}
