package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fieldhouse/fieldhouse-go/api"
	"github.com/fieldhouse/fieldhouse-go/apimodel"
	"github.com/fieldhouse/fieldhouse-go/auth"
	"github.com/fieldhouse/fieldhouse-go/session"
	"github.com/fieldhouse/fieldhouse-go/session/storefakes"
	"github.com/fieldhouse/fieldhouse-go/token"
	"github.com/fieldhouse/fieldhouse-go/transport"
)

const (
	testUserID    = "user-1"
	testUserEmail = "jo.bloggs@example.com"
	testToken     = "tok-initial"
)

func testAPIUser() *apimodel.User {
	return &apimodel.User{
		ID:    testUserID,
		Email: testUserEmail,
		Role:  "player",
	}
}

// testBackend is a programmable fake of the platform API. Handlers can be
// swapped per test; every route counts its hits.
type testBackend struct {
	lock sync.Mutex

	SessionHits  int32
	LoginHits    int32
	LogoutHits   int32
	ExchangeHits int32

	onSession  http.HandlerFunc
	onLogin    http.HandlerFunc
	onLogout   http.HandlerFunc
	onUnlock   http.HandlerFunc
	onResend   http.HandlerFunc
	onURL      http.HandlerFunc
	onExchange http.HandlerFunc
	onProfile  http.HandlerFunc
}

func (b *testBackend) set(handler *http.HandlerFunc, fn http.HandlerFunc) {
	b.lock.Lock()
	defer b.lock.Unlock()
	*handler = fn
}

func (b *testBackend) get(handler *http.HandlerFunc) http.HandlerFunc {
	b.lock.Lock()
	defer b.lock.Unlock()
	return *handler
}

func (b *testBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var fn http.HandlerFunc
	switch r.URL.Path {
	case api.RouteSession:
		atomic.AddInt32(&b.SessionHits, 1)
		fn = b.get(&b.onSession)
	case api.RouteLogin:
		atomic.AddInt32(&b.LoginHits, 1)
		fn = b.get(&b.onLogin)
	case api.RouteLogout:
		atomic.AddInt32(&b.LogoutHits, 1)
		fn = b.get(&b.onLogout)
	case api.RouteUnlock:
		fn = b.get(&b.onUnlock)
	case api.RouteResendUnlockCode:
		fn = b.get(&b.onResend)
	case api.RouteGoogleURL:
		fn = b.get(&b.onURL)
	case api.RouteGoogleExchange:
		atomic.AddInt32(&b.ExchangeHits, 1)
		fn = b.get(&b.onExchange)
	case api.RouteProfile:
		fn = b.get(&b.onProfile)
	}
	if fn == nil {
		http.NotFound(w, r)
		return
	}
	fn(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeNavigator struct {
	lock    sync.Mutex
	reasons []auth.LoginReason
}

func (n *fakeNavigator) ToLogin(reason auth.LoginReason) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *fakeNavigator) Reasons() []auth.LoginReason {
	n.lock.Lock()
	defer n.lock.Unlock()
	out := make([]auth.LoginReason, len(n.reasons))
	copy(out, n.reasons)
	return out
}

type testFixture struct {
	backend   *testBackend
	server    *httptest.Server
	store     *storefakes.FakeStore
	tokens    *token.Holder
	navigator *fakeNavigator
	service   *auth.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := &testBackend{
		onSession: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, apimodel.SessionResponse{User: testAPIUser()})
		},
		onLogin: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, apimodel.LoginResponse{Token: testToken, User: testAPIUser()})
		},
		onLogout: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	store := storefakes.NewFakeStore()
	store.OtherKeys["venue-cache"] = "stale"

	tokens := token.NewHolder()
	interceptor := transport.New(transport.Options{
		Source:    tokens,
		Refresher: token.NewRefresher(server.URL, nil),
		Logger:    zerolog.Nop(),
	})
	apiClient := api.New(server.URL, interceptor.Client(), zerolog.Nop())
	navigator := &fakeNavigator{}

	svc, err := auth.NewService(auth.Deps{
		API:       apiClient,
		Store:     store,
		Tokens:    tokens,
		Transport: interceptor,
		Navigator: navigator,
	})
	require.NoError(t, err)

	return &testFixture{
		backend:   backend,
		server:    server,
		store:     store,
		tokens:    tokens,
		navigator: navigator,
		service:   svc,
	}
}

// login drives a password login to an authenticated state.
func (f *testFixture) login(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.service.LoginWithPassword(context.Background(), testUserEmail, "secret123")
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

// seedStoredSession plants a persisted session as if a previous run saved it.
func (f *testFixture) seedStoredSession(t *testing.T, photo string) {
	t.Helper()
	require.NoError(t, f.store.Save(&session.Session{
		User:        session.User{ID: testUserID, Email: testUserEmail, Role: session.RolePlayer, PhotoURL: photo},
		BearerToken: testToken,
	}))
}

func TestCheckSessionWithoutStoredToken(t *testing.T) {
	f := setupTestFixture(t)

	sess, err := f.service.CheckSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess)
	require.Equal(t, auth.StateAnonymous, f.service.State())
	require.Equal(t, int32(0), atomic.LoadInt32(&f.backend.SessionHits))

	// Verdict is cached; still no network traffic.
	_, err = f.service.CheckSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(0), atomic.LoadInt32(&f.backend.SessionHits))
}

func TestCheckSessionRestoresStoredSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, "")

	sess, err := f.service.CheckSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, testUserEmail, sess.User.Email)
	require.Equal(t, auth.StateAuthenticated, f.service.State())
	require.Equal(t, testToken, f.tokens.Token())
}

func TestCheckSessionPreservesLocalPhoto(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, "https://cdn.example.com/me-local.jpg")
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		user := testAPIUser()
		user.PhotoURL = "https://provider.example.com/stale.jpg"
		writeJSON(w, http.StatusOK, apimodel.SessionResponse{User: user})
	})

	sess, err := f.service.CheckSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/me-local.jpg", sess.User.PhotoURL)
}

func TestCheckSessionDeduplicatesConcurrentCallers(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, "")

	release := make(chan struct{})
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, apimodel.SessionResponse{User: testAPIUser()})
	})

	const callers = 8
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			defer done.Done()
			sess, err := f.service.CheckSession(context.Background())
			require.NoError(t, err)
			require.NotNil(t, sess)
		}()
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond) // let every caller reach the flight
	close(release)
	done.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&f.backend.SessionHits))
}

func TestCheckSessionUserDeletedWipesEverything(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, "")
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, apimodel.Error{Code: apimodel.CodeUserDeleted})
	})

	sess, err := f.service.CheckSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess)

	require.Equal(t, 1, f.store.ClearAllCalls)
	require.Empty(t, f.store.OtherKeys, "unrelated cached state must not survive a deleted account")
	require.Equal(t, []auth.LoginReason{auth.ReasonDeleted}, f.navigator.Reasons())

	// The verdict counts as checked: no further network calls.
	_, err = f.service.CheckSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&f.backend.SessionHits))
}

func TestCheckSessionMissingUserFieldWipesEverything(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, "")
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apimodel.SessionResponse{})
	})

	sess, err := f.service.CheckSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess)
	require.Equal(t, 1, f.store.ClearAllCalls)
	require.Empty(t, f.store.OtherKeys)
	require.Equal(t, auth.StateAnonymous, f.service.State())
}

func TestCheckSessionNetworkErrorLeavesVerdictUnresolved(t *testing.T) {
	f := setupTestFixture(t)
	f.seedStoredSession(t, "")
	f.server.Close()

	_, err := f.service.CheckSession(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, f.store.ClearCalls)
	require.Equal(t, 0, f.store.ClearAllCalls)
	require.Empty(t, f.navigator.Reasons(), "connectivity failures must not redirect")
}

func TestLoginSuccessPersistsSession(t *testing.T) {
	f := setupTestFixture(t)

	sess := f.login(t)
	require.Equal(t, testToken, sess.BearerToken)
	require.Equal(t, testToken, f.tokens.Token())

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Equal(t, testUserID, stored.User.ID)
	require.Equal(t, testToken, stored.BearerToken)
}

func TestLoginLockedCarriesEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.set(&f.backend.onLogin, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, apimodel.Error{
			Code:  apimodel.CodeAccountLocked,
			Email: "locked@example.com",
		})
	})

	_, err := f.service.LoginWithPassword(context.Background(), "locked@example.com", "wrong")
	lockErr, ok := auth.IsLocked(err)
	require.True(t, ok)
	require.Equal(t, "locked@example.com", lockErr.Email)
}

func TestLoginEmailNotVerified(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.set(&f.backend.onLogin, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, apimodel.Error{Code: apimodel.CodeEmailNotVerified})
	})

	_, err := f.service.LoginWithPassword(context.Background(), testUserEmail, "secret123")
	require.ErrorIs(t, err, auth.ErrEmailNotVerified)
}

func TestLoginGenericFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.set(&f.backend.onLogin, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, apimodel.Error{Code: apimodel.CodeInvalidCredentials})
	})

	_, err := f.service.LoginWithPassword(context.Background(), testUserEmail, "wrong")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLoginValidatesParameters(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.LoginWithPassword(context.Background(), "", "")
	require.Error(t, err)
	require.Equal(t, int32(0), atomic.LoadInt32(&f.backend.LoginHits))
}

func TestUnlockAccountLogsUserIn(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.set(&f.backend.onUnlock, func(w http.ResponseWriter, r *http.Request) {
		var req apimodel.UnlockRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "123456", req.Code)
		writeJSON(w, http.StatusOK, apimodel.LoginResponse{Token: testToken, User: testAPIUser()})
	})

	sess, err := f.service.UnlockAccount(context.Background(), testUserEmail, "123456")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.True(t, f.service.IsAuthenticated())
}

func TestUnlockExpiredFallsBackToLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.set(&f.backend.onUnlock, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusGone, apimodel.Error{Code: apimodel.CodeLockoutExpired})
	})

	_, err := f.service.UnlockAccount(context.Background(), testUserEmail, "123456")
	require.ErrorIs(t, err, auth.ErrLockoutExpired)
}

func TestUnlockValidatesCode(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.UnlockAccount(context.Background(), testUserEmail, "12ab56")
	require.Error(t, err)

	_, err = f.service.UnlockAccount(context.Background(), testUserEmail, "12345")
	require.Error(t, err)
}

func TestLogoutClearsEverythingLocally(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	require.NoError(t, f.service.Logout(context.Background()))

	require.Nil(t, f.service.Session())
	require.Empty(t, f.tokens.Token())
	_, err := f.store.Load()
	require.ErrorIs(t, err, session.ErrNotFound)
	require.Equal(t, int32(1), atomic.LoadInt32(&f.backend.LogoutHits))
	require.Equal(t, []auth.LoginReason{auth.ReasonLoggedOut}, f.navigator.Reasons())
}

func TestLogoutWhenAnonymousIsNoOp(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.service.Logout(context.Background()))
	require.Equal(t, int32(0), atomic.LoadInt32(&f.backend.LogoutHits))
	require.Empty(t, f.navigator.Reasons())
}

func TestLogoutSwallowsServerFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.set(&f.backend.onLogout, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	require.NoError(t, f.service.Logout(context.Background()))
	require.Nil(t, f.service.Session())
	_, err := f.store.Load()
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestStaleLoginResultIgnoredAfterLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.set(&f.backend.onLogin, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		writeJSON(w, http.StatusOK, apimodel.LoginResponse{Token: "tok-stale-login", User: testAPIUser()})
	})

	errs := make(chan error, 1)
	go func() {
		_, err := f.service.LoginWithPassword(context.Background(), testUserEmail, "secret123")
		errs <- err
	}()
	<-entered

	require.NoError(t, f.service.Logout(context.Background()))
	close(release)

	require.ErrorIs(t, <-errs, auth.ErrSuperseded)
	require.Nil(t, f.service.Session(), "a stale login response must not resurrect a session")
	require.Empty(t, f.tokens.Token())
}

func TestUpdateProfileOptimisticMerge(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.set(&f.backend.onProfile, func(w http.ResponseWriter, r *http.Request) {
		user := testAPIUser()
		user.DisplayName = "Jo B."
		writeJSON(w, http.StatusOK, user)
	})

	name := "Jo B."
	sess, err := f.service.UpdateProfile(context.Background(), apimodel.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	require.Equal(t, "Jo B.", sess.User.DisplayName)

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Equal(t, "Jo B.", stored.User.DisplayName)
}

func TestUpdateProfileFailureResyncsFromServer(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.set(&f.backend.onProfile, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, apimodel.Error{Message: "boom"})
	})
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		user := testAPIUser()
		user.DisplayName = "Server Truth"
		writeJSON(w, http.StatusOK, apimodel.SessionResponse{User: user})
	})

	name := "Local Only"
	_, err := f.service.UpdateProfile(context.Background(), apimodel.ProfileUpdate{DisplayName: &name})
	require.Error(t, err)

	sess := f.service.Session()
	require.NotNil(t, sess)
	require.Equal(t, "Server Truth", sess.User.DisplayName, "failed update must resync, not keep local-only data")
}

func TestUpdateProfileRequiresSession(t *testing.T) {
	f := setupTestFixture(t)

	name := "nobody"
	_, err := f.service.UpdateProfile(context.Background(), apimodel.ProfileUpdate{DisplayName: &name})
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestVerifyUserExistsDetectsDeletion(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, apimodel.Error{Code: apimodel.CodeUserDeleted})
	})

	err := f.service.VerifyUserExists(context.Background())
	require.ErrorIs(t, err, auth.ErrAccountDeleted)
	require.Nil(t, f.service.Session())
	require.Equal(t, 1, f.store.ClearAllCalls)
	require.Equal(t, []auth.LoginReason{auth.ReasonDeleted}, f.navigator.Reasons())
}

func TestVerifyUserExistsAnonymousIsNoOp(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.service.VerifyUserExists(context.Background()))
	require.Equal(t, int32(0), atomic.LoadInt32(&f.backend.SessionHits))
}

func TestRealtimeAccountDeleteEvent(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.service.AccountDeleted(testUserID)

	require.Nil(t, f.service.Session())
	require.Equal(t, 1, f.store.ClearAllCalls)
	require.Equal(t, []auth.LoginReason{auth.ReasonDeleted}, f.navigator.Reasons())
}

func TestRealtimeEventsForOtherUsersIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.service.AccountDeleted("someone-else")
	f.service.ForcedLogout("someone-else")

	require.NotNil(t, f.service.Session())
	require.Empty(t, f.navigator.Reasons())
}

func TestRealtimeForcedLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.service.ForcedLogout(testUserID)

	require.Nil(t, f.service.Session())
	require.Empty(t, f.tokens.Token())
	require.Equal(t, []auth.LoginReason{auth.ReasonLoggedOut}, f.navigator.Reasons())
}

func TestRealtimeAccountUpdateRevalidates(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		user := testAPIUser()
		user.DisplayName = "Renamed"
		writeJSON(w, http.StatusOK, apimodel.SessionResponse{User: user})
	})

	f.service.AccountUpdated(testUserID)

	sess := f.service.Session()
	require.NotNil(t, sess)
	require.Equal(t, "Renamed", sess.User.DisplayName)
}

func TestSubscribersObserveTransitions(t *testing.T) {
	f := setupTestFixture(t)

	var states []auth.State
	f.service.Subscribe(func(state auth.State, _ *session.Session) {
		states = append(states, state)
	})

	f.login(t)
	require.NoError(t, f.service.Logout(context.Background()))

	require.Equal(t, []auth.State{auth.StateAuthenticated, auth.StateAnonymous}, states)
}

func TestRefreshFailureEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	// Every authenticated endpoint now 401s and the refresh endpoint
	// rejects, so the next call should cascade into a cleared session.
	f.backend.set(&f.backend.onSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, apimodel.Error{Code: "TOKEN_EXPIRED"})
	})

	err := f.service.VerifyUserExists(context.Background())
	require.Error(t, err)
	require.Nil(t, f.service.Session())
	require.Equal(t, []auth.LoginReason{auth.ReasonSessionExpired}, f.navigator.Reasons())
}
