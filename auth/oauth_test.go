package auth_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
	"github.com/fieldhouse/fieldhouse-go/auth"
)

// seedVerifier plants a stored PKCE verifier as if GoogleAuthURL had run.
func (f *testFixture) seedVerifier(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.SaveVerifier(strings.Repeat("v", 43)))
}

func TestGoogleAuthURLPersistsVerifier(t *testing.T) {
	f := setupTestFixture(t)
	var sentVerifier string
	f.backend.set(&f.backend.onURL, func(w http.ResponseWriter, r *http.Request) {
		sentVerifier = r.URL.Query().Get("codeVerifier")
		writeJSON(w, http.StatusOK, apimodel.GoogleAuthURLResponse{
			AuthURL: "https://accounts.google.com/o/oauth2/v2/auth?state=abc",
		})
	})

	authURL, err := f.service.GoogleAuthURL(context.Background())
	require.NoError(t, err)
	require.Contains(t, authURL, "accounts.google.com")

	require.True(t, f.store.HasVerifier(), "verifier must survive until the code exchange")
	require.GreaterOrEqual(t, len(sentVerifier), 43)
}

func TestExchangeCodeEstablishesSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedVerifier(t)
	f.backend.set(&f.backend.onExchange, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apimodel.LoginResponse{Token: testToken, User: testAPIUser()})
	})

	sess, err := f.service.ExchangeCode(context.Background(), "code-abc")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.True(t, f.service.IsAuthenticated())
	require.False(t, f.store.HasVerifier(), "verifier is single use")
}

func TestExchangeCodeConsumesVerifierOnFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.seedVerifier(t)
	f.backend.set(&f.backend.onExchange, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, apimodel.Error{Message: "invalid grant"})
	})

	_, err := f.service.ExchangeCode(context.Background(), "code-abc")
	require.Error(t, err)
	require.Nil(t, f.service.Session())
	require.False(t, f.store.HasVerifier(), "a failed exchange must not leave the verifier behind")
}

func TestExchangeCodeWithoutVerifier(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.ExchangeCode(context.Background(), "code-abc")
	require.ErrorIs(t, err, auth.ErrVerifierMissing)
	require.Equal(t, int32(0), atomic.LoadInt32(&f.backend.ExchangeHits))
}

func TestExchangeCodeShortCircuitsWhenAuthenticated(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	sess, err := f.service.ExchangeCode(context.Background(), "code-late-duplicate")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, int32(0), atomic.LoadInt32(&f.backend.ExchangeHits))
}

func TestConcurrentExchangesShareOneRequest(t *testing.T) {
	f := setupTestFixture(t)
	f.seedVerifier(t)

	release := make(chan struct{})
	f.backend.set(&f.backend.onExchange, func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, apimodel.LoginResponse{Token: testToken, User: testAPIUser()})
	})

	const callers = 4
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			defer done.Done()
			sess, err := f.service.ExchangeCode(context.Background(), "code-abc")
			require.NoError(t, err)
			require.NotNil(t, sess)
		}()
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&f.backend.ExchangeHits))
}

func TestExchangeRejectionWithLiveSessionIsSuccess(t *testing.T) {
	f := setupTestFixture(t)
	f.seedVerifier(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.set(&f.backend.onExchange, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		writeJSON(w, http.StatusBadRequest, apimodel.Error{Message: "code already redeemed"})
	})

	type result struct {
		sess bool
		err  error
	}
	results := make(chan result, 1)
	go func() {
		sess, err := f.service.ExchangeCode(context.Background(), "code-abc")
		results <- result{sess: sess != nil, err: err}
	}()
	<-entered

	// The twin exchange won the race and the session already exists.
	f.login(t)
	close(release)

	got := <-results
	require.NoError(t, got.err)
	require.True(t, got.sess)
}
