// Package transport provides the intercepting HTTP client every backend
// call goes through. It attaches the bearer credential on the way out and
// handles 401 responses with a single refresh-and-replay, so feature code
// never deals with token plumbing.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
)

// TokenSource yields the current bearer token, or "" when anonymous.
type TokenSource interface {
	Token() string
}

// TokenRefresher exchanges the current token for a fresh one.
type TokenRefresher interface {
	Refresh(ctx context.Context, current string) (string, error)
}

type contextKey string

// retriedKey marks a request that has already been replayed after a refresh.
// The flag travels in the request context so at most one refresh can ever
// happen per original call, whatever path the request took.
const retriedKey contextKey = "auth_retried"

const requestIDHeader = "X-Request-ID"

// Interceptor is the RoundTripper behind Client().
type Interceptor struct {
	base      http.RoundTripper
	source    TokenSource
	refresher TokenRefresher
	logger    zerolog.Logger

	lock             sync.RWMutex
	suspended        bool
	onAuthFailure    func()
	onTokenRefreshed func(token string)
}

// Options configures New. Base defaults to http.DefaultTransport.
type Options struct {
	Base      http.RoundTripper
	Source    TokenSource
	Refresher TokenRefresher
	Logger    zerolog.Logger
}

func New(opts Options) *Interceptor {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return &Interceptor{
		base:      base,
		source:    opts.Source,
		refresher: opts.Refresher,
		logger:    opts.Logger,
	}
}

// Client returns an *http.Client backed by the interceptor.
func (i *Interceptor) Client() *http.Client {
	return &http.Client{Transport: i, Timeout: 30 * time.Second}
}

// SetAuthFailureHandler installs the hook invoked when a refresh attempt
// fails, i.e. the session is unrecoverable. Installed once at wiring time.
func (i *Interceptor) SetAuthFailureHandler(fn func()) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.onAuthFailure = fn
}

// SetTokenRefreshedHandler installs the hook invoked with the replacement
// token after a successful refresh, so the owner can persist it.
func (i *Interceptor) SetTokenRefreshedHandler(fn func(token string)) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.onTokenRefreshed = fn
}

// Suspend gates the refresh path off. Used around the logout sequence so the
// logout request itself cannot enter a refresh loop.
func (i *Interceptor) Suspend() {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.suspended = true
}

// Resume re-enables the refresh path.
func (i *Interceptor) Resume() {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.suspended = false
}

func (i *Interceptor) isSuspended() bool {
	i.lock.RLock()
	defer i.lock.RUnlock()
	return i.suspended
}

func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	tok := ""
	if i.source != nil {
		tok = i.source.Token()
	}

	out := req.Clone(req.Context())
	if tok != "" {
		out.Header.Set("Authorization", "Bearer "+tok)
	}
	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.NewString())
	}

	i.logger.Debug().
		Str("method", out.Method).
		Str("path", out.URL.Path).
		Str("request_id", out.Header.Get(requestIDHeader)).
		Msg("outgoing request")

	resp, err := i.base.RoundTrip(out)
	if err != nil {
		// Network-layer failure. Passed through untouched - connectivity
		// problems must never look like authentication problems.
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if tok == "" || i.refresher == nil || i.isSuspended() {
		return resp, nil
	}
	if req.Context().Value(retriedKey) != nil {
		return resp, nil
	}

	return i.refreshAndReplay(req, resp, tok)
}

// refreshAndReplay performs the single refresh attempt and replays the
// original request with the new token. On refresh failure the original 401
// is returned and the auth-failure hook fires.
func (i *Interceptor) refreshAndReplay(req *http.Request, unauthorized *http.Response, staleToken string) (*http.Response, error) {
	// Buffer the 401 so it can still be returned if refresh fails.
	origBody, readErr := io.ReadAll(io.LimitReader(unauthorized.Body, 1<<20))
	unauthorized.Body.Close()
	if readErr != nil {
		origBody = nil
	}
	unauthorized.Body = io.NopCloser(bytes.NewReader(origBody))

	if isAccountGone(origBody) {
		// A deleted account is terminal, not a stale token. The response
		// goes back untouched so the session layer runs its wipe path.
		return unauthorized, nil
	}

	fresh, err := i.refresher.Refresh(req.Context(), staleToken)
	if err != nil {
		i.logger.Warn().Err(err).Msg("token refresh failed")
		i.lock.RLock()
		hook := i.onAuthFailure
		i.lock.RUnlock()
		if hook != nil {
			hook()
		}
		return unauthorized, nil
	}

	i.lock.RLock()
	refreshed := i.onTokenRefreshed
	i.lock.RUnlock()
	if refreshed != nil {
		refreshed(fresh)
	}

	retry := req.Clone(context.WithValue(req.Context(), retriedKey, true))
	if req.Body != nil {
		if req.GetBody == nil {
			// Body already consumed and not replayable.
			return unauthorized, nil
		}
		body, err := req.GetBody()
		if err != nil {
			return unauthorized, nil
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+fresh)

	i.logger.Debug().
		Str("method", retry.Method).
		Str("path", retry.URL.Path).
		Msg("replaying request with refreshed token")

	unauthorized.Body.Close()
	return i.base.RoundTrip(retry)
}

// isAccountGone reports whether the rejection body names a deleted account.
func isAccountGone(body []byte) bool {
	var payload struct {
		Code apimodel.ErrorCode `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Code == apimodel.CodeUserDeleted
}
