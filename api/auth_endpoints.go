package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
)

// Backend auth routes.
const (
	RouteSession          = "/auth/session"
	RouteLogin            = "/auth/login"
	RouteUnlock           = "/auth/unlock"
	RouteResendUnlockCode = "/auth/resend-unlock-code"
	RouteGoogleURL        = "/auth/google/url"
	RouteGoogleExchange   = "/auth/google/exchange"
	RouteRefreshToken     = "/auth/refresh-token"
	RouteLogout           = "/auth/logout"
	RouteProfile          = "/auth/profile"
)

// Session verifies the current bearer token and returns the user it belongs
// to. A deleted account surfaces as an *apimodel.Error with CodeUserDeleted.
func (c *Client) Session(ctx context.Context) (*apimodel.SessionResponse, error) {
	var out apimodel.SessionResponse
	if err := c.do(ctx, http.MethodGet, RouteSession, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token and user.
func (c *Client) Login(ctx context.Context, req apimodel.LoginRequest) (*apimodel.LoginResponse, error) {
	var out apimodel.LoginResponse
	if err := c.do(ctx, http.MethodPost, RouteLogin, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unlock resolves an account lockout; success logs the user in.
func (c *Client) Unlock(ctx context.Context, req apimodel.UnlockRequest) (*apimodel.LoginResponse, error) {
	var out apimodel.LoginResponse
	if err := c.do(ctx, http.MethodPost, RouteUnlock, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendUnlockCode requests a fresh unlock code for a locked account.
func (c *Client) ResendUnlockCode(ctx context.Context, req apimodel.ResendUnlockCodeRequest) error {
	return c.do(ctx, http.MethodPost, RouteResendUnlockCode, nil, req, nil)
}

// GoogleAuthURL asks the backend to build the provider's authorization URL
// bound to the given PKCE verifier.
func (c *Client) GoogleAuthURL(ctx context.Context, codeVerifier string) (*apimodel.GoogleAuthURLResponse, error) {
	var out apimodel.GoogleAuthURLResponse
	q := url.Values{"codeVerifier": {codeVerifier}}
	if err := c.do(ctx, http.MethodGet, RouteGoogleURL, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GoogleExchange trades the provider's authorization code plus the verifier
// for a token and user.
func (c *Client) GoogleExchange(ctx context.Context, req apimodel.GoogleExchangeRequest) (*apimodel.LoginResponse, error) {
	var out apimodel.LoginResponse
	if err := c.do(ctx, http.MethodPost, RouteGoogleExchange, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout notifies the backend that the session is ending.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, RouteLogout, nil, nil, nil)
}

// UpdateProfile applies a partial profile update and returns the merged user.
func (c *Client) UpdateProfile(ctx context.Context, req apimodel.ProfileUpdate) (*apimodel.User, error) {
	var out apimodel.User
	if err := c.do(ctx, http.MethodPatch, RouteProfile, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
