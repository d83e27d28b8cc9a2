package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

const callbackTimeout = 5 * time.Minute

func cmdGoogleLogin() *cli.Command {
	var callbackAddr string
	return &cli.Command{
		Name:  "google-login",
		Usage: "Sign in with Google (authorization code + PKCE)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "callback-addr",
				Usage:       "Local address to receive the OAuth callback on",
				Value:       "localhost:8765",
				Destination: &callbackAddr,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			authURL, err := a.auth.GoogleAuthURL(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Open this URL in your browser to continue:")
			fmt.Println("  " + authURL)

			code, err := waitForCallback(ctx, callbackAddr)
			if err != nil {
				return err
			}

			sess, err := a.auth.ExchangeCode(ctx, code)
			if err != nil {
				return err
			}
			printSignedIn(sess)
			return nil
		},
	}
}

// callbackResult is what the local redirect endpoint yields.
type callbackResult struct {
	code string
	err  error
}

// waitForCallback runs a one-shot HTTP server on the redirect address and
// waits for the provider to deliver the authorization code.
func waitForCallback(ctx context.Context, addr string) (string, error) {
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errCode := q.Get("error"); errCode != "" {
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
			results <- callbackResult{err: errors.Errorf("provider returned %s: %s", errCode, q.Get("error_description"))}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
			results <- callbackResult{err: errors.New("authorization code missing in callback")}
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
		results <- callbackResult{code: code}
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			results <- callbackResult{err: errors.Wrap(err, "callback server")}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-results:
		return res.code, res.err
	case <-time.After(callbackTimeout):
		return "", errors.New("timed out waiting for the OAuth callback")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
