package token

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
)

// Refresher exchanges an expired bearer token for a fresh one. It speaks to
// the backend with a plain HTTP client on purpose: the refresh call must not
// pass through the intercepting transport or a failing token could trigger
// refresh recursion.
type Refresher struct {
	baseURL string
	client  *http.Client
}

func NewRefresher(baseURL string, client *http.Client) *Refresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Refresher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Refresh posts the current token and returns its replacement.
func (r *Refresher) Refresh(ctx context.Context, current string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/auth/refresh-token", nil)
	if err != nil {
		return "", errors.Wrap(err, "[Refresher.Refresh] http.NewRequest")
	}
	req.Header.Set("Authorization", "Bearer "+current)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "[Refresher.Refresh] client.Do")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "[Refresher.Refresh] io.ReadAll")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apimodel.Error{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return "", apiErr
	}

	var refreshed apimodel.RefreshResponse
	if err := json.Unmarshal(body, &refreshed); err != nil {
		return "", errors.Wrap(err, "[Refresher.Refresh] json.Unmarshal")
	}
	if refreshed.Token == "" {
		return "", errors.New("[Refresher.Refresh] empty token in response")
	}
	return refreshed.Token, nil
}
