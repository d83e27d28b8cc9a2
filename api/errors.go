package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
)

// decodeError turns a non-2xx response into an *apimodel.Error. Bodies that
// are not the backend's error shape still yield a typed error carrying the
// status, so callers can always distinguish "the server said no" from "the
// server was unreachable".
func decodeError(resp *http.Response) error {
	apiErr := &apimodel.Error{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}
	return apiErr
}

// AsAPIError unwraps err into an *apimodel.Error if one is in the chain.
func AsAPIError(err error) (*apimodel.Error, bool) {
	var apiErr *apimodel.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
