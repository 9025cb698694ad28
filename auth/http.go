// Package auth obtains signatures for private and presence channels from an
// application authorization endpoint.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/miladsoleymani/eventcast/broadcaster"
	"github.com/miladsoleymani/eventcast/core"
)

// maxBody bounds how much of an authorization response is read.
const maxBody = 1 << 20

// HTTPAuthorizer posts the socket id and channel name to an endpoint and
// decodes the signature it returns.
type HTTPAuthorizer struct {
	endpoint   string
	headers    map[string]string
	params     map[string]string
	csrfToken  string
	httpClient *http.Client
}

var _ core.Authorizer = (*HTTPAuthorizer)(nil)

// NewHTTPAuthorizer creates an authorizer for cfg.Endpoint. A nil client
// uses http.DefaultClient.
func NewHTTPAuthorizer(cfg broadcaster.AuthConfig, client *http.Client) *HTTPAuthorizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAuthorizer{
		endpoint:   cfg.Endpoint,
		headers:    cfg.Headers,
		params:     cfg.Params,
		csrfToken:  cfg.CSRFToken,
		httpClient: client,
	}
}

func (a *HTTPAuthorizer) Authorize(ctx context.Context, socketID, channel string) (core.Auth, error) {
	form := url.Values{}
	for k, v := range a.params {
		form.Set(k, v)
	}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return core.Auth{}, &core.TransportError{Op: "authorize " + channel, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}
	if a.csrfToken != "" {
		req.Header.Set("X-CSRF-TOKEN", a.csrfToken)
	}

	resp, err := a.httpClient.Do(req) //nolint:gosec // endpoint from trusted config
	if err != nil {
		return core.Auth{}, &core.TransportError{Op: "authorize " + channel, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return core.Auth{}, &core.TransportError{Op: "authorize " + channel, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return core.Auth{}, &core.AuthorizationError{
			Channel: channel,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return core.Auth{}, &core.TransportError{
			Op:  "authorize " + channel,
			Err: fmt.Errorf("auth endpoint returned %d", resp.StatusCode),
		}
	}

	var out core.Auth
	if err := json.Unmarshal(body, &out); err != nil {
		return core.Auth{}, &core.TransportError{Op: "authorize " + channel, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}
