package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized matches every *APIError with status 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx answer from the server. Message is the server's
// user-facing text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Is lets callers test for ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// API sends JSON requests to the server. It is owned by a Controller,
// which supplies the bearer token and is told which token was rejected.
type API struct {
	baseURL        string
	httpClient     *http.Client
	token          func() string
	onUnauthorized func(token string)
}

func newAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// do performs one request with the current token. Any 401 forces a logout
// unless the call is part of the login or registration flow, where a 401
// only means bad input.
func (a *API) do(ctx context.Context, method, path string, body, out any, authFlow bool) error {
	token := ""
	if !authFlow && a.token != nil {
		token = a.token()
	}
	return a.send(ctx, method, path, token, body, out, authFlow)
}

// send performs one request with the given bearer token.
func (a *API) send(ctx context.Context, method, path, token string, body, out any, authFlow bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&msg) == nil {
			apiErr.Message = msg.Message
		}
		if resp.StatusCode == http.StatusUnauthorized && !authFlow && token != "" && a.onUnauthorized != nil {
			a.onUnauthorized(token)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
