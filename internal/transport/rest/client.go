package rest

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

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// ErrUnauthorized is returned when the backend rejects the session token.
var ErrUnauthorized = errors.New("unauthorized")

// TokenStore holds the bearer token of the session.
type TokenStore interface {
	Token() string
	// Clear forgets the token after the backend rejected it.
	Clear() error
}

// APIError is a non-2xx reply.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// Client talks to the REST API. It implements core.API.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenStore
	log    *zerolog.Logger
}

// New creates a client for the API rooted at baseURL (e.g. http://localhost:8080/api).
// tokens may be nil for unauthenticated calls.
func New(baseURL string, tokens TokenStore, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "rest").Logger()
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
		log:    &l,
	}
}

// do sends body as JSON and decodes the reply into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &core.CoreError{
			Code:    core.ErrCodeNetworkFailure,
			Message: fmt.Sprintf("%s %s: %v", method, path, err),
			Err:     fmt.Errorf("%w: %w", core.ErrNetworkFailure, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.failure(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.CoreError{
			Code:    core.ErrCodeNetworkFailure,
			Message: fmt.Sprintf("decode %s %s: %v", method, path, err),
			Err:     fmt.Errorf("%w: %w", core.ErrNetworkFailure, err),
		}
	}
	return nil
}

func (c *Client) failure(method, path string, resp *http.Response) error {
	var body proto.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	apiErr := &APIError{Status: resp.StatusCode, Message: body.Error}
	msg := fmt.Sprintf("%s %s: %s", method, path, body.Error)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.tokens != nil && !isAuthPath(path) {
			if err := c.tokens.Clear(); err != nil {
				c.log.Warn().Err(err).Msg("failed to clear rejected token")
			}
		}
		return &core.CoreError{Code: core.ErrCodeUnauthorized, Message: msg, Err: fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)}
	case resp.StatusCode == http.StatusNotFound:
		return &core.CoreError{Code: core.ErrCodeNotFound, Message: msg, Err: fmt.Errorf("%w: %w", core.ErrNotFound, apiErr)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &core.CoreError{Code: core.ErrCodeBadRequest, Message: msg, Err: apiErr}
	default:
		return &core.CoreError{Code: core.ErrCodeNetworkFailure, Message: msg, Err: fmt.Errorf("%w: %w", core.ErrNetworkFailure, apiErr)}
	}
}

// isAuthPath reports whether a 401 means bad credentials rather than a stale session.
func isAuthPath(path string) bool {
	return path == "/login" || path == "/register"
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
