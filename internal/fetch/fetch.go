// Package fetch performs authorised requests against the API and turns the
// responses into typed values.
//
// PIPELINE (one request, no retries, no caching):
//
//	token present? ──no──▶ ErrAuth (nothing is sent)
//	     │
//	     ▼
//	HTTP request ──transport error──▶ ErrNetwork
//	     │
//	     ▼
//	status 401/403 ──▶ ErrAuth     other non-2xx ──▶ ErrUnexpectedStatus
//	     │
//	     ▼
//	body is JSON? ──no──▶ ErrMalformedResponse
//	     │
//	     ▼
//	matches schema? ──no──▶ ErrSchemaValidation (with field path)
//	     │
//	     ▼
//	decoded T
//
// Failures are returned to the caller as-is. Retrying is the caller's
// decision; a hidden retry loop would mask a broken session.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/gitviz/internal/apperror"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 32 << 20

// Doer is the part of *http.Client the Fetcher needs (allows mocking in tests).
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives one event per finished request, typically for metrics.
type Observer interface {
	ObserveFetch(resource, outcome string, elapsed time.Duration)
}

// Fetcher issues requests through an HTTP client and reports outcomes.
type Fetcher struct {
	client   Doer
	logger   *slog.Logger
	observer Observer
}

// New creates a Fetcher. observer may be nil.
func New(client Doer, logger *slog.Logger, observer Observer) *Fetcher {
	return &Fetcher{
		client:   client,
		logger:   logger,
		observer: observer,
	}
}

// Request describes one API call.
type Request struct {
	Method string
	URL    string
	// Token is the bearer token. Required unless Anonymous is set.
	Token     string
	Anonymous bool
	// Body is JSON-encoded when non-nil.
	Body any
	// Schema validates the response body. With a nil Schema the body is
	// not read.
	Schema *Schema
	// Resource labels logs and metrics; defaults to Schema.Name.
	Resource string
}

func (r Request) resource() string {
	switch {
	case r.Resource != "":
		return r.Resource
	case r.Schema != nil:
		return r.Schema.Name
	default:
		return "unknown"
	}
}

// Get fetches url with a bearer token, validates the body against schema
// and decodes it into T.
func Get[T any](ctx context.Context, f *Fetcher, url string, schema *Schema, token string) (T, error) {
	return Do[T](ctx, f, Request{
		Method: http.MethodGet,
		URL:    url,
		Token:  token,
		Schema: schema,
	})
}

// Do runs r and decodes the validated response body into T.
func Do[T any](ctx context.Context, f *Fetcher, r Request) (T, error) {
	var value T

	start := time.Now()
	body, err := f.roundTrip(ctx, r)
	if err == nil && r.Schema != nil {
		err = decode(r, body, &value)
	}

	f.report(r, err, time.Since(start))
	if err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// Send runs r and ignores the response body.
func Send(ctx context.Context, f *Fetcher, r Request) error {
	r.Schema = nil
	start := time.Now()
	_, err := f.roundTrip(ctx, r)
	f.report(r, err, time.Since(start))
	return err
}

func (f *Fetcher) roundTrip(ctx context.Context, r Request) ([]byte, error) {
	if !r.Anonymous && r.Token == "" {
		return nil, apperror.Auth("fetch: no access token, sign in first")
	}

	var reqBody io.Reader
	if r.Body != nil {
		encoded, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch: encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("fetch: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != "" {
		(&oauth2.Token{AccessToken: r.Token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperror.Network(r.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperror.Auth(fmt.Sprintf("%s rejected the access token (status %d)", r.URL, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperror.UnexpectedStatus(r.URL, resp.StatusCode)
	}

	if r.Schema == nil {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperror.Network(r.URL, err)
	}
	return body, nil
}

func decode(r Request, body []byte, into any) error {
	if !json.Valid(body) {
		// Unmarshal again only to get a descriptive syntax error.
		var discard any
		cause := json.Unmarshal(body, &discard)
		if cause == nil {
			cause = errors.New("invalid JSON")
		}
		return apperror.MalformedResponse(r.URL, cause)
	}

	if err := r.Schema.Validate(body); err != nil {
		return err
	}

	if err := json.Unmarshal(body, into); err != nil {
		return apperror.MalformedResponse(r.URL, err)
	}
	return nil
}

func (f *Fetcher) report(r Request, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	if f.observer != nil {
		f.observer.ObserveFetch(r.resource(), outcome, elapsed)
	}
	if err != nil {
		f.logger.Warn("fetch failed",
			slog.String("method", r.Method),
			slog.String("resource", r.resource()),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return
	}
	f.logger.Debug("fetch completed",
		slog.String("method", r.Method),
		slog.String("resource", r.resource()),
		slog.Duration("duration", elapsed),
	)
}

// Outcome classifies err into a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrAuth):
		return "auth_error"
	case errors.Is(err, apperror.ErrNetwork):
		return "network_error"
	case errors.Is(err, apperror.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, apperror.ErrSchemaValidation):
		return "schema_violation"
	case errors.Is(err, apperror.ErrUnexpectedStatus):
		return "unexpected_status"
	default:
		return "error"
	}
}
