package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPServiceOptions configures an HTTPService.
type HTTPServiceOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// HTTPService talks JSON over HTTP to a collection-style backend:
//
//	POST   {base}/{entityType}            insert
//	PATCH  {base}/{entityType}/{entityID} update
//	DELETE {base}/{entityType}/{entityID} delete
//
// Failure bodies of the shape {"error": {"code", "message"}} become
// *Error so Classify can bucket them; transport failures pass through
// wrapped and classify as network.
type HTTPService struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewHTTPService creates an HTTP-backed remote data service.
func NewHTTPService(opts HTTPServiceOptions) (*HTTPService, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPService{
		baseURL:    baseURL,
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}, nil
}

// Insert creates a record in the remote collection.
func (s *HTTPService) Insert(ctx context.Context, entityType string, payload json.RawMessage) (json.RawMessage, error) {
	return s.do(ctx, http.MethodPost, s.entityPath(entityType, ""), payload)
}

// Update patches an existing record by id.
func (s *HTTPService) Update(ctx context.Context, entityType, entityID string, payload json.RawMessage) (json.RawMessage, error) {
	return s.do(ctx, http.MethodPatch, s.entityPath(entityType, entityID), payload)
}

// Delete removes a record by id.
func (s *HTTPService) Delete(ctx context.Context, entityType, entityID string) error {
	_, err := s.do(ctx, http.MethodDelete, s.entityPath(entityType, entityID), nil)
	return err
}

func (s *HTTPService) entityPath(entityType, entityID string) string {
	p := s.baseURL + "/" + url.PathEscape(entityType)
	if entityID != "" {
		p += "/" + url.PathEscape(entityID)
	}
	return p
}

// successEnvelope and errorEnvelope mirror the backend's response shape.
type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error *Error `json:"error"`
}

func (s *HTTPService) do(ctx context.Context, method, rawURL string, payload json.RawMessage) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// url.Error wraps net errors, so Classify sees a network failure.
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, rawURL, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(respBody) == 0 {
			return nil, nil
		}
		var env successEnvelope
		if err := json.Unmarshal(respBody, &env); err != nil || env.Data == nil {
			// Backends without an envelope return the record directly.
			return json.RawMessage(respBody), nil
		}
		return env.Data, nil
	}

	var env errorEnvelope
	if err := json.Unmarshal(respBody, &env); err == nil && env.Error != nil {
		return nil, env.Error
	}
	return nil, &Error{
		Code:    fmt.Sprintf("http_%d", resp.StatusCode),
		Message: strings.TrimSpace(string(respBody)),
	}
}
