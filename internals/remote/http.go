package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const requestTimeout = 30 * time.Second

type Option func(*apiClient)

func WithBaseURL(baseURL string) Option {
	return func(c *apiClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the token-authenticated transport, mostly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *apiClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is returned for unexpected platform responses.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

func newAPIClient(defaultBaseURL string, token string, opts []Option) *apiClient {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = requestTimeout
	client := &apiClient{
		baseURL:    strings.TrimRight(defaultBaseURL, "/"),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// do sends body as JSON and decodes a 2xx response into out. A 404 maps to
// ErrNotFound.
func (c *apiClient) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(data, &payload)
		message := payload.Message
		if message == "" {
			message = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Message: message}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
