package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/request"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api/response"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/protocol"
)

// APIError is a non-2xx response from the REST API
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// APIClient calls the JSON REST API under /api/v1
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for the server at baseURL
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateGame creates a game with playerName as its creator
func (c *APIClient) CreateGame(ctx context.Context, playerName string) (*response.CreateGameResponse, error) {
	var out response.CreateGameResponse
	body := request.CreateGameRequest{PlayerName: playerName}
	if err := c.Do(ctx, http.MethodPost, "/games", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGame returns a game and its roster
func (c *APIClient) GetGame(ctx context.Context, code string) (*response.GameStateResponse, error) {
	var out response.GameStateResponse
	if err := c.Do(ctx, http.MethodGet, "/games/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Moves returns up to limit recent moves, oldest first. A zero limit uses
// the server default.
func (c *APIClient) Moves(ctx context.Context, code string, limit int) ([]protocol.Move, error) {
	path := "/games/" + url.PathEscape(code) + "/moves"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out response.MovesResponse
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Moves, nil
}

// Health returns the server health report
func (c *APIClient) Health(ctx context.Context) (*response.HealthResponse, error) {
	var out response.HealthResponse
	if err := c.Do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		// a degraded server still answers with a health body
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && out.Status != "" {
			return &out, nil
		}
		return nil, err
	}
	return &out, nil
}

// Do performs an HTTP request against /api/v1
func (c *APIClient) Do(ctx context.Context, method, path string, body, result any) error {
	target := c.baseURL + "/api/v1" + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errResp protocol.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Code != "" {
			apiErr.Code = errResp.Error.Code
			apiErr.Message = errResp.Error.Message
		} else if result != nil && len(respBody) > 0 {
			_ = json.Unmarshal(respBody, result)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// SocketURL derives the websocket endpoint from a server base url
func SocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// PollingURL derives the long-polling base url from a server base url
func PollingURL(serverURL string) string {
	return strings.TrimSuffix(serverURL, "/") + "/poll"
}
