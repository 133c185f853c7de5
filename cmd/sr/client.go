package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fixora/secret-review/application/port/inbound"
)

var errAuthExpired = errors.New("authentication expired")

// apiError is a failed response from the review API
type apiError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
}

func (e *apiError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details string          `json:"details"`
	Data    json.RawMessage `json:"data"`
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(cfg cliConfig) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends body as JSON and decodes the envelope data into out. It returns the envelope message.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) (string, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", errAuthExpired
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return "", fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode/100 != 2 || !env.Status {
		return "", &apiError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message, Details: env.Details}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode response data: %w", err)
		}
	}
	return env.Message, nil
}

func (c *apiClient) Propose(ctx context.Context, req inbound.ProposeRequest) (*inbound.ProposeResponse, error) {
	var out inbound.ProposeResponse
	if _, err := c.do(ctx, http.MethodPost, "/changes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Approve(ctx context.Context, changeID, comment string) (*inbound.ApproveResponse, error) {
	var out inbound.ApproveResponse
	path := "/changes/" + url.PathEscape(changeID) + "/approve"
	if _, err := c.do(ctx, http.MethodPost, path, inbound.ReviewRequest{Comment: comment}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Reject(ctx context.Context, changeID, comment string) (*inbound.RejectResponse, error) {
	var out inbound.RejectResponse
	path := "/changes/" + url.PathEscape(changeID) + "/reject"
	if _, err := c.do(ctx, http.MethodPost, path, inbound.ReviewRequest{Comment: comment}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Rollback(ctx context.Context, changeID, reason string) (*inbound.RollbackResponse, error) {
	var out inbound.RollbackResponse
	if _, err := c.do(ctx, http.MethodPost, "/rollback", inbound.RollbackRequest{ChangeID: changeID, Reason: reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) GetDiff(ctx context.Context, changeID string) (*inbound.ChangeView, error) {
	var out inbound.ChangeView
	if _, err := c.do(ctx, http.MethodGet, "/changes/"+url.PathEscape(changeID)+"/diff", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) ListPending(ctx context.Context) (*inbound.ListChangesResponse, error) {
	var out inbound.ListChangesResponse
	if _, err := c.do(ctx, http.MethodGet, "/changes?status=pending", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) History(ctx context.Context, project, env string) (*inbound.HistoryResponse, error) {
	var out inbound.HistoryResponse
	path := "/history/" + url.PathEscape(project) + "/" + url.PathEscape(env)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
