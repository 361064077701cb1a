// Package rest is the fallback REST client for conversation and message
// history, user search and read-receipt persistence. The push channel owns
// realtime delivery; this client fills the gaps around it.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ecomstore/chatsync/internal/model"
	"go.uber.org/zap"
)

// ApplicationError is a business-rule rejection from the API (4xx). It is
// surfaced to the caller and never retried.
type ApplicationError struct {
	Status  int
	Code    string
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("api rejected request (%d %s): %s", e.Status, e.Code, e.Message)
}

// Client talks to the shop chat REST API with bearer-token auth.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a REST client. httpClient may be nil.
func NewClient(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		base:   baseURL,
		token:  token,
		http:   httpClient,
		logger: logger,
	}
}

// SetToken swaps the credential (token refresh).
func (c *Client) SetToken(token string) {
	c.token = token
}

type pagedEnvelope struct {
	Data       json.RawMessage  `json:"data"`
	Pagination model.Pagination `json:"pagination"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchConversations returns one page of the conversation list.
func (c *Client) FetchConversations(ctx context.Context, page, limit int) ([]model.Conversation, model.Pagination, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var convs []model.Conversation
	p, err := c.getPaged(ctx, "/conversations?"+q.Encode(), &convs)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return convs, p, nil
}

// FetchMessages returns one page of a conversation's history, oldest first.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, page, limit int) ([]model.Message, model.Pagination, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	path := "/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()
	var msgs []model.Message
	p, err := c.getPaged(ctx, path, &msgs)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return msgs, p, nil
}

// StartConversation creates (or returns) the conversation with a user.
func (c *Client) StartConversation(ctx context.Context, userID string) (model.Conversation, error) {
	body := map[string]string{"userId": userID}
	var conv model.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", body, &conv); err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

// SearchUsers finds users by name or handle.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.UserSummary, error) {
	q := url.Values{}
	q.Set("q", query)
	var users []model.UserSummary
	if err := c.do(ctx, http.MethodGet, "/users/search?"+q.Encode(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FetchOnlineUsers returns the currently online user summaries.
func (c *Client) FetchOnlineUsers(ctx context.Context) ([]model.UserSummary, error) {
	var users []model.UserSummary
	if err := c.do(ctx, http.MethodGet, "/users/online", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) getPaged(ctx context.Context, path string, out any) (model.Pagination, error) {
	var env pagedEnvelope
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return model.Pagination{}, err
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return model.Pagination{}, fmt.Errorf("decode page data: %w", err)
	}
	return env.Pagination, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var env errorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &ApplicationError{
			Status:  resp.StatusCode,
			Code:    env.Error.Code,
			Message: env.Error.Message,
		}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
