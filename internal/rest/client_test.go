package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestFetchConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page = %q, want 2", got)
		}
		_, _ = w.Write([]byte(`{
			"data": [{"id":"c1","unreadCount":3}],
			"pagination": {"page":2,"limit":10,"totalCount":15,"hasMore":true}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil, zap.NewNop())
	convs, p, err := c.FetchConversations(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("FetchConversations() error = %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "c1" || convs[0].UnreadCount != 3 {
		t.Errorf("conversations = %+v", convs)
	}
	if !p.HasMore || p.TotalCount != 15 {
		t.Errorf("pagination = %+v", p)
	}
}

func TestFetchMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/c1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"data": [{"id":"m1","conversationId":"c1","content":"hi","timestamp":100,"status":"sent"}],
			"pagination": {"page":1,"limit":50,"totalCount":1,"hasMore":false}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil, zap.NewNop())
	msgs, _, err := c.FetchMessages(context.Background(), "c1", 1, 50)
	if err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestStartConversationApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "unknown_user", "message": "no such user"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil, zap.NewNop())
	_, err := c.StartConversation(context.Background(), "ghost")

	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want ApplicationError", err)
	}
	if appErr.Code != "unknown_user" || appErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("appErr = %+v", appErr)
	}
}

func TestServerErrorIsNotApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil, zap.NewNop())
	_, err := c.SearchUsers(context.Background(), "ana")
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *ApplicationError
	if errors.As(err, &appErr) {
		t.Error("5xx classified as ApplicationError")
	}
}

func TestFetchOnlineUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/online" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"id":"u1","name":"Ana","online":true}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", nil, zap.NewNop())
	users, err := c.FetchOnlineUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchOnlineUsers() error = %v", err)
	}
	if len(users) != 1 || users[0].ID != "u1" {
		t.Errorf("users = %+v", users)
	}
}
