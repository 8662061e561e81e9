package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/osagaming/avicrm/internal/config"
)

func testConfig(serverURL string) config.Market {
	return config.Market{
		BaseURL:           serverURL,
		TokenURL:          serverURL + "/token",
		PublicOrigin:      "https://www.avito.ru",
		RequestTimeoutSec: 5,
		RatePerSecond:     1000,
		RateBurst:         1000,
		MaxRetries:        3,
	}
}

func serveToken(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	var tokenCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenCalls.Add(1)
			serveToken(w)
		default:
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"chats": []any{}})
		}
	}))
	defer srv.Close()

	c := NewFactory(testConfig(srv.URL), zap.NewNop())("cid", "secret")
	for i := 0; i < 3; i++ {
		if _, err := c.ListChats(context.Background(), "100", 50, 0); err != nil {
			t.Fatal(err)
		}
	}
	if n := tokenCalls.Load(); n != 1 {
		t.Errorf("token requests = %d, want 1 (cached)", n)
	}
}

func TestPermissionErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			serveToken(w)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewFactory(testConfig(srv.URL), zap.NewNop())("cid", "secret")
	_, err := c.ListChats(context.Background(), "100", 50, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermission(err) {
		t.Errorf("IsPermission(%v) = false, want true", err)
	}
}

func TestRetriesTransientServerError(t *testing.T) {
	var apiCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			serveToken(w)
			return
		}
		if apiCalls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"chats": []any{map[string]any{"id": "c1"}}})
	}))
	defer srv.Close()

	c := NewFactory(testConfig(srv.URL), zap.NewNop())("cid", "secret")
	chats, err := c.ListChats(context.Background(), "100", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0]["id"] != "c1" {
		t.Errorf("chats = %v, want single c1", chats)
	}
	if n := apiCalls.Load(); n != 3 {
		t.Errorf("api calls = %d, want 3 (two failures + success)", n)
	}
}

func TestBadRequestNotRetried(t *testing.T) {
	var apiCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			serveToken(w)
			return
		}
		apiCalls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad offset"}})
	}))
	defer srv.Close()

	c := NewFactory(testConfig(srv.URL), zap.NewNop())("cid", "secret")
	_, err := c.ListChats(context.Background(), "100", 50, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if n := apiCalls.Load(); n != 1 {
		t.Errorf("api calls = %d, want 1 (no retry on 400)", n)
	}
}

func TestGetChatFallsBackToV2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			serveToken(w)
		case "/messenger/v3/accounts/100/chats/c1":
			w.WriteHeader(http.StatusNotFound)
		case "/messenger/v2/accounts/100/chats/c1":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "c1", "users": []any{}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewFactory(testConfig(srv.URL), zap.NewNop())("cid", "secret")
	chat, err := c.GetChat(context.Background(), "100", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if chat["id"] != "c1" {
		t.Errorf("chat = %v, want id c1", chat)
	}
}

func TestListMessagesAlternateKeys(t *testing.T) {
	payloads := []map[string]any{
		{"messages": []any{map[string]any{"id": "m1"}}},
		{"items": []any{map[string]any{"id": "m1"}}},
		{"data": []any{map[string]any{"id": "m1"}}},
	}
	for _, payload := range payloads {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/token" {
				serveToken(w)
				return
			}
			_ = json.NewEncoder(w).Encode(payload)
		}))

		c := NewFactory(testConfig(srv.URL), zap.NewNop())("cid", "secret")
		msgs, err := c.ListMessages(context.Background(), "100", "c1", 50, 0)
		srv.Close()
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 1 || msgs[0]["id"] != "m1" {
			t.Errorf("payload %v: msgs = %v, want single m1", payload, msgs)
		}
	}
}
