package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wobbat/th/internal/credentials"
)

func tokenFlow(t *testing.T, handler http.HandlerFunc) (*Flow, *credentials.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := credentials.NewStoreAt(filepath.Join(t.TempDir(), "auth.json"))
	flow := NewFlow(store)
	flow.copilotTokenURL = server.URL
	return flow, store
}

func TestToken_NoCredentials(t *testing.T) {
	flow, _ := tokenFlow(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no exchange should happen without stored credentials")
	})

	_, err := flow.Token(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no Copilot credentials found") {
		t.Fatalf("want missing-credentials error, got %v", err)
	}
}

func TestToken_Exchange(t *testing.T) {
	expires := time.Now().Add(time.Hour).Unix()
	var calls int
	flow, store := tokenFlow(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.Header.Get("Authorization"); got != "Bearer gho_refresh" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Editor-Version"); got == "" {
			t.Error("missing Editor-Version header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":      "copilot-token",
			"expires_at": expires,
		})
	})

	if err := store.Set(ProviderKey, credentials.Record{
		Type:    credentials.TypeOAuth,
		Refresh: "gho_refresh",
	}); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	token, err := flow.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "copilot-token" {
		t.Errorf("token = %q", token)
	}

	// Exchanged token is cached with a millisecond expiry.
	rec, _, _ := store.Get(ProviderKey)
	if rec.Access != "copilot-token" {
		t.Errorf("cached access = %q", rec.Access)
	}
	if rec.Expires != expires*1000 {
		t.Errorf("cached expiry = %d, want %d", rec.Expires, expires*1000)
	}
	if rec.Refresh != "gho_refresh" {
		t.Errorf("refresh token lost: %q", rec.Refresh)
	}

	// Second call serves from the cache without another round trip.
	if _, err := flow.Token(context.Background()); err != nil {
		t.Fatalf("cached Token failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("exchange called %d times, want 1", calls)
	}
}

func TestToken_ExpiredCacheReExchanges(t *testing.T) {
	var calls int
	flow, store := tokenFlow(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"token":      "fresh-token",
			"expires_at": time.Now().Add(time.Hour).Unix(),
		})
	})

	if err := store.Set(ProviderKey, credentials.Record{
		Type:    credentials.TypeOAuth,
		Refresh: "gho_refresh",
		Access:  "stale-token",
		Expires: time.Now().Add(-time.Minute).UnixMilli(),
	}); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	token, err := flow.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("token = %q, want fresh exchange", token)
	}
	if calls != 1 {
		t.Errorf("exchange called %d times, want 1", calls)
	}
}

func TestToken_ExchangeRejected(t *testing.T) {
	flow, store := tokenFlow(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	if err := store.Set(ProviderKey, credentials.Record{
		Type:    credentials.TypeOAuth,
		Refresh: "gho_revoked",
	}); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	_, err := flow.Token(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("want 401 error, got %v", err)
	}
}

func TestLoggedIn(t *testing.T) {
	store := credentials.NewStoreAt(filepath.Join(t.TempDir(), "auth.json"))
	flow := NewFlow(store)

	ok, err := flow.LoggedIn()
	if err != nil || ok {
		t.Errorf("empty store: LoggedIn = %v, %v", ok, err)
	}

	store.Set(ProviderKey, credentials.Record{Type: credentials.TypeOAuth, Refresh: "gho_x"})
	ok, err = flow.LoggedIn()
	if err != nil || !ok {
		t.Errorf("after login: LoggedIn = %v, %v", ok, err)
	}
}
