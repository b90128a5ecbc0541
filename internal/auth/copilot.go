package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wobbat/th/internal/credentials"
)

const defaultCopilotTokenURL = "https://api.github.com/copilot_internal/v2/token"

type copilotTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	RefreshIn int64  `json:"refresh_in"`
}

// Token returns a valid Copilot API bearer token, exchanging the stored
// GitHub OAuth token for a fresh one when the cached token is missing or
// expired. Implements llm.TokenSource.
func (f *Flow) Token(ctx context.Context) (string, error) {
	rec, ok, err := f.store.Get(ProviderKey)
	if err != nil {
		return "", err
	}
	if !ok || rec.Type != credentials.TypeOAuth || rec.Refresh == "" {
		return "", fmt.Errorf("no Copilot credentials found (run 'th login')")
	}

	// Stored expiry is in unix milliseconds.
	if rec.Access != "" && rec.Expires > time.Now().UnixMilli() {
		return rec.Access, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", f.copilotTokenURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+rec.Refresh)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Editor-Version", editorVersion)
	req.Header.Set("Editor-Plugin-Version", editorPluginVersion)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("copilot token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("copilot token exchange failed (status %d): %s (run 'th login' to re-authorize)", resp.StatusCode, string(body))
	}

	var data copilotTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to parse copilot token response: %w", err)
	}
	if data.Token == "" {
		return "", fmt.Errorf("copilot token response missing token")
	}

	rec.Access = data.Token
	rec.Expires = data.ExpiresAt * 1000
	if err := f.store.Set(ProviderKey, rec); err != nil {
		return "", fmt.Errorf("failed to cache copilot token: %w", err)
	}

	return data.Token, nil
}

// LoggedIn reports whether a refresh credential is stored. It does not
// verify the token against the service.
func (f *Flow) LoggedIn() (bool, error) {
	rec, ok, err := f.store.Get(ProviderKey)
	if err != nil {
		return false, err
	}
	return ok && rec.Type == credentials.TypeOAuth && rec.Refresh != "", nil
}
