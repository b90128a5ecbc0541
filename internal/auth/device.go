// Package auth implements the GitHub device-code authorization flow and the
// Copilot access-token exchange used by the chat client.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wobbat/th/internal/credentials"
)

const (
	// ProviderKey is the credential store key for Copilot credentials.
	ProviderKey = "github-copilot"

	// clientID is the GitHub OAuth app id used by Copilot editor plugins.
	clientID    = "Iv1.b507a08c87ecfe98"
	deviceScope = "read:user"

	defaultDeviceCodeURL  = "https://github.com/login/device/code"
	defaultAccessTokenURL = "https://github.com/login/oauth/access_token"

	userAgent           = "GitHubCopilotChat/0.26.7"
	editorVersion       = "vscode/1.99.3"
	editorPluginVersion = "copilot-chat/0.26.7"

	// maxPollAttempts bounds the login poll loop: 120 attempts at the
	// default 5s interval is roughly ten minutes.
	maxPollAttempts = 120
	maxPollInterval = 60 * time.Second
)

// Flow performs device-code authorization against GitHub and persists the
// resulting credential. Endpoint URLs and the sleep function are fields so
// tests can point the flow at local servers and skip real delays.
type Flow struct {
	store  *credentials.Store
	client *http.Client

	deviceCodeURL   string
	accessTokenURL  string
	copilotTokenURL string

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFlow returns a flow using the real GitHub endpoints.
func NewFlow(store *credentials.Store) *Flow {
	return &Flow{
		store:           store,
		client:          &http.Client{Timeout: 30 * time.Second},
		deviceCodeURL:   defaultDeviceCodeURL,
		accessTokenURL:  defaultAccessTokenURL,
		copilotTokenURL: defaultCopilotTokenURL,
		sleep:           sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DeviceAuth is one authorization session established by Authorize.
type DeviceAuth struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        int // poll interval in seconds, dictated by the service
	ExpiresIn       int
}

// PollStatus is the outcome of one poll call.
type PollStatus string

const (
	PollPending  PollStatus = "pending"
	PollComplete PollStatus = "complete"
	PollSlowDown PollStatus = "slow_down"
)

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type accessTokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (f *Flow) postJSON(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return f.client.Do(req)
}

// Authorize establishes a device authorization session. It makes a single
// network call; a failure here fails the login operation outright.
func (f *Flow) Authorize(ctx context.Context) (*DeviceAuth, error) {
	resp, err := f.postJSON(ctx, f.deviceCodeURL, map[string]string{
		"client_id": clientID,
		"scope":     deviceScope,
	})
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("device code request failed (status %d): %s", resp.StatusCode, string(body))
	}

	var data deviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse device code response: %w", err)
	}
	if data.DeviceCode == "" {
		return nil, fmt.Errorf("device code response missing device_code")
	}

	return &DeviceAuth{
		DeviceCode:      data.DeviceCode,
		UserCode:        data.UserCode,
		VerificationURI: data.VerificationURI,
		Interval:        data.Interval,
		ExpiresIn:       data.ExpiresIn,
	}, nil
}

// Poll makes one poll call for the session. On completion it persists the
// OAuth token as the refresh credential. Terminal authorization errors
// (denied, expired code) are returned as errors; nothing is persisted then.
func (f *Flow) Poll(ctx context.Context, deviceCode string) (PollStatus, error) {
	resp, err := f.postJSON(ctx, f.accessTokenURL, map[string]string{
		"client_id":   clientID,
		"device_code": deviceCode,
		"grant_type":  "urn:ietf:params:oauth:grant-type:device_code",
	})
	if err != nil {
		return "", fmt.Errorf("token poll failed: %w", err)
	}
	defer resp.Body.Close()

	var data accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	switch {
	case data.AccessToken != "":
		err := f.store.Set(ProviderKey, credentials.Record{
			Type:    credentials.TypeOAuth,
			Refresh: data.AccessToken,
		})
		if err != nil {
			return "", fmt.Errorf("failed to store credentials: %w", err)
		}
		return PollComplete, nil
	case data.Error == "authorization_pending":
		return PollPending, nil
	case data.Error == "slow_down":
		return PollSlowDown, nil
	case data.Error != "":
		return "", fmt.Errorf("authorization failed: %s", data.Error)
	default:
		return "", fmt.Errorf("authorization failed: empty token response")
	}
}

// Login runs the full device-code handshake: authorize once, then poll on
// the session's fixed interval until complete, a terminal error, or the
// attempt budget runs out. notify is called once with the session so the
// caller can show the verification URL and user code.
func (f *Flow) Login(ctx context.Context, notify func(DeviceAuth)) error {
	session, err := f.Authorize(ctx)
	if err != nil {
		return err
	}
	if notify != nil {
		notify(*session)
	}

	interval := time.Duration(session.Interval) * time.Second
	if interval < time.Second {
		interval = time.Second
	}

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if err := f.sleep(ctx, interval); err != nil {
			return err
		}

		status, err := f.Poll(ctx, session.DeviceCode)
		if err != nil {
			return err
		}
		switch status {
		case PollComplete:
			return nil
		case PollSlowDown:
			interval *= 2
			if interval > maxPollInterval {
				interval = maxPollInterval
			}
		case PollPending:
			// keep waiting
		}
	}

	return fmt.Errorf("device authorization timed out after %d attempts", maxPollAttempts)
}
