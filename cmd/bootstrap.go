package cmd

import (
	"fmt"

	"github.com/wobbat/th/internal/auth"
	"github.com/wobbat/th/internal/config"
	"github.com/wobbat/th/internal/credentials"
	"github.com/wobbat/th/internal/llm"
	"github.com/wobbat/th/internal/ui"
)

// loadConfig loads configuration and applies the theme.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	ui.ApplyThemeConfig(ui.ThemeConfig{
		Primary: cfg.Theme.Primary,
		Error:   cfg.Theme.Error,
		Warning: cfg.Theme.Warning,
		Muted:   cfg.Theme.Muted,
	})
	return cfg, nil
}

// newAuthFlow builds the device-auth flow over the default credential store.
func newAuthFlow() (*auth.Flow, error) {
	store, err := credentials.NewStore()
	if err != nil {
		return nil, err
	}
	return auth.NewFlow(store), nil
}

// newProvider builds the Copilot provider, requiring stored credentials.
func newProvider(cfg *config.Config) (*llm.CopilotProvider, error) {
	flow, err := newAuthFlow()
	if err != nil {
		return nil, err
	}
	ok, err := flow.LoggedIn()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not logged in to GitHub Copilot (run 'th login')")
	}
	return llm.NewCopilotProvider(flow, cfg.BaseURL, cfg.Model, cfg.RequestTimeoutDuration()), nil
}
