package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for the UI
type Theme struct {
	Primary lipgloss.Color // main accent color (commands, highlights)
	Error   lipgloss.Color // error states
	Warning lipgloss.Color // warnings
	Muted   lipgloss.Color // dimmed/secondary text
	Text    lipgloss.Color // primary text
}

// DefaultTheme returns the default color theme (gruvbox)
func DefaultTheme() *Theme {
	return &Theme{
		Primary: lipgloss.Color("#b8bb26"), // gruvbox green
		Error:   lipgloss.Color("#fb4934"), // gruvbox red
		Warning: lipgloss.Color("#fabd2f"), // gruvbox yellow
		Muted:   lipgloss.Color("#928374"), // gruvbox gray
		Text:    lipgloss.Color("#ebdbb2"), // gruvbox foreground
	}
}

// ThemeConfig mirrors config.ThemeConfig for applying overrides
type ThemeConfig struct {
	Primary string
	Error   string
	Warning string
	Muted   string
}

var currentTheme = DefaultTheme()

// ApplyThemeConfig overrides default theme colors from configuration.
// Empty values keep the default.
func ApplyThemeConfig(cfg ThemeConfig) {
	if cfg.Primary != "" {
		currentTheme.Primary = lipgloss.Color(cfg.Primary)
	}
	if cfg.Error != "" {
		currentTheme.Error = lipgloss.Color(cfg.Error)
	}
	if cfg.Warning != "" {
		currentTheme.Warning = lipgloss.Color(cfg.Warning)
	}
	if cfg.Muted != "" {
		currentTheme.Muted = lipgloss.Color(cfg.Muted)
	}
}

// GetTheme returns the active theme.
func GetTheme() *Theme {
	return currentTheme
}

var (
	promptStyle = func() lipgloss.Style { return lipgloss.NewStyle().Foreground(currentTheme.Primary).Bold(true) }
	errorStyle  = func() lipgloss.Style { return lipgloss.NewStyle().Foreground(currentTheme.Error) }
	warnStyle   = func() lipgloss.Style { return lipgloss.NewStyle().Foreground(currentTheme.Warning) }
	mutedStyle  = func() lipgloss.Style { return lipgloss.NewStyle().Foreground(currentTheme.Muted) }
)

// Prompt renders the REPL input prompt.
func Prompt() string {
	return promptStyle().Render("> ")
}

// ShowError prints a styled error message to stderr.
func ShowError(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, errorStyle().Render(fmt.Sprintf(format, args...)))
}

// ShowWarning prints a styled warning message to stderr.
func ShowWarning(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, warnStyle().Render(fmt.Sprintf(format, args...)))
}

// ShowNotice prints a dimmed informational line to stdout.
func ShowNotice(format string, args ...interface{}) {
	fmt.Println(mutedStyle().Render(fmt.Sprintf(format, args...)))
}

// ShowToolRun prints a dimmed tool execution notice, e.g. "⚙ read_file(main.go)".
func ShowToolRun(name, info string) {
	fmt.Println(mutedStyle().Render("⚙ " + name + info))
}
