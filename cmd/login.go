package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wobbat/th/internal/auth"
	"github.com/wobbat/th/internal/signal"
	"github.com/wobbat/th/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize with GitHub Copilot",
	Long: `Authorize th with GitHub Copilot using the device-code flow.

A one-time code is shown; enter it at the verification URL in a browser
while th polls for completion.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	if _, err := loadConfig(); err != nil {
		return err
	}
	flow, err := newAuthFlow()
	if err != nil {
		return err
	}

	err = flow.Login(ctx, func(session auth.DeviceAuth) {
		fmt.Printf("Please visit %s and enter code: %s\n", session.VerificationURI, session.UserCode)
		ui.ShowNotice("Waiting for authorization...")
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Println("Login successful.")
	return nil
}
