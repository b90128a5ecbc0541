package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wobbat/th/internal/auth"
	"github.com/wobbat/th/internal/credentials"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored GitHub Copilot credentials",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := store.Remove(auth.ProviderKey); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}
