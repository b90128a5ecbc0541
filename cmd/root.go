package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "th",
	Short: "Chat with GitHub Copilot from the terminal",
	Long: `th is a terminal assistant backed by the GitHub Copilot chat API.

Examples:
  th login                      # authorize via the device-code flow
  th chat                       # interactive chat with tool support
  th ask "what does SIGHUP do"  # one-shot question
  th config                     # show effective configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var debugFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Show debug output for API requests")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
