package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wobbat/th/internal/llm"
	"github.com/wobbat/th/internal/signal"
	"github.com/wobbat/th/internal/ui"
)

var (
	askText  bool
	askModel string
)

const askSystemMessage = `You are a helpful terminal assistant. Answer the question directly and concisely in markdown.`

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question",
	Long: `Ask a single question and print the answer. Uses a plain completion
request (no streaming, no tools).

Examples:
  th ask "What is the capital of France?"
  th ask "How do I reverse a string in Go?" --text`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askText, "text", "t", false, "Output plain text instead of rendered markdown")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Override the configured model")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("empty question")
	}

	answer, err := provider.Complete(ctx, llm.Request{
		Model: askModel,
		Messages: []llm.Message{
			llm.SystemText(askSystemMessage),
			llm.UserText(question),
		},
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxTokens,
		Debug:           debugFlag,
	})
	if err != nil {
		return err
	}

	if !askText && ui.IsTerminal() {
		fmt.Println(ui.RenderMarkdown(answer, ui.TerminalWidth()))
	} else {
		fmt.Println(strings.TrimRight(answer, " \t\n"))
	}
	return nil
}
