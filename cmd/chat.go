package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wobbat/th/internal/config"
	"github.com/wobbat/th/internal/llm"
	"github.com/wobbat/th/internal/signal"
	"github.com/wobbat/th/internal/tools"
	"github.com/wobbat/th/internal/ui"
)

var (
	chatText  bool
	chatModel string
)

const defaultChatSystemMessage = `You are a helpful terminal assistant. Answer concisely in markdown. You can read local files with the read_file tool when the user asks about their contents.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with tool support",
	Long: `Start an interactive chat session. The model can call local tools
(currently read_file) while answering; tool activity is shown inline.

Type 'exit' or press Ctrl-D to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&chatText, "text", "t", false, "Stream plain text instead of rendered markdown")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Override the configured model")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
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

	registry := llm.NewToolRegistry()
	registry.Register(tools.NewReadFileTool(tools.DefaultLimits()))
	engine := llm.NewEngine(provider, registry)

	systemMessage := cfg.Chat.SystemMessage
	if systemMessage == "" {
		systemMessage = defaultChatSystemMessage
	}
	transcript := []llm.Message{llm.SystemText(systemMessage)}

	// The REPL owns the transcript; the engine feeds completed passes back
	// through this callback. An aborted or cancelled pass appends nothing.
	engine.SetTurnCompletedCallback(func(ctx context.Context, pass int, messages []llm.Message, metrics llm.TurnMetrics) error {
		transcript = append(transcript, messages...)
		return nil
	})

	ui.ShowNotice("Chatting with %s. Type 'exit' to quit.", provider.Name())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(ui.Prompt())
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		transcript = append(transcript, llm.UserText(line))

		if err := runChatTurn(ctx, engine, cfg, transcript); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ui.ShowError("%v", err)
		}
	}

	return scanner.Err()
}

// runChatTurn runs one full orchestrated turn against a copy of the
// transcript. Transcript growth happens only through the engine callback.
func runChatTurn(ctx context.Context, engine *llm.Engine, cfg *config.Config, transcript []llm.Message) error {
	req := llm.Request{
		Model:           chatModel,
		Messages:        append([]llm.Message(nil), transcript...),
		Tools:           engine.Tools().AllSpecs(),
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxTokens,
		Debug:           debugFlag,
	}

	stream, err := engine.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	markdown := !chatText && ui.IsTerminal()
	var buffered strings.Builder

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch event.Type {
		case llm.EventTextDelta:
			if markdown {
				buffered.WriteString(event.Text)
			} else {
				fmt.Print(event.Text)
			}
		case llm.EventToolExecStart:
			ui.ShowToolRun(event.ToolName, event.ToolInfo)
		case llm.EventToolExecEnd:
			if !event.ToolSuccess {
				ui.ShowWarning("tool %s failed; the model was told why", event.ToolName)
			}
		case llm.EventError:
			if event.Err != nil {
				return event.Err
			}
		}
	}

	if markdown {
		if out := buffered.String(); strings.TrimSpace(out) != "" {
			fmt.Println(ui.RenderMarkdown(out, ui.TerminalWidth()))
		}
	} else {
		fmt.Println()
	}
	return nil
}
