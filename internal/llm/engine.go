package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// defaultMaxPasses bounds the number of tool-call passes within one user
// turn. A model that keeps requesting tools is cut off after this many
// round trips and the turn is reported as aborted.
const defaultMaxPasses = 4

func getMaxPasses(req Request) int {
	if req.MaxPasses > 0 {
		return req.MaxPasses
	}
	return defaultMaxPasses
}

// TurnMetrics contains metrics collected during a pass.
type TurnMetrics struct {
	InputTokens  int
	OutputTokens int
	ToolCalls    int
}

// TurnCompletedCallback is called after each pass completes with the messages
// generated during that pass (assistant message plus any tool results).
// The chat REPL uses it to extend its transcript; an abandoned pass
// contributes nothing.
type TurnCompletedCallback func(ctx context.Context, passIndex int, messages []Message, metrics TurnMetrics) error

// Engine orchestrates provider calls and external tool execution.
type Engine struct {
	provider Provider
	tools    *ToolRegistry

	// onTurnCompleted is called after each pass with messages generated.
	// Protected by callbackMu.
	onTurnCompleted TurnCompletedCallback
	callbackMu      sync.RWMutex
}

func NewEngine(provider Provider, tools *ToolRegistry) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Engine{
		provider: provider,
		tools:    tools,
	}
}

// RegisterTool adds a tool to the engine's registry.
func (e *Engine) RegisterTool(tool Tool) {
	e.tools.Register(tool)
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

// SetTurnCompletedCallback sets the callback for completed passes.
// Thread-safe: can be called while streaming is in progress.
func (e *Engine) SetTurnCompletedCallback(cb TurnCompletedCallback) {
	e.callbackMu.Lock()
	e.onTurnCompleted = cb
	e.callbackMu.Unlock()
}

func (e *Engine) getCallback() TurnCompletedCallback {
	e.callbackMu.RLock()
	cb := e.onTurnCompleted
	e.callbackMu.RUnlock()
	return cb
}

// Stream returns a stream for one user turn, applying external tools when needed.
func (e *Engine) Stream(ctx context.Context, req Request) (Stream, error) {
	useLoop := len(req.Tools) > 0 && e.provider.Capabilities().ToolCalls

	if useLoop {
		return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
			return e.runLoop(ctx, req, events)
		}), nil
	}

	return e.provider.Stream(ctx, req)
}

func (e *Engine) runLoop(ctx context.Context, req Request, events chan<- Event) error {
	maxPasses := getMaxPasses(req)

	// Copy callback at start - protects against concurrent modification.
	callback := e.getCallback()

	for pass := 0; pass < maxPasses; pass++ {
		stream, err := e.provider.Stream(ctx, req)
		if err != nil {
			return err
		}

		// Collect tool calls and text, forward the rest.
		var toolCalls []ToolCall
		var textBuilder strings.Builder
		var metrics TurnMetrics
		for {
			event, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				stream.Close()
				return err
			}
			if event.Type == EventError && event.Err != nil {
				stream.Close()
				return event.Err
			}
			if event.Type == EventUsage && event.Use != nil {
				metrics.InputTokens += event.Use.InputTokens
				metrics.OutputTokens += event.Use.OutputTokens
			}
			if event.Type == EventTextDelta && event.Text != "" {
				textBuilder.WriteString(event.Text)
			}
			if event.Type == EventToolCall && event.Tool != nil {
				toolCalls = append(toolCalls, *event.Tool)
				continue
			}
			if event.Type == EventDone {
				continue
			}
			events <- event
		}
		stream.Close()

		if len(toolCalls) == 0 {
			// Final answer. Trailing whitespace is noise from the model;
			// an entirely empty turn is discarded, not recorded.
			finalText := strings.TrimRight(textBuilder.String(), " \t\r\n")
			if callback != nil && finalText != "" {
				_ = callback(ctx, pass, []Message{AssistantText(finalText)}, metrics)
			}
			events <- Event{Type: EventDone}
			return nil
		}

		toolCalls = ensureToolCallIDs(toolCalls)

		// The assistant message carrying the tool calls is recorded even
		// when its text is empty, so every tool result correlates back to
		// a request in the transcript.
		assistantMsg := buildAssistantMessage(textBuilder.String(), toolCalls)
		req.Messages = append(req.Messages, assistantMsg)
		passMessages := []Message{assistantMsg}

		// Execute sequentially in slot order; results land in the
		// transcript in request order.
		for _, call := range toolCalls {
			info := e.getToolPreview(call)
			events <- Event{Type: EventToolExecStart, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info}

			result := e.executeToolCall(ctx, call, events)
			req.Messages = append(req.Messages, result)
			passMessages = append(passMessages, result)
		}

		if callback != nil {
			metrics.ToolCalls = len(toolCalls)
			_ = callback(ctx, pass, passMessages, metrics)
		}
	}

	return fmt.Errorf("stopped after %d tool-call passes without a final answer", maxPasses)
}

// buildAssistantMessage creates an assistant message with text and tool calls.
func buildAssistantMessage(text string, toolCalls []ToolCall) Message {
	var parts []Part
	if text != "" {
		parts = append(parts, Part{Type: PartText, Text: text})
	}
	for i := range toolCalls {
		call := toolCalls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

// executeToolCall executes a single tool call and returns the result message.
// Tool failures become textual error results fed back to the model; they
// never abort the turn.
func (e *Engine) executeToolCall(ctx context.Context, call ToolCall, events chan<- Event) Message {
	tool, ok := e.tools.Get(call.Name)
	if !ok {
		errMsg := fmt.Sprintf("Error: tool not implemented: %s", call.Name)
		events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolSuccess: false}
		return ToolErrorMessage(call.ID, call.Name, errMsg)
	}

	output, err := tool.Execute(ctx, call.Arguments)
	info := e.getToolPreview(call)

	if err != nil {
		errMsg := fmt.Sprintf("Error: %v", err)
		events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: false}
		return ToolErrorMessage(call.ID, call.Name, errMsg)
	}

	events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: true}
	return ToolResultMessage(call.ID, call.Name, output)
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = fmt.Sprintf("toolcall-%d", i+1)
		}
	}
	return calls
}

// getToolPreview returns a preview string for a tool call.
func (e *Engine) getToolPreview(call ToolCall) string {
	if tool, ok := e.tools.Get(call.Name); ok {
		if preview := tool.Preview(call.Arguments); preview != "" {
			if !strings.HasPrefix(preview, "(") {
				return "(" + preview + ")"
			}
			return preview
		}
	}
	return extractToolInfo(call)
}

// extractToolInfo extracts a short preview from raw tool call arguments.
func extractToolInfo(call ToolCall) string {
	if len(call.Arguments) == 0 {
		return ""
	}
	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return ""
	}
	if len(args) == 1 {
		for _, v := range args {
			if s, ok := v.(string); ok && s != "" {
				if len(s) > 80 {
					s = s[:77] + "..."
				}
				return "(" + s + ")"
			}
		}
	}
	return ""
}
