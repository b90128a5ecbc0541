package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	// defaultCopilotBaseURL is the Copilot chat completions endpoint.
	defaultCopilotBaseURL = "https://api.githubcopilot.com"

	// defaultRequestTimeout bounds a full streaming request. The transport
	// otherwise has no explicit timeout, so slow generations still finish.
	defaultRequestTimeout = 10 * time.Minute

	editorVersion       = "vscode/1.99.3"
	editorPluginVersion = "copilot-chat/0.26.7"
	copilotUserAgent    = "GitHubCopilotChat/0.26.7"
)

// TokenSource supplies a bearer token for one request. Implementations own
// caching and refresh; the provider never holds a token beyond a request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CopilotProvider implements Provider against the GitHub Copilot chat API,
// which speaks the OpenAI-compatible wire format.
type CopilotProvider struct {
	baseURL string
	model   string
	tokens  TokenSource
	client  *http.Client
}

func NewCopilotProvider(tokens TokenSource, baseURL, model string, timeout time.Duration) *CopilotProvider {
	if baseURL == "" {
		baseURL = defaultCopilotBaseURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &CopilotProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *CopilotProvider) Name() string {
	return fmt.Sprintf("GitHub Copilot (%s)", p.model)
}

func (p *CopilotProvider) Credential() string {
	return "oauth"
}

func (p *CopilotProvider) Capabilities() Capabilities {
	return Capabilities{ToolCalls: true}
}

// Copilot request/response structures (OpenAI-compatible).
type copilotChatRequest struct {
	Model       string           `json:"model"`
	Messages    []copilotMessage `json:"messages"`
	Tools       []copilotTool    `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream"`
}

type copilotMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []copilotToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

type copilotTool struct {
	Type     string          `json:"type"`
	Function copilotFunction `json:"function"`
}

type copilotFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type copilotToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type copilotChatResponse struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Choices []copilotChoice  `json:"choices"`
	Usage   *copilotUsage    `json:"usage,omitempty"`
	Error   *copilotAPIError `json:"error,omitempty"`
}

type copilotChoice struct {
	Index        int             `json:"index"`
	Message      *copilotMessage `json:"message,omitempty"`
	Delta        *copilotMessage `json:"delta,omitempty"`
	FinishReason string          `json:"finish_reason"`
}

type copilotUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type copilotAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *CopilotProvider) makeChatRequest(ctx context.Context, req copilotChatRequest) (*http.Response, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("copilot credentials: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Editor-Version", editorVersion)
	httpReq.Header.Set("Editor-Plugin-Version", editorPluginVersion)
	httpReq.Header.Set("User-Agent", copilotUserAgent)

	return p.client.Do(httpReq)
}

func (p *CopilotProvider) buildChatRequest(req Request, stream bool) (copilotChatRequest, error) {
	messages := buildCopilotMessages(req.Messages)
	if len(messages) == 0 {
		return copilotChatRequest{}, fmt.Errorf("no messages provided")
	}

	tools, err := buildCopilotTools(req.Tools)
	if err != nil {
		return copilotChatRequest{}, err
	}

	chatReq := copilotChatRequest{
		Model:    chooseModel(req.Model, p.model),
		Messages: messages,
		Tools:    tools,
		Stream:   stream,
	}
	if req.Temperature > 0 {
		v := float64(req.Temperature)
		chatReq.Temperature = &v
	}
	if req.MaxOutputTokens > 0 {
		v := req.MaxOutputTokens
		chatReq.MaxTokens = &v
	}
	return chatReq, nil
}

func (p *CopilotProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		chatReq, err := p.buildChatRequest(req, true)
		if err != nil {
			return err
		}

		if req.Debug {
			fmt.Fprintf(os.Stderr, "=== DEBUG: Copilot Stream Request ===\n")
			fmt.Fprintf(os.Stderr, "URL: %s/chat/completions\n", p.baseURL)
			fmt.Fprintf(os.Stderr, "Messages: %d Tools: %d\n", len(chatReq.Messages), len(chatReq.Tools))
			fmt.Fprintln(os.Stderr, "=====================================")
		}

		resp, err := p.makeChatRequest(ctx, chatReq)
		if err != nil {
			return fmt.Errorf("copilot API request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("copilot API error (status %d): %s", resp.StatusCode, string(body))
		}

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		toolState := newCopilotToolState()
		var lastUsage *Usage

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			// Decoding is best-effort: a single malformed line never
			// aborts the stream.
			var chatResp copilotChatResponse
			if err := json.Unmarshal([]byte(data), &chatResp); err != nil {
				continue
			}

			if chatResp.Error != nil {
				return fmt.Errorf("copilot API error: %s", chatResp.Error.Message)
			}

			if chatResp.Usage != nil {
				lastUsage = &Usage{
					InputTokens:  chatResp.Usage.PromptTokens,
					OutputTokens: chatResp.Usage.CompletionTokens,
				}
			}

			for _, choice := range chatResp.Choices {
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					events <- Event{Type: EventTextDelta, Text: choice.Delta.Content}
				}
				if len(choice.Delta.ToolCalls) > 0 {
					toolState.Add(choice.Delta.ToolCalls)
				}
			}
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("copilot streaming error: %w", err)
		}

		for _, call := range toolState.Calls(req.Debug) {
			events <- Event{Type: EventToolCall, Tool: &call}
		}
		if lastUsage != nil {
			events <- Event{Type: EventUsage, Use: lastUsage}
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

// Complete performs a non-streaming chat request and returns the assistant text.
func (p *CopilotProvider) Complete(ctx context.Context, req Request) (string, error) {
	chatReq, err := p.buildChatRequest(req, false)
	if err != nil {
		return "", err
	}

	resp, err := p.makeChatRequest(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("copilot API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("copilot API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp copilotChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("copilot API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		return "", fmt.Errorf("copilot API returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

func chooseModel(requested, configured string) string {
	if requested != "" {
		return requested
	}
	return configured
}

func buildCopilotMessages(messages []Message) []copilotMessage {
	var result []copilotMessage
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			text, toolCalls := splitParts(msg.Parts)
			if msg.Role == RoleAssistant && len(toolCalls) > 0 {
				result = append(result, copilotMessage{
					Role:      "assistant",
					Content:   text,
					ToolCalls: toolCalls,
				})
				continue
			}
			if text == "" {
				continue
			}
			result = append(result, copilotMessage{Role: string(msg.Role), Content: text})
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				result = append(result, copilotMessage{
					Role:       "tool",
					Content:    part.ToolResult.Content,
					ToolCallID: part.ToolResult.ID,
					Name:       part.ToolResult.Name,
				})
			}
		}
	}
	return result
}

func splitParts(parts []Part) (string, []copilotToolCall) {
	var textParts []string
	var toolCalls []copilotToolCall
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			toolCalls = append(toolCalls, copilotToolCall{
				ID:   part.ToolCall.ID,
				Type: "function",
				Function: struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				}{
					Name:      part.ToolCall.Name,
					Arguments: string(part.ToolCall.Arguments),
				},
			})
		}
	}
	return strings.Join(textParts, ""), toolCalls
}

func buildCopilotTools(specs []ToolSpec) ([]copilotTool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]copilotTool, 0, len(specs))
	for _, spec := range specs {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema %s: %w", spec.Name, err)
		}
		tools = append(tools, copilotTool{
			Type: "function",
			Function: copilotFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

// copilotToolState merges streamed tool-call fragments into complete calls.
// Fragments are keyed by the wire index field; a fragment without an index
// merges into slot 0, which assumes single-call turns align positionally.
type copilotToolState struct {
	byIndex map[int]*toolCallState
	order   []int
}

type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

func newCopilotToolState() *copilotToolState {
	return &copilotToolState{byIndex: make(map[int]*toolCallState)}
}

// Add merges one event's fragments. ID and name stick once set; later empty
// fragments never blank them. Argument text always appends.
func (s *copilotToolState) Add(calls []copilotToolCall) {
	for _, call := range calls {
		idx := call.Index
		state, ok := s.byIndex[idx]
		if !ok {
			state = &toolCallState{}
			s.byIndex[idx] = state
			s.order = append(s.order, idx)
		}
		if call.ID != "" {
			state.id = call.ID
		}
		if call.Function.Name != "" {
			state.name = call.Function.Name
		}
		if call.Function.Arguments != "" {
			state.args.WriteString(call.Function.Arguments)
		}
	}
}

// Calls returns the completed tool calls in slot order. A slot whose
// accumulated arguments never became valid JSON falls back to empty
// arguments; schema validation downstream reports the problem to the model
// instead of failing the turn.
func (s *copilotToolState) Calls(debug bool) []ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	sort.Ints(s.order)
	calls := make([]ToolCall, 0, len(s.order))
	for _, idx := range s.order {
		state := s.byIndex[idx]
		if state == nil {
			continue
		}
		args := state.args.String()
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			if debug {
				fmt.Fprintf(os.Stderr, "copilot: discarding malformed arguments for %s (slot %d): %q\n", state.name, idx, args)
			}
			args = "{}"
		}
		calls = append(calls, ToolCall{
			ID:        state.id,
			Name:      state.name,
			Arguments: json.RawMessage(args),
		})
	}
	return calls
}
