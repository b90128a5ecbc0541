package tools

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/wobbat/th/internal/llm"
)

// TestTurnWithRealReadTool drives a complete turn through the engine with the
// actual read_file tool and checks the transcript shape the chat loop relies
// on: user, assistant carrying the tool call, the tool result, and the final
// assistant answer.
func TestTurnWithRealReadTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	registry := llm.NewToolRegistry()
	registry.Register(NewReadFileTool(DefaultLimits()))

	provider := llm.NewMockProvider("test")
	provider.AddToolCall("call-1", ReadFileToolName, map[string]string{"path": path})
	provider.AddTextResponse("a.txt contains: hello")

	engine := llm.NewEngine(provider, registry)

	transcript := []llm.Message{llm.UserText("what is in a.txt?")}
	engine.SetTurnCompletedCallback(func(ctx context.Context, pass int, messages []llm.Message, metrics llm.TurnMetrics) error {
		transcript = append(transcript, messages...)
		return nil
	})

	stream, err := engine.Stream(context.Background(), llm.Request{
		Messages: transcript,
		Tools:    registry.AllSpecs(),
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()
	for {
		if _, err := stream.Recv(); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Recv error: %v", err)
		}
	}

	wantRoles := []llm.Role{llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleAssistant}
	if len(transcript) != len(wantRoles) {
		t.Fatalf("transcript has %d messages, want %d", len(transcript), len(wantRoles))
	}
	for i, want := range wantRoles {
		if transcript[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, transcript[i].Role, want)
		}
	}

	// The tool result carried the file contents verbatim.
	result := transcript[2].Parts[0]
	if result.Type != llm.PartToolResult {
		t.Fatalf("message 2 part type = %s", result.Type)
	}
	if result.ToolResult.Content != "hello" {
		t.Errorf("tool result = %q, want %q", result.ToolResult.Content, "hello")
	}
	if result.ToolResult.ID != "call-1" {
		t.Errorf("tool result id = %q", result.ToolResult.ID)
	}

	// The assistant message preceding it carries the matching call.
	call := transcript[1].Parts[0]
	if call.Type != llm.PartToolCall || call.ToolCall.ID != "call-1" {
		t.Errorf("message 1 does not carry tool call call-1: %+v", call)
	}

	if transcript[3].Parts[0].Text != "a.txt contains: hello" {
		t.Errorf("final answer = %q", transcript[3].Parts[0].Text)
	}
}
