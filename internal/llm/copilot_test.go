package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticTokenSource string

func (s staticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// sseServer streams the given chunks with a flush between each, so tests
// control exactly how the byte stream is split on the wire.
func sseServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer does not support flushing")
			return
		}
		for _, chunk := range chunks {
			if _, err := io.WriteString(w, chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collectEvents(t *testing.T, p *CopilotProvider) ([]Event, error) {
	t.Helper()
	stream, err := p.Stream(context.Background(), Request{
		Messages: []Message{UserText("hi")},
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var events []Event
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

func textDeltas(events []Event) string {
	var out string
	for _, e := range events {
		if e.Type == EventTextDelta {
			out += e.Text
		}
	}
	return out
}

func deltaLine(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n", content)
}

func splitBytes(s string) []string {
	chunks := make([]string, 0, len(s))
	for i := 0; i < len(s); i++ {
		chunks = append(chunks, s[i:i+1])
	}
	return chunks
}

func TestCopilotStream_TextDeltas(t *testing.T) {
	payload := deltaLine("Hel") + deltaLine("lo") + "data: [DONE]\n"
	srv := sseServer(t, []string{payload})

	p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
	events, err := collectEvents(t, p)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if got := textDeltas(events); got != "Hello" {
		t.Errorf("text = %q, want %q", got, "Hello")
	}
}

func TestCopilotStream_ChunkBoundaryIndependence(t *testing.T) {
	payload := deltaLine("Hel") + deltaLine("lo ") + deltaLine("world") + "data: [DONE]\n"

	chunkings := map[string][]string{
		"one shot":       {payload},
		"byte at a time": splitBytes(payload),
		"mid line":       {payload[:17], payload[17:40], payload[40:]},
	}

	var want []Event
	for name, chunks := range chunkings {
		srv := sseServer(t, chunks)
		p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
		events, err := collectEvents(t, p)
		if err != nil {
			t.Fatalf("%s: stream error: %v", name, err)
		}
		if want == nil {
			want = events
			continue
		}
		if len(events) != len(want) {
			t.Fatalf("%s: got %d events, want %d", name, len(events), len(want))
		}
		for i := range events {
			if events[i].Type != want[i].Type || events[i].Text != want[i].Text {
				t.Errorf("%s: event %d = %+v, want %+v", name, i, events[i], want[i])
			}
		}
	}
}

func TestCopilotStream_SentinelStopsDecoding(t *testing.T) {
	payload := deltaLine("before") + "data: [DONE]\n" + deltaLine("after")
	srv := sseServer(t, []string{payload})

	p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
	events, err := collectEvents(t, p)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if got := textDeltas(events); got != "before" {
		t.Errorf("text = %q, want %q (nothing after [DONE])", got, "before")
	}
}

func TestCopilotStream_MalformedLineSkipped(t *testing.T) {
	payload := deltaLine("ok1") +
		"data: {not json at all\n" +
		": comment line ignored\n" +
		deltaLine("ok2") + "data: [DONE]\n"
	srv := sseServer(t, []string{payload})

	p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
	events, err := collectEvents(t, p)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if got := textDeltas(events); got != "ok1ok2" {
		t.Errorf("text = %q, want %q", got, "ok1ok2")
	}
}

func TestCopilotStream_NoSentinelEndsNormally(t *testing.T) {
	// Connection closes without [DONE], trailing partial line and all.
	payload := deltaLine("done anyway") + "data: {\"choices\":[{\"delta\":{\"cont"
	srv := sseServer(t, []string{payload})

	p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
	events, err := collectEvents(t, p)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if got := textDeltas(events); got != "done anyway" {
		t.Errorf("text = %q, want %q", got, "done anyway")
	}
}

func TestCopilotStream_EmptyDeltasSuppressed(t *testing.T) {
	payload := "data: {\"choices\":[{\"delta\":{}}]}\n" +
		deltaLine("") +
		deltaLine("x") + "data: [DONE]\n"
	srv := sseServer(t, []string{payload})

	p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
	events, err := collectEvents(t, p)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	var deltas int
	for _, e := range events {
		if e.Type == EventTextDelta {
			deltas++
		}
	}
	if deltas != 1 {
		t.Errorf("got %d text deltas, want 1", deltas)
	}
}

func TestCopilotStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"no access"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
	_, err := collectEvents(t, p)
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestCopilotStream_ToolCallFragments(t *testing.T) {
	frag := func(index int, id, name, args string) string {
		call := map[string]any{"index": index}
		if id != "" {
			call["id"] = id
		}
		fn := map[string]any{}
		if name != "" {
			fn["name"] = name
		}
		if args != "" {
			fn["arguments"] = args
		}
		call["function"] = fn
		payload := map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"tool_calls": []any{call}}}}}
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal fragment: %v", err)
		}
		return "data: " + string(raw) + "\n"
	}

	payload := frag(0, "call-1", "read_file", `{"pa`) +
		frag(0, "", "", `th":"a.txt"}`) +
		"data: [DONE]\n"
	srv := sseServer(t, []string{payload})

	p := NewCopilotProvider(staticTokenSource("tok"), srv.URL, "gpt-4o", 0)
	events, err := collectEvents(t, p)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	var call *ToolCall
	for _, e := range events {
		if e.Type == EventToolCall {
			call = e.Tool
		}
	}
	if call == nil {
		t.Fatal("expected a tool call event")
	}
	if call.ID != "call-1" || call.Name != "read_file" {
		t.Errorf("call = %s/%s, want call-1/read_file", call.ID, call.Name)
	}
	if string(call.Arguments) != `{"path":"a.txt"}` {
		t.Errorf("arguments = %s", call.Arguments)
	}
}

func TestCopilotToolState_MergeIdempotence(t *testing.T) {
	fragments := []copilotToolCall{
		{Index: 0, ID: "call-1"},
		{Index: 0},
		{Index: 1, ID: "call-2"},
	}
	fragments[0].Function.Name = "read_file"
	fragments[0].Function.Arguments = `{"path":`
	fragments[1].Function.Arguments = `"a.txt"}`
	fragments[2].Function.Name = "read_file"
	fragments[2].Function.Arguments = `{"path":"b.txt"}`

	// Same fragments, chunked differently per event.
	one := newCopilotToolState()
	one.Add(fragments)

	two := newCopilotToolState()
	two.Add(fragments[:1])
	two.Add(fragments[1:2])
	two.Add(fragments[2:])

	a, b := one.Calls(false), two.Calls(false)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("got %d/%d calls, want 2/2", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name || string(a[i].Arguments) != string(b[i].Arguments) {
			t.Errorf("slot %d: %+v != %+v", i, a[i], b[i])
		}
	}
}

func TestCopilotToolState_EmptyFragmentsNeverBlank(t *testing.T) {
	s := newCopilotToolState()

	first := copilotToolCall{Index: 0, ID: "call-1"}
	first.Function.Name = "read_file"
	s.Add([]copilotToolCall{first})

	// Later fragments for the same slot carry no id or name.
	later := copilotToolCall{Index: 0}
	later.Function.Arguments = `{"path":"a.txt"}`
	s.Add([]copilotToolCall{later})

	calls := s.Calls(false)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].ID != "call-1" || calls[0].Name != "read_file" {
		t.Errorf("id/name blanked: %+v", calls[0])
	}
}

func TestCopilotToolState_MalformedArgumentsDefault(t *testing.T) {
	s := newCopilotToolState()
	frag := copilotToolCall{Index: 0, ID: "call-1"}
	frag.Function.Name = "read_file"
	frag.Function.Arguments = `{"path": "a.txt"` // never closed
	s.Add([]copilotToolCall{frag})

	calls := s.Calls(false)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if string(calls[0].Arguments) != "{}" {
		t.Errorf("arguments = %s, want {}", calls[0].Arguments)
	}
}

func TestBuildCopilotMessages_RoleMapping(t *testing.T) {
	messages := []Message{
		SystemText("be helpful"),
		UserText("what's in a.txt"),
		{
			Role: RoleAssistant,
			Parts: []Part{
				{Type: PartToolCall, ToolCall: &ToolCall{ID: "call-1", Name: "read_file", Arguments: []byte(`{"path":"a.txt"}`)}},
			},
		},
		ToolResultMessage("call-1", "read_file", "hello"),
		AssistantText("a.txt contains: hello"),
	}

	out := buildCopilotMessages(messages)
	if len(out) != 5 {
		t.Fatalf("got %d messages, want 5", len(out))
	}

	if out[2].Role != "assistant" || len(out[2].ToolCalls) != 1 {
		t.Errorf("assistant tool-call message wrong: %+v", out[2])
	}
	if out[3].Role != "tool" || out[3].ToolCallID != "call-1" || out[3].Content != "hello" {
		t.Errorf("tool result message wrong: %+v", out[3])
	}
	// An assistant message with tool calls is kept even with empty text.
	if out[2].Content != "" {
		t.Errorf("expected empty content on tool-call message, got %q", out[2].Content)
	}
}
