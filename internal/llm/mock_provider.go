package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// MockProvider is a scripted provider for tests. Responses are consumed in
// order, one per Stream call; every request is recorded for inspection.
type MockProvider struct {
	name       string
	caps       Capabilities
	responses  []mockResponse
	repeatLast bool

	// Requests records every Request passed to Stream, in order.
	Requests []Request
}

type mockResponse struct {
	text  string
	calls []ToolCall
	err   error
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name: name,
		caps: Capabilities{ToolCalls: true},
	}
}

// WithCapabilities overrides the default capabilities.
func (p *MockProvider) WithCapabilities(caps Capabilities) *MockProvider {
	p.caps = caps
	return p
}

// RepeatLastResponse makes the provider replay its final scripted response
// forever instead of going silent once the script runs out.
func (p *MockProvider) RepeatLastResponse() *MockProvider {
	p.repeatLast = true
	return p
}

// AddTextResponse queues a text-only response, streamed as one delta.
func (p *MockProvider) AddTextResponse(text string) {
	p.responses = append(p.responses, mockResponse{text: text})
}

// AddToolCall queues a response containing a single tool call.
func (p *MockProvider) AddToolCall(id, name string, args any) {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("mock provider: marshal args: %v", err))
	}
	p.responses = append(p.responses, mockResponse{
		calls: []ToolCall{{ID: id, Name: name, Arguments: raw}},
	})
}

// AddToolCalls queues a response containing several tool calls in slot order.
func (p *MockProvider) AddToolCalls(calls ...ToolCall) {
	p.responses = append(p.responses, mockResponse{calls: calls})
}

// AddError queues a response that fails the stream.
func (p *MockProvider) AddError(err error) {
	p.responses = append(p.responses, mockResponse{err: err})
}

func (p *MockProvider) Name() string {
	return p.name
}

func (p *MockProvider) Credential() string {
	return "mock"
}

func (p *MockProvider) Capabilities() Capabilities {
	return p.caps
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.Requests = append(p.Requests, req)

	idx := len(p.Requests) - 1
	var resp mockResponse
	switch {
	case idx < len(p.responses):
		resp = p.responses[idx]
	case p.repeatLast && len(p.responses) > 0:
		resp = p.responses[len(p.responses)-1]
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if resp.err != nil {
			return resp.err
		}
		if resp.text != "" {
			events <- Event{Type: EventTextDelta, Text: resp.text}
		}
		for i := range resp.calls {
			call := resp.calls[i]
			events <- Event{Type: EventToolCall, Tool: &call}
		}
		events <- Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}
