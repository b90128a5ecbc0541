package tools

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateArgs_RequiredAndTypes(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":  map[string]interface{}{"type": "string"},
			"count": map[string]interface{}{"type": "integer"},
			"deep":  map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"path"},
	}

	cases := []struct {
		name    string
		args    string
		wantErr string
	}{
		{"valid", `{"path":"a.txt"}`, ""},
		{"valid with extras typed", `{"path":"a.txt","count":3,"deep":true}`, ""},
		{"missing required", `{"count":3}`, "path is required"},
		{"wrong string type", `{"path":7}`, "path must be a string"},
		{"wrong integer type", `{"path":"a","count":"three"}`, "count must be a integer"},
		{"wrong boolean type", `{"path":"a","deep":"yes"}`, "deep must be a boolean"},
		{"not an object", `[1,2,3]`, "not a JSON object"},
		{"invalid json", `{`, "not a JSON object"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateArgs(json.RawMessage(tc.args), schema)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if err.Type != ErrInvalidParams {
				t.Errorf("error type = %s, want %s", err.Type, ErrInvalidParams)
			}
			if !strings.Contains(err.Message, tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Message, tc.wantErr)
			}
		})
	}
}

func TestValidateArgs_RequiredFromInterfaceSlice(t *testing.T) {
	// Schemas decoded from JSON carry required as []interface{}.
	schema := map[string]interface{}{
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"path"},
	}

	if err := ValidateArgs(json.RawMessage(`{}`), schema); err == nil {
		t.Fatal("expected missing-required error")
	}
	if err := ValidateArgs(json.RawMessage(`{"path":"ok"}`), schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWarnUnknownParams(t *testing.T) {
	warning := WarnUnknownParams(json.RawMessage(`{"path":"a","zeta":1,"alpha":2}`), []string{"path"})
	if !strings.Contains(warning, "Unknown parameter 'alpha' was ignored") ||
		!strings.Contains(warning, "Unknown parameter 'zeta' was ignored") {
		t.Errorf("warning = %q", warning)
	}
	// Deterministic order.
	if strings.Index(warning, "alpha") > strings.Index(warning, "zeta") {
		t.Errorf("warnings not sorted: %q", warning)
	}

	if got := WarnUnknownParams(json.RawMessage(`{"path":"a"}`), []string{"path"}); got != "" {
		t.Errorf("no unknown keys but got %q", got)
	}
	if got := WarnUnknownParams(json.RawMessage(`not json`), []string{"path"}); got != "" {
		t.Errorf("malformed args should warn nothing, got %q", got)
	}
}
