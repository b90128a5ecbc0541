package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ValidateArgs checks parsed tool arguments against the tool's declared JSON
// schema before execution: every required key must be present, and values
// must match the declared primitive type. Model-declared arguments are not
// trusted unchecked.
func ValidateArgs(args json.RawMessage, schema map[string]interface{}) *ToolError {
	var m map[string]interface{}
	if err := json.Unmarshal(args, &m); err != nil {
		return NewToolErrorf(ErrInvalidParams, "arguments are not a JSON object: %v", err)
	}

	required, _ := schema["required"].([]string)
	if required == nil {
		if raw, ok := schema["required"].([]interface{}); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, key := range required {
		if _, ok := m[key]; !ok {
			return NewToolErrorf(ErrInvalidParams, "%s is required", key)
		}
	}

	props, _ := schema["properties"].(map[string]interface{})
	for key, val := range m {
		prop, ok := props[key].(map[string]interface{})
		if !ok {
			continue
		}
		declared, _ := prop["type"].(string)
		if declared == "" {
			continue
		}
		if !matchesType(val, declared) {
			return NewToolErrorf(ErrInvalidParams, "%s must be a %s", key, declared)
		}
	}

	return nil
}

func matchesType(val interface{}, declared string) bool {
	switch declared {
	case "string":
		_, ok := val.(string)
		return ok
	case "integer", "number":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	default:
		return true
	}
}

// WarnUnknownParams checks args JSON for keys not in knownKeys.
// Returns a warning string (with trailing newline) to prepend to tool output,
// or "" if no unknown keys found.
func WarnUnknownParams(args json.RawMessage, knownKeys []string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(args, &m); err != nil {
		return ""
	}
	known := make(map[string]bool, len(knownKeys))
	for _, k := range knownKeys {
		known[k] = true
	}
	var unknown []string
	for k := range m {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return ""
	}
	sort.Strings(unknown)
	var sb strings.Builder
	for _, k := range unknown {
		sb.WriteString(fmt.Sprintf("Unknown parameter '%s' was ignored\n", k))
	}
	return sb.String()
}
