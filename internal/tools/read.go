package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/wobbat/th/internal/llm"
)

// ReadFileToolName is the tool spec name exposed to the model.
const ReadFileToolName = "read_file"

// ReadFileTool implements the read_file tool.
type ReadFileTool struct {
	limits OutputLimits
}

// NewReadFileTool creates a new ReadFileTool.
func NewReadFileTool(limits OutputLimits) *ReadFileTool {
	return &ReadFileTool{limits: limits}
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read the contents of a file and return them as text.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute or relative path to the file to read",
				},
			},
			"required":             []string{"path"},
			"additionalProperties": false,
		},
	}
}

func (t *ReadFileTool) Preview(args json.RawMessage) string {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Path == "" {
		return ""
	}
	return a.Path
}

// Execute reads the file named in args. All failures come back as textual
// tool results so the model can recover; the error return stays nil.
func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if verr := ValidateArgs(args, t.Spec().Schema); verr != nil {
		return formatToolError(verr), nil
	}

	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}

	warning := WarnUnknownParams(args, []string{"path"})

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return formatToolError(NewToolError(ErrFileNotFound, a.Path)), nil
		}
		return formatToolError(NewToolErrorf(ErrExecutionFailed, "read error: %v", err)), nil
	}

	if isBinaryContent(data) {
		return formatToolError(NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", a.Path)), nil
	}

	content := string(data)
	truncated := false

	lines := strings.Split(content, "\n")
	if len(lines) > t.limits.MaxLines {
		content = strings.Join(lines[:t.limits.MaxLines], "\n")
		truncated = true
	}
	if int64(len(content)) > t.limits.MaxBytes {
		content = content[:t.limits.MaxBytes]
		truncated = true
	}
	if truncated {
		content += fmt.Sprintf("\n\n[Output truncated. Total lines: %d.]", len(lines))
	}

	return warning + content, nil
}

// isBinaryContent detects if content is binary using http.DetectContentType.
func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}

	contentType := http.DetectContentType(sample)

	if strings.HasPrefix(contentType, "text/") {
		return false
	}
	if strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}

	for _, b := range sample {
		if b == 0 {
			return true
		}
	}

	return false
}
