package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xhad/annotscan/internal/models"
	"github.com/xhad/annotscan/pkg/fsutil"
	"github.com/xhad/annotscan/pkg/pipeline"
	"github.com/xhad/annotscan/pkg/processor"
)

type scanFailure struct {
	File  string `json:"file"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type scanResult struct {
	ScanID    string        `json:"scan_id"`
	Files     []string      `json:"files"`
	OutputDir string        `json:"output_dir"`
	Failures  []scanFailure `json:"failures,omitempty"`
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name: "highlight_annotations",
		Description: "Scan every PDF in a folder for annotations whose text contains the search term " +
			"(case and spaces ignored), highlight them in a copy under the output folder, and list the matching files",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"folder": {"type": "string", "description": "Folder holding the PDF files"},
				"term": {"type": "string", "description": "Text to look for in annotation comments"}
			},
			"required": ["folder", "term"]
		}`),
	}, s.handleHighlightAnnotations)
}

func toolError(format string, args ...interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}

func (s *Server) handleHighlightAnnotations(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Folder string `json:"folder"`
		Term   string `json:"term"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return nil, err
	}

	if strings.TrimSpace(params.Folder) == "" {
		return toolError("folder cannot be empty"), nil
	}
	if strings.ReplaceAll(params.Term, " ", "") == "" {
		return toolError("term cannot be empty"), nil
	}
	if err := processor.ValidateTerm(params.Term); err != nil {
		return toolError("%v", err), nil
	}

	folder := params.Folder
	if s.osPaths {
		abs, err := fsutil.Resolve(folder)
		if err != nil {
			return toolError("%v", err), nil
		}
		folder = abs
	}

	s.runs.Lock()
	defer s.runs.Unlock()

	out := scanResult{ScanID: uuid.New().String()}
	p := pipeline.New(pipeline.Config{
		FS:         s.config.FS,
		OutputBase: s.config.OutputBase,
		Highlight:  s.config.Highlight,
		OnOutcome: func(o models.Outcome) {
			if o.Err == nil {
				return
			}
			f := scanFailure{File: o.File, Error: o.Err.Error()}
			var se *models.ScanError
			if errors.As(o.Err, &se) {
				f.Kind = string(se.Kind)
			}
			out.Failures = append(out.Failures, f)
		},
	})

	result, err := p.Run(folder, params.Term)
	if err != nil {
		return toolError("%v", err), nil
	}
	out.Files = result.Files()
	out.OutputDir = p.OutputDir(processor.NewSearchTerm(params.Term))

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}
