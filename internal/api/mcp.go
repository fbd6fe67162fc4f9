package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/seodata/internal/uploader"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Responder Asker
	Reports   ReportLister
	Uploader  UploadRunner // optional; if nil, upload_vectors is not registered
	Version   string
}

// NewMCPServer creates an MCP server exposing the report tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"seodata",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("seodata: Search Console reports stored as JSON objects, answerable in natural language."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_reports",
			mcp.WithDescription("Answer a question using the stored Search Console reports."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskReports(deps),
	)

	s.AddTool(
		mcp.NewTool("list_reports",
			mcp.WithDescription("List stored report objects with their size and modification time."),
		),
		mcpListReports(deps),
	)

	if deps.Uploader != nil {
		s.AddTool(
			mcp.NewTool("upload_vectors",
				mcp.WithDescription("Embed the configured report object and upload it to the vector collection."),
			),
			mcpUploadVectors(deps),
		)
	}

	return s
}

func mcpAskReports(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Responder.Ask(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListReports(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		objects, err := deps.Reports.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing reports failed: %v", err)), nil
		}
		if len(objects) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(objects)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reports: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUploadVectors(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Uploader.Upload(ctx, uploader.Request{})
		if err != nil {
			return mcpError(uploader.FailureMessage(err)), nil
		}
		return mcpText(res.Message()), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
