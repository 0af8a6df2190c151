package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
)

const (
	ServerName = "snap-report-extraction"

	ToolExtractItemFields = "extract_item_fields"
	ToolGetExtraction     = "get_extraction"
)

// Tools exposes the extraction engine to MCP clients.
type Tools struct {
	extractor ports.ItemExtractor
	reader    ports.ExtractionReader
}

func NewTools(extractor ports.ItemExtractor, reader ports.ExtractionReader) *Tools {
	return &Tools{extractor: extractor, reader: reader}
}

// NewServer registers the extraction tools. get_extraction is only offered when reader is set.
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true))

	s.AddTool(mcp.NewTool(ToolExtractItemFields,
		mcp.WithDescription("Read a photo of a household item and return its title, brand, model, serial number, category, estimated value and OCR text. Pass exactly one of image_url or image_base64."),
		mcp.WithString("image_url", mcp.Description("Publicly reachable image URL.")),
		mcp.WithString("image_base64", mcp.Description("Base64 image payload, optionally as a data URL.")),
	), tools.ExtractItemFields)

	if tools.reader != nil {
		s.AddTool(mcp.NewTool(ToolGetExtraction,
			mcp.WithDescription("Fetch a recorded extraction, including reviewer corrections."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Extraction id returned by extract_item_fields.")),
		), tools.GetExtraction)
	}
	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport without sessions.
func NewHTTPHandler(s *server.MCPServer, path string) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithEndpointPath(path),
		server.WithStateLess(true),
	)
}

type extractToolResult struct {
	ExtractionID string             `json:"extraction_id"`
	Result       domain.FusedResult `json:"result"`
}

func (t *Tools) ExtractItemFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	extractReq := domain.ExtractionRequest{
		ImageURL:    strings.TrimSpace(req.GetString("image_url", "")),
		ImageBase64: strings.TrimSpace(req.GetString("image_base64", "")),
		RequestID:   "mcp-" + uuid.NewString(),
	}

	extraction, err := t.extractor.Extract(ctx, extractReq)
	if err != nil {
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			slog.Error("mcp_extract_failed", "request_id", extractReq.RequestID, "error", err)
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(extractToolResult{ExtractionID: extraction.ID, Result: extraction.Result})
}

func (t *Tools) GetExtraction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(req.GetString("id", ""))
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	record, err := t.reader.GetByID(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(record)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
