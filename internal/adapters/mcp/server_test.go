package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

type extractorStub struct {
	lastReq domain.ExtractionRequest
	err     error
}

func (s *extractorStub) Extract(_ context.Context, req domain.ExtractionRequest) (*domain.Extraction, error) {
	s.lastReq = req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Extraction{
		ID: "ext-7",
		Result: domain.FusedResult{
			StructuredExtraction: domain.StructuredExtraction{Title: "Stand Mixer", Brand: "KitchenAid", Confidence: 85},
			Provider:             domain.ProviderStructured,
		},
	}, nil
}

type readerStub struct{}

func (readerStub) GetByID(_ context.Context, id string) (*domain.ExtractionRecord, error) {
	if id != "ext-7" {
		return nil, domain.WrapError(domain.ErrExtractionNotFound, "get extraction", io.EOF)
	}
	return &domain.ExtractionRecord{ID: id, ReviewStatus: domain.ReviewAutoApplied}, nil
}

func (readerStub) List(context.Context, domain.RecordFilter) ([]domain.ExtractionRecord, error) {
	return nil, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", res.Content[0])
		return ""
	}
}

func TestExtractItemFieldsReturnsFusedResult(t *testing.T) {
	extractor := &extractorStub{}
	tools := NewTools(extractor, readerStub{})

	res, err := tools.ExtractItemFields(context.Background(), callRequest(ToolExtractItemFields, map[string]any{
		"image_url": " https://img.example/mixer.jpg ",
	}))
	if err != nil {
		t.Fatalf("ExtractItemFields() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var payload extractToolResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ExtractionID != "ext-7" || payload.Result.Brand != "KitchenAid" || payload.Result.Provider != domain.ProviderStructured {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if extractor.lastReq.ImageURL != "https://img.example/mixer.jpg" {
		t.Fatalf("expected trimmed url, got %q", extractor.lastReq.ImageURL)
	}
	if !strings.HasPrefix(extractor.lastReq.RequestID, "mcp-") {
		t.Fatalf("expected generated request id, got %q", extractor.lastReq.RequestID)
	}
}

func TestExtractItemFieldsReportsValidationAsToolError(t *testing.T) {
	tools := NewTools(&extractorStub{}, nil)

	res, err := tools.ExtractItemFields(context.Background(), callRequest(ToolExtractItemFields, map[string]any{}))
	if err != nil {
		t.Fatalf("ExtractItemFields() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "imageUrl or imageBase64 is required") {
		t.Fatalf("expected validation tool error, got %+v", res)
	}
}

func TestExtractItemFieldsReportsFailureAsToolError(t *testing.T) {
	tools := NewTools(&extractorStub{err: errors.New("archive offline")}, nil)

	res, err := tools.ExtractItemFields(context.Background(), callRequest(ToolExtractItemFields, map[string]any{
		"image_base64": "aGVsbG8=",
	}))
	if err != nil {
		t.Fatalf("ExtractItemFields() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestGetExtraction(t *testing.T) {
	tools := NewTools(&extractorStub{}, readerStub{})

	res, err := tools.GetExtraction(context.Background(), callRequest(ToolGetExtraction, map[string]any{"id": "ext-7"}))
	if err != nil {
		t.Fatalf("GetExtraction() error = %v", err)
	}
	if res.IsError || !strings.Contains(resultText(t, res), `"review_status":"auto_applied"`) {
		t.Fatalf("unexpected result %s", resultText(t, res))
	}

	res, _ = tools.GetExtraction(context.Background(), callRequest(ToolGetExtraction, map[string]any{"id": "nope"}))
	if !res.IsError {
		t.Fatalf("expected not-found tool error")
	}

	res, _ = tools.GetExtraction(context.Background(), callRequest(ToolGetExtraction, map[string]any{}))
	if !res.IsError {
		t.Fatalf("expected missing id tool error")
	}
}

func listedTools(t *testing.T, tools *Tools) string {
	t.Helper()
	s := NewServer(tools, "test")
	msg := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal tools/list response: %v", err)
	}
	return string(raw)
}

func TestNewServerRegistersTools(t *testing.T) {
	withReader := listedTools(t, NewTools(&extractorStub{}, readerStub{}))
	if !strings.Contains(withReader, ToolExtractItemFields) || !strings.Contains(withReader, ToolGetExtraction) {
		t.Fatalf("expected both tools, got %s", withReader)
	}

	extractOnly := listedTools(t, NewTools(&extractorStub{}, nil))
	if strings.Contains(extractOnly, ToolGetExtraction) {
		t.Fatalf("expected get_extraction to be omitted without a reader, got %s", extractOnly)
	}
}
