package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "title":           {"type": "string"},
    "description":     {"type": "string"},
    "brand":           {"type": "string"},
    "model":           {"type": "string"},
    "serial_number":   {"type": "string"},
    "category":        {"type": "string"},
    "estimated_value": {"type": "number", "minimum": 0},
    "confidence":      {"type": "number", "minimum": 0, "maximum": 100},
    "extracted_text":  {"type": "string"}
  },
  "required": ["confidence"]
}`

var ErrEmptyResponse = errors.New("empty model response")

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("structured_extraction.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("structured_extraction.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// StripCodeFences removes a surrounding markdown code fence, with or without a language tag.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Parse turns raw model output into a StructuredExtraction. Any failure is returned as an
// error so the caller can treat the provider as having produced nothing.
func Parse(raw string) (*domain.StructuredExtraction, error) {
	cleaned := extractJSONObject(StripCodeFences(raw))
	if cleaned == "" {
		return nil, ErrEmptyResponse
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	decoder.UseNumber()
	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse structured json: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse structured json: not an object")
	}

	sanitize(doc)

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("structured json does not match schema: %w", err)
	}

	return &domain.StructuredExtraction{
		Title:          stringField(doc, "title"),
		Description:    stringField(doc, "description"),
		Brand:          stringField(doc, "brand"),
		Model:          stringField(doc, "model"),
		SerialNumber:   stringField(doc, "serial_number"),
		Category:       domain.CanonicalCategory(stringField(doc, "category")),
		EstimatedValue: numberField(doc, "estimated_value"),
		Confidence:     numberField(doc, "confidence"),
		ExtractedText:  stringField(doc, "extracted_text"),
	}, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

// sanitize repairs common model slips before schema validation: nulls, numbers sent as
// strings ("$1,299.00", "85%"), fractional confidences and negative values.
func sanitize(doc map[string]any) {
	for _, key := range []string{"title", "description", "brand", "model", "serial_number", "category", "extracted_text"} {
		switch v := doc[key].(type) {
		case nil:
			doc[key] = ""
		case string:
			doc[key] = strings.TrimSpace(v)
		case json.Number:
			doc[key] = v.String()
		}
	}

	for _, key := range []string{"estimated_value", "confidence"} {
		raw, present := doc[key]
		if !present {
			continue
		}
		if raw == nil {
			doc[key] = json.Number("0")
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		n, ok := parseLooseNumber(s)
		if !ok {
			n = 0
		}
		doc[key] = json.Number(strconv.FormatFloat(n, 'f', -1, 64))
	}

	if v, ok := asFloat(doc["estimated_value"]); ok && v < 0 {
		doc["estimated_value"] = json.Number("0")
	}
	if v, ok := asFloat(doc["confidence"]); ok {
		if v > 0 && v <= 1 {
			v = math.Round(v*10000) / 100
		}
		v = math.Max(0, math.Min(100, v))
		doc["confidence"] = json.Number(strconv.FormatFloat(v, 'f', -1, 64))
	}
}

func parseLooseNumber(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func numberField(doc map[string]any, key string) float64 {
	f, _ := asFloat(doc[key])
	return f
}
