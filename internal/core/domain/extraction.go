package domain

import (
	"fmt"
	"strings"
	"time"
)

type ProviderLabel string

const (
	ProviderNone       ProviderLabel = "none"
	ProviderStructured ProviderLabel = "openai-style"
	ProviderText       ProviderLabel = "google-style"
	ProviderHybrid     ProviderLabel = "hybrid"
)

const (
	MinConfidence = 0.0
	MaxConfidence = 100.0

	// DefaultAutoApplyThreshold is the confidence at which callers may apply fields without review.
	DefaultAutoApplyThreshold = 80.0
)

// ExtractionRequest references the image to read. Exactly one field must be non-empty.
type ExtractionRequest struct {
	ImageURL    string `json:"imageUrl,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`

	RequestID string `json:"-"`
}

func (r ExtractionRequest) Validate() error {
	hasURL := strings.TrimSpace(r.ImageURL) != ""
	hasInline := strings.TrimSpace(r.ImageBase64) != ""
	switch {
	case !hasURL && !hasInline:
		return WrapError(ErrInvalidInput, "validate extraction request", fmt.Errorf("imageUrl or imageBase64 is required"))
	case hasURL && hasInline:
		return WrapError(ErrInvalidInput, "validate extraction request", fmt.Errorf("only one of imageUrl or imageBase64 may be set"))
	default:
		return nil
	}
}

// ImageRef returns the reference persisted with a record: the URL, or "inline" for payloads.
func (r ExtractionRequest) ImageRef() string {
	if url := strings.TrimSpace(r.ImageURL); url != "" {
		return url
	}
	return "inline"
}

// ImageInput is the provider-facing form of a request. Data is set for inline payloads and
// for URLs that were downloaded; URL is kept so providers that accept links can skip bytes.
type ImageInput struct {
	URL      string
	Data     []byte
	MIMEType string
}

func (in ImageInput) HasData() bool {
	return len(in.Data) > 0
}

// StructuredExtraction is the field-shaped output of the generative provider.
type StructuredExtraction struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Brand          string   `json:"brand"`
	Model          string   `json:"model"`
	SerialNumber   string   `json:"serial_number"`
	Category       Category `json:"category"`
	EstimatedValue float64  `json:"estimated_value"`
	Confidence     float64  `json:"confidence"`
	ExtractedText  string   `json:"extracted_text"`
}

// RawTextResult is the output of the text-detection provider.
type RawTextResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type FusionMetadata struct {
	TextConfidence      float64  `json:"text_confidence"`
	StructureConfidence float64  `json:"structure_confidence"`
	ImageQuality        float64  `json:"image_quality"`
	ProvidersUsed       []string `json:"providers_used"`
	ProcessingTimeMS    int64    `json:"processing_time"`
}

// FusedResult is returned to the caller after both providers were consulted.
type FusedResult struct {
	StructuredExtraction
	Provider ProviderLabel  `json:"provider"`
	RawText  string         `json:"raw_text"`
	Metadata FusionMetadata `json:"metadata"`
}

// NeedsReview reports whether the result must be confirmed by a person before it is applied.
func (r FusedResult) NeedsReview(threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultAutoApplyThreshold
	}
	return r.Confidence < threshold
}

// Extraction pairs a fused result with the identity it is recorded under.
type Extraction struct {
	ID       string
	ImageKey string
	Result   FusedResult
}

// ExtractionLimits bounds a single extraction call.
type ExtractionLimits struct {
	StructuredTimeout  time.Duration
	TextTimeout        time.Duration
	AutoApplyThreshold float64
}
