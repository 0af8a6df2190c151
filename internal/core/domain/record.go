package domain

import (
	"fmt"
	"strings"
	"time"
)

type ReviewStatus string

const (
	ReviewAutoApplied ReviewStatus = "auto_applied"
	ReviewPending     ReviewStatus = "pending_review"
	ReviewReviewed    ReviewStatus = "reviewed"
)

func ParseReviewStatus(raw string) (ReviewStatus, error) {
	switch status := ReviewStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case "", ReviewAutoApplied, ReviewPending, ReviewReviewed:
		return status, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse review status", fmt.Errorf("unknown status %q", raw))
	}
}

// ReviewStatusFor applies the auto-apply gate to a freshly fused result.
func ReviewStatusFor(result FusedResult, threshold float64) ReviewStatus {
	if result.NeedsReview(threshold) {
		return ReviewPending
	}
	return ReviewAutoApplied
}

// ExtractionRecord is the persisted audit trail of one extraction call.
type ExtractionRecord struct {
	ID           string            `json:"id"`
	RequestID    string            `json:"request_id,omitempty"`
	ImageRef     string            `json:"image_ref"`
	ImageKey     string            `json:"image_key,omitempty"`
	Result       FusedResult       `json:"result"`
	ReviewStatus ReviewStatus      `json:"review_status"`
	Corrections  *FieldCorrections `json:"corrections,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Fields returns the structured fields with reviewer corrections applied.
func (r ExtractionRecord) Fields() StructuredExtraction {
	if r.Corrections == nil {
		return r.Result.StructuredExtraction
	}
	return r.Corrections.Apply(r.Result.StructuredExtraction)
}

// FieldCorrections holds reviewer edits. Nil fields keep the extracted value.
type FieldCorrections struct {
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Brand          *string   `json:"brand,omitempty"`
	Model          *string   `json:"model,omitempty"`
	SerialNumber   *string   `json:"serial_number,omitempty"`
	Category       *Category `json:"category,omitempty"`
	EstimatedValue *float64  `json:"estimated_value,omitempty"`
}

func (c FieldCorrections) Validate() error {
	if c.EstimatedValue != nil && *c.EstimatedValue < 0 {
		return WrapError(ErrInvalidInput, "validate corrections", fmt.Errorf("estimated_value must be non-negative"))
	}
	if c.Category != nil && *c.Category != "" {
		canonical := CanonicalCategory(string(*c.Category))
		if canonical == CategoryOther && strings.ToLower(strings.TrimSpace(string(*c.Category))) != string(CategoryOther) {
			return WrapError(ErrInvalidInput, "validate corrections", fmt.Errorf("unknown category %q", *c.Category))
		}
	}
	return nil
}

func (c FieldCorrections) Apply(base StructuredExtraction) StructuredExtraction {
	out := base
	if c.Title != nil {
		out.Title = *c.Title
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	if c.Brand != nil {
		out.Brand = *c.Brand
	}
	if c.Model != nil {
		out.Model = *c.Model
	}
	if c.SerialNumber != nil {
		out.SerialNumber = *c.SerialNumber
	}
	if c.Category != nil {
		out.Category = CanonicalCategory(string(*c.Category))
	}
	if c.EstimatedValue != nil {
		out.EstimatedValue = *c.EstimatedValue
	}
	return out
}

// ExtractionCompletedEvent is published after every successful extraction call.
type ExtractionCompletedEvent struct {
	ExtractionID string      `json:"extraction_id"`
	RequestID    string      `json:"request_id,omitempty"`
	ImageRef     string      `json:"image_ref"`
	ImageKey     string      `json:"image_key,omitempty"`
	Result       FusedResult `json:"result"`
	CompletedAt  time.Time   `json:"completed_at"`
}

type RecordFilter struct {
	Status ReviewStatus
	Limit  int
}

const (
	DefaultRecordListLimit = 50
	MaxRecordListLimit     = 500
)

func (f RecordFilter) Normalize() RecordFilter {
	out := f
	if out.Limit <= 0 {
		out.Limit = DefaultRecordListLimit
	}
	if out.Limit > MaxRecordListLimit {
		out.Limit = MaxRecordListLimit
	}
	return out
}
