package ports

import (
	"context"
	"io"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

// StructuredExtractor asks a generative vision model for item fields.
type StructuredExtractor interface {
	Name() string
	ExtractStructured(ctx context.Context, img domain.ImageInput) (*domain.StructuredExtraction, error)
}

// TextDetector asks a text-detection service for the raw text on an image.
// Implementations require img.Data to be populated.
type TextDetector interface {
	Name() string
	DetectText(ctx context.Context, img domain.ImageInput) (*domain.RawTextResult, error)
}

// ImageFetcher resolves request references into image bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (domain.ImageInput, error)
	Decode(payload string) (domain.ImageInput, error)
}

// ProviderObserver receives per-provider call outcomes.
type ProviderObserver interface {
	ObserveProviderCall(provider, outcome string, duration time.Duration)
	ObserveExtraction(result domain.FusedResult, needsReview bool)
}

// EventPublisher publishes and consumes extraction events.
type EventPublisher interface {
	PublishExtractionCompleted(ctx context.Context, event domain.ExtractionCompletedEvent) error
}

type EventSubscriber interface {
	SubscribeExtractionCompleted(ctx context.Context, handler func(context.Context, domain.ExtractionCompletedEvent) error) error
}

// ExtractionRepository persists extraction records.
type ExtractionRepository interface {
	Upsert(ctx context.Context, record *domain.ExtractionRecord) error
	GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error)
	List(ctx context.Context, filter domain.RecordFilter) ([]domain.ExtractionRecord, error)
	SaveReview(ctx context.Context, id string, corrections domain.FieldCorrections, updatedAt time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ImageArchive stores source images for later review.
type ImageArchive interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// SpreadsheetWriter renders records into a workbook.
type SpreadsheetWriter interface {
	WriteExtractions(records []domain.ExtractionRecord) ([]byte, error)
}
