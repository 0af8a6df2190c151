package ports

import (
	"context"
	"io"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

// ItemExtractor is the inbound contract for the OCR fusion engine.
type ItemExtractor interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.Extraction, error)
}

// ExtractionReader is the inbound read model for recorded extractions.
type ExtractionReader interface {
	GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error)
	List(ctx context.Context, filter domain.RecordFilter) ([]domain.ExtractionRecord, error)
}

// ExtractionReviewer applies reviewer corrections to a recorded extraction.
type ExtractionReviewer interface {
	Review(ctx context.Context, id string, corrections domain.FieldCorrections) (*domain.ExtractionRecord, error)
}

// ExtractionExporter renders recorded extractions as a spreadsheet.
type ExtractionExporter interface {
	ExportXLSX(ctx context.Context, filter domain.RecordFilter) ([]byte, error)
}

// ExtractionRecorder is the inbound contract for asynchronous record persistence.
type ExtractionRecorder interface {
	Record(ctx context.Context, event domain.ExtractionCompletedEvent) error
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// ImageProvider serves archived source images to reviewers.
type ImageProvider interface {
	OpenImage(ctx context.Context, id string) (io.ReadCloser, string, error)
}
