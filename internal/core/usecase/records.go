package usecase

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
)

type ExtractionRecordsUseCase struct {
	repo      ports.ExtractionRepository
	archive   ports.ImageArchive
	sheets    ports.SpreadsheetWriter
	threshold float64
	now       func() time.Time
}

func NewExtractionRecordsUseCase(
	repo ports.ExtractionRepository,
	archive ports.ImageArchive,
	sheets ports.SpreadsheetWriter,
	threshold float64,
) *ExtractionRecordsUseCase {
	if threshold <= 0 {
		threshold = domain.DefaultAutoApplyThreshold
	}
	return &ExtractionRecordsUseCase{
		repo:      repo,
		archive:   archive,
		sheets:    sheets,
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ExtractionRecordsUseCase) Record(ctx context.Context, event domain.ExtractionCompletedEvent) error {
	if strings.TrimSpace(event.ExtractionID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record extraction", fmt.Errorf("extraction_id is required"))
	}

	createdAt := event.CompletedAt.UTC()
	if createdAt.IsZero() {
		createdAt = uc.now()
	}
	record := &domain.ExtractionRecord{
		ID:           event.ExtractionID,
		RequestID:    event.RequestID,
		ImageRef:     event.ImageRef,
		ImageKey:     event.ImageKey,
		Result:       event.Result,
		ReviewStatus: domain.ReviewStatusFor(event.Result, uc.threshold),
		CreatedAt:    createdAt,
		UpdatedAt:    uc.now(),
	}
	if err := uc.repo.Upsert(ctx, record); err != nil {
		return fmt.Errorf("persist extraction record: %w", err)
	}
	return nil
}

func (uc *ExtractionRecordsUseCase) GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get extraction", fmt.Errorf("id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *ExtractionRecordsUseCase) List(ctx context.Context, filter domain.RecordFilter) ([]domain.ExtractionRecord, error) {
	return uc.repo.List(ctx, filter.Normalize())
}

func (uc *ExtractionRecordsUseCase) Review(ctx context.Context, id string, corrections domain.FieldCorrections) (*domain.ExtractionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "review extraction", fmt.Errorf("id is required"))
	}
	if err := corrections.Validate(); err != nil {
		return nil, err
	}
	if err := uc.repo.SaveReview(ctx, id, corrections, uc.now()); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *ExtractionRecordsUseCase) ExportXLSX(ctx context.Context, filter domain.RecordFilter) ([]byte, error) {
	if uc.sheets == nil {
		return nil, fmt.Errorf("export: spreadsheet writer is not configured")
	}
	filter = filter.Normalize()
	if filter.Limit < domain.MaxRecordListLimit {
		filter.Limit = domain.MaxRecordListLimit
	}
	records, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list records for export: %w", err)
	}
	return uc.sheets.WriteExtractions(records)
}

func (uc *ExtractionRecordsUseCase) OpenImage(ctx context.Context, id string) (io.ReadCloser, string, error) {
	record, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if record.ImageKey == "" || uc.archive == nil {
		return nil, "", domain.WrapError(domain.ErrExtractionNotFound, "open image", fmt.Errorf("no archived image for id=%s", id))
	}
	rc, err := uc.archive.Open(ctx, record.ImageKey)
	if err != nil {
		return nil, "", fmt.Errorf("open archived image: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(record.ImageKey))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return rc, contentType, nil
}

func (uc *ExtractionRecordsUseCase) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "purge records", fmt.Errorf("age must be positive"))
	}
	// TODO: remove archived images of purged records from the image archive as well.
	deleted, err := uc.repo.DeleteOlderThan(ctx, uc.now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("purge records: %w", err)
	}
	return deleted, nil
}
