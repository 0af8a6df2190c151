package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/craigoj/homestead-snap-report-sub000/internal/config"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

type fakeExtractor struct {
	lastReq domain.ExtractionRequest
	result  *domain.Extraction
	err     error
	panics  bool
}

func (f *fakeExtractor) Extract(_ context.Context, req domain.ExtractionRequest) (*domain.Extraction, error) {
	f.lastReq = req
	if f.panics {
		panic("fusion exploded")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.Extraction{
		ID: "ext-1",
		Result: domain.FusedResult{
			StructuredExtraction: domain.StructuredExtraction{
				Title:      "Cordless Drill",
				Brand:      "DeWalt",
				Category:   domain.CategoryTools,
				Confidence: 92,
			},
			Provider: domain.ProviderHybrid,
			RawText:  "DEWALT DCD771",
		},
	}, nil
}

type fakeRecords struct {
	records     map[string]domain.ExtractionRecord
	lastFilter  domain.RecordFilter
	lastReview  domain.FieldCorrections
	workbook    []byte
	images      map[string][]byte
	listErr     error
	reviewedIDs []string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		records: map[string]domain.ExtractionRecord{
			"ext-1": {
				ID:           "ext-1",
				ImageRef:     "inline",
				ImageKey:     "ext-1.jpg",
				ReviewStatus: domain.ReviewPending,
			},
		},
		workbook: []byte("PK-workbook"),
		images:   map[string][]byte{"ext-1": []byte("jpeg-bytes")},
	}
}

func (f *fakeRecords) GetByID(_ context.Context, id string) (*domain.ExtractionRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrExtractionNotFound, "get extraction", io.EOF)
	}
	return &rec, nil
}

func (f *fakeRecords) List(_ context.Context, filter domain.RecordFilter) ([]domain.ExtractionRecord, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.ExtractionRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRecords) Review(_ context.Context, id string, corrections domain.FieldCorrections) (*domain.ExtractionRecord, error) {
	if err := corrections.Validate(); err != nil {
		return nil, err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrExtractionNotFound, "review extraction", io.EOF)
	}
	f.lastReview = corrections
	f.reviewedIDs = append(f.reviewedIDs, id)
	rec.Corrections = &corrections
	rec.ReviewStatus = domain.ReviewReviewed
	f.records[id] = rec
	return &rec, nil
}

func (f *fakeRecords) ExportXLSX(_ context.Context, filter domain.RecordFilter) ([]byte, error) {
	f.lastFilter = filter
	return f.workbook, nil
}

func (f *fakeRecords) OpenImage(_ context.Context, id string) (io.ReadCloser, string, error) {
	data, ok := f.images[id]
	if !ok {
		return nil, "", domain.WrapError(domain.ErrExtractionNotFound, "open image", io.EOF)
	}
	return io.NopCloser(bytes.NewReader(data)), "image/jpeg", nil
}

func newTestHandler(cfg config.Config, opts ...Option) http.Handler {
	records := newFakeRecords()
	return NewRouter(cfg, &fakeExtractor{}, records, records, records, records, opts...).Handler()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
