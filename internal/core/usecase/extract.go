package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
)

const (
	OutcomeSuccess     = "success"
	OutcomeEmpty       = "empty"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomePanic       = "panic"
)

type ExtractItemUseCase struct {
	structured ports.StructuredExtractor
	detector   ports.TextDetector
	fetcher    ports.ImageFetcher
	events     ports.EventPublisher
	archive    ports.ImageArchive
	observer   ports.ProviderObserver
	limits     domain.ExtractionLimits
}

// NewExtractItemUseCase wires the fusion engine. events, archive and observer may be nil.
func NewExtractItemUseCase(
	structured ports.StructuredExtractor,
	detector ports.TextDetector,
	fetcher ports.ImageFetcher,
	events ports.EventPublisher,
	archive ports.ImageArchive,
	observer ports.ProviderObserver,
	limits domain.ExtractionLimits,
) *ExtractItemUseCase {
	if limits.StructuredTimeout <= 0 {
		limits.StructuredTimeout = 30 * time.Second
	}
	if limits.TextTimeout <= 0 {
		limits.TextTimeout = 15 * time.Second
	}
	if limits.AutoApplyThreshold <= 0 {
		limits.AutoApplyThreshold = domain.DefaultAutoApplyThreshold
	}

	return &ExtractItemUseCase{
		structured: structured,
		detector:   detector,
		fetcher:    fetcher,
		events:     events,
		archive:    archive,
		observer:   observer,
		limits:     limits,
	}
}

func (uc *ExtractItemUseCase) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.Extraction, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	img, err := uc.resolveRequest(req)
	if err != nil {
		return nil, err
	}

	var (
		structured *domain.StructuredExtraction
		detected   *domain.RawTextResult
		textImage  domain.ImageInput
	)

	var g errgroup.Group
	g.Go(func() error {
		structured = uc.callStructured(ctx, req.RequestID, img)
		return nil
	})
	g.Go(func() error {
		detected, textImage = uc.callTextDetector(ctx, req.RequestID, img)
		return nil
	})
	_ = g.Wait()

	result := mergeResults(mergeInput{
		structured:     structured,
		text:           detected,
		structuredName: providerName(uc.structured),
		textName:       providerName(uc.detector),
	})
	result.Metadata.ProcessingTimeMS = time.Since(start).Milliseconds()

	extraction := &domain.Extraction{
		ID:     uuid.NewString(),
		Result: result,
	}

	needsReview := result.NeedsReview(uc.limits.AutoApplyThreshold)
	if uc.observer != nil {
		uc.observer.ObserveExtraction(result, needsReview)
	}
	slog.Info("extraction_completed",
		"extraction_id", extraction.ID,
		"request_id", req.RequestID,
		"provider", string(result.Provider),
		"confidence", result.Confidence,
		"needs_review", needsReview,
		"processing_time_ms", result.Metadata.ProcessingTimeMS,
	)

	uc.archiveImage(ctx, extraction, textImage)
	uc.publish(ctx, req, extraction)

	return extraction, nil
}

func (uc *ExtractItemUseCase) resolveRequest(req domain.ExtractionRequest) (domain.ImageInput, error) {
	if url := strings.TrimSpace(req.ImageURL); url != "" {
		return domain.ImageInput{URL: url}, nil
	}
	if uc.fetcher == nil {
		return domain.ImageInput{}, fmt.Errorf("extract: image decoder is not configured")
	}
	img, err := uc.fetcher.Decode(req.ImageBase64)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return domain.ImageInput{}, err
		}
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "decode imageBase64", err)
	}
	return img, nil
}

func (uc *ExtractItemUseCase) callStructured(ctx context.Context, requestID string, img domain.ImageInput) *domain.StructuredExtraction {
	if uc.structured == nil {
		return nil
	}
	return runProvider(ctx, uc, uc.structured.Name(), requestID, uc.limits.StructuredTimeout,
		func(callCtx context.Context) (*domain.StructuredExtraction, error) {
			return uc.structured.ExtractStructured(callCtx, img)
		},
		func(res *domain.StructuredExtraction) bool {
			return res.ExtractedText == "" && res.Title == "" && res.Brand == "" && res.Model == ""
		},
	)
}

// callTextDetector downloads URL-only images inside the provider timeout so a failed
// download only affects this branch. It returns the image bytes it worked with.
func (uc *ExtractItemUseCase) callTextDetector(ctx context.Context, requestID string, img domain.ImageInput) (*domain.RawTextResult, domain.ImageInput) {
	if uc.detector == nil {
		return nil, img
	}
	resolved := img
	res := runProvider(ctx, uc, uc.detector.Name(), requestID, uc.limits.TextTimeout,
		func(callCtx context.Context) (*domain.RawTextResult, error) {
			if !resolved.HasData() {
				if uc.fetcher == nil {
					return nil, domain.WrapError(domain.ErrProviderUnavailable, "fetch image", errors.New("image fetcher is not configured"))
				}
				fetched, err := uc.fetcher.Fetch(callCtx, resolved.URL)
				if err != nil {
					return nil, fmt.Errorf("fetch image: %w", err)
				}
				resolved = fetched
			}
			return uc.detector.DetectText(callCtx, resolved)
		},
		func(res *domain.RawTextResult) bool {
			return res.Text == ""
		},
	)
	return res, resolved
}

// runProvider isolates one provider call: errors, timeouts and panics become nil.
func runProvider[T any](
	ctx context.Context,
	uc *ExtractItemUseCase,
	provider, requestID string,
	timeout time.Duration,
	call func(context.Context) (*T, error),
	isEmpty func(*T) bool,
) (out *T) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("provider_call_panic", "provider", provider, "request_id", requestID, "panic", fmt.Sprint(r))
			uc.observeCall(provider, OutcomePanic, time.Since(start))
			out = nil
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := call(callCtx)
	if err == nil && res == nil {
		err = domain.WrapError(domain.ErrProviderUnavailable, provider, errors.New("provider returned no result"))
	}
	if err != nil {
		outcome := classifyProviderError(err)
		slog.Warn("provider_call_failed",
			"provider", provider,
			"request_id", requestID,
			"outcome", outcome,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			"error", err,
		)
		uc.observeCall(provider, outcome, time.Since(start))
		return nil
	}

	outcome := OutcomeSuccess
	if isEmpty(res) {
		outcome = OutcomeEmpty
	}
	uc.observeCall(provider, outcome, time.Since(start))
	return res
}

func classifyProviderError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case domain.IsKind(err, domain.ErrProviderUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}

func (uc *ExtractItemUseCase) observeCall(provider, outcome string, d time.Duration) {
	if uc.observer != nil {
		uc.observer.ObserveProviderCall(provider, outcome, d)
	}
}

func (uc *ExtractItemUseCase) archiveImage(ctx context.Context, extraction *domain.Extraction, img domain.ImageInput) {
	if uc.archive == nil || !img.HasData() {
		return
	}
	key := extraction.ID + imageExtension(img.MIMEType)
	if err := uc.archive.Save(ctx, key, bytes.NewReader(img.Data)); err != nil {
		slog.Warn("image_archive_failed", "extraction_id", extraction.ID, "error", err)
		return
	}
	extraction.ImageKey = key
}

func (uc *ExtractItemUseCase) publish(ctx context.Context, req domain.ExtractionRequest, extraction *domain.Extraction) {
	if uc.events == nil {
		return
	}
	event := domain.ExtractionCompletedEvent{
		ExtractionID: extraction.ID,
		RequestID:    req.RequestID,
		ImageRef:     req.ImageRef(),
		ImageKey:     extraction.ImageKey,
		Result:       extraction.Result,
		CompletedAt:  time.Now().UTC(),
	}
	if err := uc.events.PublishExtractionCompleted(ctx, event); err != nil {
		slog.Warn("extraction_event_publish_failed", "extraction_id", extraction.ID, "error", err)
	}
}

func providerName(p interface{ Name() string }) string {
	if p == nil {
		return ""
	}
	return p.Name()
}

func imageExtension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	default:
		return ".bin"
	}
}
