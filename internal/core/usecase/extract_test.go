package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

type structuredFake struct {
	res   *domain.StructuredExtraction
	err   error
	delay time.Duration
	panic bool

	calls int
	got   domain.ImageInput
}

func (f *structuredFake) Name() string { return "openai" }

func (f *structuredFake) ExtractStructured(ctx context.Context, img domain.ImageInput) (*domain.StructuredExtraction, error) {
	f.calls++
	f.got = img
	if f.panic {
		panic("structured provider exploded")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.res, f.err
}

type detectorFake struct {
	res   *domain.RawTextResult
	err   error
	delay time.Duration
	panic bool

	calls int
	got   domain.ImageInput
}

func (f *detectorFake) Name() string { return "google" }

func (f *detectorFake) DetectText(ctx context.Context, img domain.ImageInput) (*domain.RawTextResult, error) {
	f.calls++
	f.got = img
	if f.panic {
		panic("detector exploded")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.res, f.err
}

type fetcherFake struct {
	fetchErr   error
	fetchCalls int
}

func (f *fetcherFake) Fetch(_ context.Context, url string) (domain.ImageInput, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return domain.ImageInput{}, f.fetchErr
	}
	return domain.ImageInput{URL: url, Data: []byte("fetched-bytes"), MIMEType: "image/jpeg"}, nil
}

func (f *fetcherFake) Decode(payload string) (domain.ImageInput, error) {
	if payload == "not-base64!" {
		return domain.ImageInput{}, errors.New("illegal base64 data")
	}
	return domain.ImageInput{Data: []byte("decoded:" + payload), MIMEType: "image/png"}, nil
}

type publisherFake struct {
	events []domain.ExtractionCompletedEvent
	err    error
}

func (f *publisherFake) PublishExtractionCompleted(_ context.Context, event domain.ExtractionCompletedEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type archiveFake struct {
	saved map[string]string
	err   error
}

func (f *archiveFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *archiveFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type observerFake struct {
	mu       sync.Mutex
	outcomes map[string]string
	results  int
}

func (f *observerFake) ObserveProviderCall(provider, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = map[string]string{}
	}
	f.outcomes[provider] = outcome
}

func (f *observerFake) ObserveExtraction(domain.FusedResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results++
}

func newExtractUC(a *structuredFake, b *detectorFake, fetcher *fetcherFake) *ExtractItemUseCase {
	return NewExtractItemUseCase(a, b, fetcher, nil, nil, nil, domain.ExtractionLimits{
		StructuredTimeout: time.Second,
		TextTimeout:       time.Second,
	})
}

func TestExtractRejectsMissingImageWithoutCallingProviders(t *testing.T) {
	a := &structuredFake{res: sampleStructured(90, "x")}
	b := &detectorFake{res: &domain.RawTextResult{Text: "x", Confidence: 90}}
	uc := newExtractUC(a, b, &fetcherFake{})

	for _, req := range []domain.ExtractionRequest{
		{},
		{ImageURL: "", ImageBase64: ""},
		{ImageURL: "   "},
	} {
		_, err := uc.Extract(context.Background(), req)
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", req, err)
		}
	}
	if a.calls != 0 || b.calls != 0 {
		t.Fatalf("expected no provider calls, got %d/%d", a.calls, b.calls)
	}
}

func TestExtractRejectsBothImageFields(t *testing.T) {
	uc := newExtractUC(&structuredFake{}, &detectorFake{}, &fetcherFake{})

	_, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageURL: "https://img/x.jpg", ImageBase64: "AAAA"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractRejectsUndecodableInlineImage(t *testing.T) {
	uc := newExtractUC(&structuredFake{}, &detectorFake{}, &fetcherFake{})

	_, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "not-base64!"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractStructuredOnlyWhenDetectorFails(t *testing.T) {
	a := &structuredFake{res: sampleStructured(86, "DEWALT DCD777")}
	b := &detectorFake{err: domain.WrapError(domain.ErrProviderUnavailable, "vision", errors.New("missing api key"))}
	uc := newExtractUC(a, b, &fetcherFake{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "AAAA"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	got := out.Result
	if got.Provider != domain.ProviderStructured {
		t.Fatalf("expected openai-style, got %q", got.Provider)
	}
	if got.Metadata.StructureConfidence != 86 || got.Metadata.TextConfidence != 86 {
		t.Fatalf("unexpected sub-confidences: %+v", got.Metadata)
	}
	if got.Brand != "DeWalt" || got.SerialNumber != "SN-4471" {
		t.Fatalf("expected structured fields to pass through, got %+v", got.StructuredExtraction)
	}
	if out.ID == "" {
		t.Fatalf("expected extraction id")
	}
}

func TestExtractTextOnlyWhenStructuredResponseIsMalformed(t *testing.T) {
	a := &structuredFake{err: errors.New("parse structured json: invalid character '`'")}
	b := &detectorFake{res: &domain.RawTextResult{Text: "LG OLED55", Confidence: 75}}
	uc := newExtractUC(a, b, &fetcherFake{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "AAAA"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	got := out.Result
	if got.Provider != domain.ProviderText {
		t.Fatalf("expected google-style, got %q", got.Provider)
	}
	if got.Metadata.StructureConfidence != 0 || got.Brand != "" || got.EstimatedValue != 0 {
		t.Fatalf("unexpected structured data: %+v", got)
	}
}

func TestExtractBothFailReturnsDefaultResult(t *testing.T) {
	a := &structuredFake{err: errors.New("boom")}
	b := &detectorFake{err: errors.New("boom")}
	uc := newExtractUC(a, b, &fetcherFake{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "AAAA"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Result.Provider != domain.ProviderNone || out.Result.Confidence != 0 {
		t.Fatalf("expected empty default, got %+v", out.Result)
	}
}

func TestExtractHybridScenario(t *testing.T) {
	a := &structuredFake{res: sampleStructured(90, "Sony Bravia")}
	b := &detectorFake{res: &domain.RawTextResult{Text: "SONY BRAVIA KD-55X80K", Confidence: 70}}
	uc := newExtractUC(a, b, &fetcherFake{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "AAAA"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Result.Provider != domain.ProviderHybrid || out.Result.Confidence != 95 {
		t.Fatalf("expected hybrid 95, got %q %v", out.Result.Provider, out.Result.Confidence)
	}
	if out.Result.Metadata.ProcessingTimeMS < 0 {
		t.Fatalf("expected non-negative processing time")
	}
}

func TestExtractTimedOutProviderIsTreatedAsMissing(t *testing.T) {
	a := &structuredFake{res: sampleStructured(90, "slow"), delay: 500 * time.Millisecond}
	b := &detectorFake{res: &domain.RawTextResult{Text: "fast text", Confidence: 66}}
	observer := &observerFake{}
	uc := NewExtractItemUseCase(a, b, &fetcherFake{}, nil, nil, observer, domain.ExtractionLimits{
		StructuredTimeout: 20 * time.Millisecond,
		TextTimeout:       time.Second,
	})

	start := time.Now()
	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "AAAA"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 500*time.Millisecond {
		t.Fatalf("expected timeout to bound latency, took %s", elapsed)
	}
	if out.Result.Provider != domain.ProviderText {
		t.Fatalf("expected google-style after timeout, got %q", out.Result.Provider)
	}
	if observer.outcomes["openai"] != OutcomeTimeout {
		t.Fatalf("expected timeout outcome, got %q", observer.outcomes["openai"])
	}
	if observer.outcomes["google"] != OutcomeSuccess {
		t.Fatalf("expected success outcome, got %q", observer.outcomes["google"])
	}
	if observer.results != 1 {
		t.Fatalf("expected one extraction observation, got %d", observer.results)
	}
}

func TestExtractRecoversFromProviderPanic(t *testing.T) {
	a := &structuredFake{res: sampleStructured(77, "Bose QC45")}
	b := &detectorFake{panic: true}
	uc := newExtractUC(a, b, &fetcherFake{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "AAAA"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Result.Provider != domain.ProviderStructured {
		t.Fatalf("expected openai-style, got %q", out.Result.Provider)
	}
}

func TestExtractURLIsDownloadedOnlyForTextDetection(t *testing.T) {
	a := &structuredFake{res: sampleStructured(80, "Canon EOS")}
	b := &detectorFake{res: &domain.RawTextResult{Text: "Canon EOS R6", Confidence: 90}}
	fetcher := &fetcherFake{}
	uc := newExtractUC(a, b, fetcher)

	_, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageURL: "https://cdn.example.com/item.jpg"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fetcher.fetchCalls != 1 {
		t.Fatalf("expected one download, got %d", fetcher.fetchCalls)
	}
	if a.got.URL != "https://cdn.example.com/item.jpg" || a.got.HasData() {
		t.Fatalf("expected structured provider to receive the URL only, got %+v", a.got)
	}
	if string(b.got.Data) != "fetched-bytes" {
		t.Fatalf("expected detector to receive downloaded bytes, got %q", string(b.got.Data))
	}
}

func TestExtractDownloadFailureOnlyAffectsTextDetection(t *testing.T) {
	a := &structuredFake{res: sampleStructured(84, "Dyson V11")}
	b := &detectorFake{res: &domain.RawTextResult{Text: "unused", Confidence: 90}}
	fetcher := &fetcherFake{fetchErr: errors.New("download status 404")}
	uc := newExtractUC(a, b, fetcher)

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageURL: "https://cdn.example.com/missing.jpg"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if b.calls != 0 {
		t.Fatalf("expected detector not to be called without bytes")
	}
	if out.Result.Provider != domain.ProviderStructured {
		t.Fatalf("expected openai-style, got %q", out.Result.Provider)
	}
}

func TestExtractArchivesInlineImageAndPublishesEvent(t *testing.T) {
	a := &structuredFake{res: sampleStructured(90, "Apple iPad")}
	b := &detectorFake{res: &domain.RawTextResult{Text: "Apple iPad Air", Confidence: 80}}
	publisher := &publisherFake{}
	archive := &archiveFake{}
	uc := NewExtractItemUseCase(a, b, &fetcherFake{}, publisher, archive, nil, domain.ExtractionLimits{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "iVBOR", RequestID: "req-1"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.ImageKey != out.ID+".png" {
		t.Fatalf("expected archived key %s.png, got %q", out.ID, out.ImageKey)
	}
	if archive.saved[out.ImageKey] != "decoded:iVBOR" {
		t.Fatalf("unexpected archived bytes: %v", archive.saved)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.ExtractionID != out.ID || event.RequestID != "req-1" || event.ImageRef != "inline" || event.ImageKey != out.ImageKey {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Result.Provider != domain.ProviderHybrid {
		t.Fatalf("expected hybrid result in event, got %q", event.Result.Provider)
	}
}

func TestExtractIgnoresPublishAndArchiveFailures(t *testing.T) {
	a := &structuredFake{res: sampleStructured(90, "Apple iPad")}
	uc := NewExtractItemUseCase(a, nil, &fetcherFake{}, &publisherFake{err: errors.New("nats down")}, &archiveFake{err: errors.New("disk full")}, nil, domain.ExtractionLimits{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageBase64: "AAAA"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.ImageKey != "" {
		t.Fatalf("expected no image key after archive failure, got %q", out.ImageKey)
	}
}

func TestExtractWithoutConfiguredProvidersReturnsNone(t *testing.T) {
	uc := NewExtractItemUseCase(nil, nil, &fetcherFake{}, nil, nil, nil, domain.ExtractionLimits{})

	out, err := uc.Extract(context.Background(), domain.ExtractionRequest{ImageURL: "https://img/x.jpg"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Result.Provider != domain.ProviderNone {
		t.Fatalf("expected none, got %q", out.Result.Provider)
	}
}

func TestExtractDoesNotMutateRequest(t *testing.T) {
	uc := newExtractUC(&structuredFake{res: sampleStructured(90, "x")}, &detectorFake{}, &fetcherFake{})
	req := domain.ExtractionRequest{ImageURL: " https://img/x.jpg "}
	before := req

	if _, err := uc.Extract(context.Background(), req); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if req != before || !strings.HasPrefix(req.ImageURL, " ") {
		t.Fatalf("request mutated: %+v", req)
	}
}
