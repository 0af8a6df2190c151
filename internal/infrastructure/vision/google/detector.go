package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/resilience"
)

// DefaultAnnotationConfidence replaces annotations that carry no confidence.
const DefaultAnnotationConfidence = 80.0

type Options struct {
	APIKey string
	// ClientOptions are appended after the API key, mostly for tests.
	ClientOptions []option.ClientOption
	Executor      *resilience.Executor
}

// Detector reads raw text with the Cloud Vision TEXT_DETECTION feature.
type Detector struct {
	apiKey   string
	opts     []option.ClientOption
	executor *resilience.Executor
}

func New(opts Options) *Detector {
	return &Detector{
		apiKey:   strings.TrimSpace(opts.APIKey),
		opts:     opts.ClientOptions,
		executor: opts.Executor,
	}
}

func (d *Detector) Name() string { return "google" }

func (d *Detector) DetectText(ctx context.Context, img domain.ImageInput) (*domain.RawTextResult, error) {
	const operation = "vision annotate"
	if d.apiKey == "" {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("api key is not configured"))
	}
	if !img.HasData() {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("image bytes are required"))
	}

	svc, err := vision.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(d.apiKey)}, d.opts...)...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, fmt.Errorf("create vision service: %w", err))
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(img.Data)},
			Features: []*vision.Feature{{Type: "TEXT_DETECTION"}},
		}},
	}

	var resp *vision.BatchAnnotateImagesResponse
	call := func(callCtx context.Context) error {
		var callErr error
		resp, callErr = svc.Images.Annotate(req).Context(callCtx).Do()
		return callErr
	}
	if d.executor != nil {
		err = d.executor.Execute(ctx, "vision.annotate", call, classifyVisionError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapProviderError(operation, err)
	}

	if resp == nil || len(resp.Responses) == 0 {
		return &domain.RawTextResult{}, nil
	}
	first := resp.Responses[0]
	if first.Error != nil && first.Error.Code != 0 {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation,
			fmt.Errorf("vision error %d: %s", first.Error.Code, first.Error.Message))
	}
	return summarize(first.TextAnnotations), nil
}

// summarize turns annotations into one result. The first annotation carries the full text;
// confidences of all annotations are averaged, with missing ones replaced by the default.
func summarize(annotations []*vision.EntityAnnotation) *domain.RawTextResult {
	if len(annotations) == 0 || annotations[0] == nil {
		return &domain.RawTextResult{}
	}

	var sum float64
	var n int
	for _, a := range annotations {
		if a == nil {
			continue
		}
		sum += annotationConfidence(a.Confidence)
		n++
	}
	avg := sum / float64(n)
	if avg > domain.MaxConfidence {
		avg = domain.MaxConfidence
	}

	return &domain.RawTextResult{
		Text:       strings.TrimSpace(annotations[0].Description),
		Confidence: avg,
	}
}

// annotationConfidence maps the API's 0..1 score onto 0..100. Zero means the field was not set.
func annotationConfidence(v float64) float64 {
	switch {
	case v <= 0:
		return DefaultAnnotationConfidence
	case v <= 1:
		return v * 100
	default:
		return v
	}
}

func classifyVisionError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func wrapProviderError(operation string, err error) error {
	if classifyVisionError(err).Retryable {
		err = domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrProviderUnavailable, operation, err)
}
