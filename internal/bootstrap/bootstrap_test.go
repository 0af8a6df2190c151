package bootstrap

import (
	"testing"

	"github.com/craigoj/homestead-snap-report-sub000/internal/config"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/imagefetch"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/resilience"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/metrics"
)

func TestNewStructuredExtractorSelectsProvider(t *testing.T) {
	fetcher := imagefetch.New(imagefetch.Options{})
	executor := resilience.NewExecutor(resilience.ProviderConfig())

	cases := map[string]string{
		"":       "openai",
		"openai": "openai",
		"Gemini": "gemini",
	}
	for provider, want := range cases {
		extractor, err := newStructuredExtractor(config.Config{StructuredProvider: provider}, fetcher, executor)
		if err != nil {
			t.Fatalf("newStructuredExtractor(%q) error = %v", provider, err)
		}
		if got := extractor.Name(); got != want {
			t.Fatalf("newStructuredExtractor(%q) = %s, want %s", provider, got, want)
		}
	}

	if _, err := newStructuredExtractor(config.Config{StructuredProvider: "llava"}, fetcher, executor); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestProviderConfigHonoursBreakerFlag(t *testing.T) {
	cfg := providerConfig(config.Config{ProviderBreakerEnabled: false}, nil)
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.RetryMaxAttempts != 1 {
		t.Fatalf("expected single attempt, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.OnBreakerStateChange != nil {
		t.Fatalf("expected no hook without metrics")
	}

	withMetrics := providerConfig(config.Config{ProviderBreakerEnabled: true}, metrics.NewHTTPServerMetrics("api"))
	if !withMetrics.BreakerEnabled || withMetrics.OnBreakerStateChange == nil {
		t.Fatalf("expected breaker hook wired to metrics")
	}
}

func TestNewTextDetector(t *testing.T) {
	detector := newTextDetector(config.Config{VisionEndpoint: "http://localhost:9999/"}, nil)
	if detector.Name() != "google" {
		t.Fatalf("unexpected detector %s", detector.Name())
	}
}
