package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/option"

	"github.com/craigoj/homestead-snap-report-sub000/internal/config"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/usecase"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/export/xlsx"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/imagefetch"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/llm/gemini"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/llm/openai"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/queue/nats"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/repository/postgres"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/resilience"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/storage/localfs"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/vision/google"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     *nats.Queue
	Extractor *usecase.ExtractItemUseCase
	Records   *usecase.ExtractionRecordsUseCase

	closeFn func()
}

type Options struct {
	// Metrics receives provider outcomes and breaker transitions. Nil disables them.
	Metrics *metrics.HTTPServerMetrics
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewExtractionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	archive, err := localfs.New(cfg.ImageArchivePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init image archive: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	fetcher := newImageFetcher(cfg)
	providerExecutor := resilience.NewExecutor(providerConfig(cfg, opts.Metrics))
	structured, err := newStructuredExtractor(cfg, fetcher, providerExecutor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}
	detector := newTextDetector(cfg, providerExecutor)

	var observer ports.ProviderObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	extractor := usecase.NewExtractItemUseCase(structured, detector, fetcher, queue, archive, observer, domain.ExtractionLimits{
		StructuredTimeout:  time.Duration(cfg.StructuredTimeoutSeconds) * time.Second,
		TextTimeout:        time.Duration(cfg.TextTimeoutSeconds) * time.Second,
		AutoApplyThreshold: cfg.AutoApplyThreshold,
	})
	records := usecase.NewExtractionRecordsUseCase(repo, archive, xlsx.NewWriter(), cfg.AutoApplyThreshold)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Extractor: extractor,
		Records:   records,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func providerConfig(cfg config.Config, m *metrics.HTTPServerMetrics) resilience.Config {
	out := resilience.ProviderConfig()
	out.BreakerEnabled = cfg.ProviderBreakerEnabled
	if m != nil {
		out.OnBreakerStateChange = m.RecordBreakerState
	}
	return out
}

func newImageFetcher(cfg config.Config) *imagefetch.Fetcher {
	timeout := time.Duration(cfg.ImageFetchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = imagefetch.DefaultTimeout
	}
	return imagefetch.New(imagefetch.Options{
		HTTPClient: &http.Client{Timeout: timeout},
		MaxBytes:   int64(cfg.ImageMaxBytes),
	})
}

func newStructuredExtractor(cfg config.Config, fetcher ports.ImageFetcher, executor *resilience.Executor) (ports.StructuredExtractor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StructuredProvider)) {
	case "", "openai":
		return openai.New(openai.Options{
			BaseURL:     cfg.OpenAIBaseURL,
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			ImageDetail: cfg.OpenAIImageDetail,
			Timeout:     time.Duration(cfg.StructuredTimeoutSeconds) * time.Second,
			Executor:    executor,
		}), nil
	case "gemini":
		return gemini.New(gemini.Options{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			Fetcher:  fetcher,
			Executor: executor,
		}), nil
	default:
		return nil, fmt.Errorf("unknown structured provider %q", cfg.StructuredProvider)
	}
}

func newTextDetector(cfg config.Config, executor *resilience.Executor) *google.Detector {
	var clientOpts []option.ClientOption
	if endpoint := strings.TrimSpace(cfg.VisionEndpoint); endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint))
	}
	return google.New(google.Options{
		APIKey:        cfg.VisionAPIKey,
		ClientOptions: clientOpts,
		Executor:      executor,
	})
}
