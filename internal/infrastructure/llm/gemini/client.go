package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/llm/structured"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/resilience"
)

const DefaultModel = "gemini-1.5-flash"

type Options struct {
	APIKey   string
	Model    string
	Fetcher  ports.ImageFetcher
	Executor *resilience.Executor
}

// Client is a StructuredExtractor backed by the Gemini generative API. Gemini needs the
// image bytes, so URL-only inputs are downloaded through the configured fetcher first.
type Client struct {
	apiKey   string
	model    string
	fetcher  ports.ImageFetcher
	executor *resilience.Executor

	generate func(ctx context.Context, parts []genai.Part) (*genai.GenerateContentResponse, error)
}

func New(opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:   strings.TrimSpace(opts.APIKey),
		model:    model,
		fetcher:  opts.Fetcher,
		executor: opts.Executor,
	}
	c.generate = c.generateContent
	return c
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) ExtractStructured(ctx context.Context, img domain.ImageInput) (*domain.StructuredExtraction, error) {
	const operation = "gemini generate content"
	if c.apiKey == "" {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("api key is not configured"))
	}

	if !img.HasData() {
		if c.fetcher == nil || strings.TrimSpace(img.URL) == "" {
			return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("image bytes are not available"))
		}
		fetched, err := c.fetcher.Fetch(ctx, img.URL)
		if err != nil {
			return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, fmt.Errorf("fetch image: %w", err))
		}
		img = fetched
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(img.Data)
	}
	parts := []genai.Part{
		genai.Text(structured.UserPrompt),
		&genai.Blob{MIMEType: mimeType, Data: img.Data},
	}

	var resp *genai.GenerateContentResponse
	call := func(callCtx context.Context) error {
		var err error
		resp, err = c.generate(callCtx, parts)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "gemini.generate_content", call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapProviderError(operation, err)
	}

	text := firstText(resp)
	if text == "" {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, structured.ErrEmptyResponse)
	}
	result, err := structured.Parse(text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, err)
	}
	return result, nil
}

func (c *Client) generateContent(ctx context.Context, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(structured.SystemPrompt())},
	}
	return m.GenerateContent(ctx, parts...)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok && strings.TrimSpace(string(t)) != "" {
				return string(t)
			}
		}
	}
	return ""
}
