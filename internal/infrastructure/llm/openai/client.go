package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/llm/structured"
	"github.com/craigoj/homestead-snap-report-sub000/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	ImageDetail string
	Timeout     time.Duration
	Executor    *resilience.Executor
}

// Client extracts structured item fields with the chat completions vision API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	imageDetail string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	detail := strings.TrimSpace(opts.ImageDetail)
	if detail == "" {
		detail = "high"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(opts.APIKey),
		model:       model,
		imageDetail: detail,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    opts.Executor,
	}
}

func (c *Client) Name() string { return "openai" }

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) ExtractStructured(ctx context.Context, img domain.ImageInput) (*domain.StructuredExtraction, error) {
	const operation = "openai chat completions"
	if c.apiKey == "" {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("api key is not configured"))
	}

	ref := imageReference(img)
	if ref == "" {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("image has neither url nor data"))
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: structured.SystemPrompt()},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: structured.UserPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: ref, Detail: c.imageDetail}},
			}},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		response = chatResponse{}
		return c.postJSON(callCtx, "/chat/completions", reqBody, &response, "chat completions")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai.chat_completions", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapProviderError(operation, err)
	}

	if len(response.Choices) == 0 {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, errors.New("empty choices"))
	}
	result, err := structured.Parse(response.Choices[0].Message.Content)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, operation, err)
	}
	return result, nil
}

// imageReference prefers inline bytes as a data URL and falls back to the remote URL.
func imageReference(img domain.ImageInput) string {
	if img.HasData() {
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = http.DetectContentType(img.Data)
		}
		return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img.Data))
	}
	return strings.TrimSpace(img.URL)
}
