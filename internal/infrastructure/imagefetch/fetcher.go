package imagefetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

const (
	DefaultMaxBytes = 20 << 20
	DefaultTimeout  = 20 * time.Second
)

type Options struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

// Fetcher downloads remote images and decodes inline payloads.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (domain.ImageInput, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "fetch image", errors.New("url is empty"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "fetch image", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return domain.ImageInput{}, domain.WrapError(domain.ErrTemporary, "fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ImageInput{}, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return domain.ImageInput{}, domain.WrapError(domain.ErrTemporary, "read image body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return domain.ImageInput{}, fmt.Errorf("fetch image: body exceeds %d bytes", f.maxBytes)
	}
	if len(data) == 0 {
		return domain.ImageInput{}, errors.New("fetch image: empty body")
	}

	return domain.ImageInput{
		URL:      url,
		Data:     data,
		MIMEType: pickMIME(resp.Header.Get("Content-Type"), data),
	}, nil
}

// Decode accepts raw base64 (standard or URL alphabet, padded or not) and data URLs.
func (f *Fetcher) Decode(payload string) (domain.ImageInput, error) {
	s := strings.TrimSpace(payload)
	var hint string
	if strings.HasPrefix(s, "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "decode image", errors.New("malformed data url"))
		}
		meta := s[len("data:"):idx]
		if semi := strings.IndexByte(meta, ';'); semi >= 0 {
			meta = meta[:semi]
		}
		hint = meta
		s = s[idx+1:]
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "decode image", errors.New("payload is empty"))
	}

	var data []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err = enc.DecodeString(s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "decode image", err)
	}
	if int64(len(data)) > f.maxBytes {
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "decode image", fmt.Errorf("image exceeds %d bytes", f.maxBytes))
	}
	if len(data) == 0 {
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "decode image", errors.New("payload is empty"))
	}

	return domain.ImageInput{Data: data, MIMEType: pickMIME(hint, data)}, nil
}

// pickMIME prefers an explicit image type and falls back to sniffing the bytes.
func pickMIME(hint string, data []byte) string {
	hint = strings.TrimSpace(hint)
	if semi := strings.IndexByte(hint, ';'); semi >= 0 {
		hint = strings.TrimSpace(hint[:semi])
	}
	if strings.HasPrefix(strings.ToLower(hint), "image/") {
		return strings.ToLower(hint)
	}
	return http.DetectContentType(data)
}
