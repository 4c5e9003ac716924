// Package fetch retrieves source images from the messaging platform's
// content API by message reference. No retry lives at this layer; retry
// policy belongs to the job processor.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/sharadbhat/chartsage/internal/config"
)

// Sentinel errors for content-fetch failures.
var (
	ErrUnreachable = errors.New("content api unreachable")
	ErrNotFound    = errors.New("source content not found")
	ErrTimeout     = errors.New("content fetch timeout")
)

const maxImageBytes = 10 << 20 // platform caps photos well below this

// Content is a downloaded source image.
type Content struct {
	Bytes       []byte
	ContentType string
}

// Fetcher is the interface for retrieving source images.
type Fetcher interface {
	Fetch(ctx context.Context, sourceRef string) (Content, error)
}

// HTTPFetcher implements Fetcher against the platform's two-step content
// API: resolve the message reference to a download path, then fetch it.
type HTTPFetcher struct {
	baseURL  string
	botToken string
	client   *http.Client
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(cfg config.ContentConfig) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL:  cfg.BaseURL,
		botToken: cfg.BotToken,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, sourceRef string) (Content, error) {
	path, err := f.resolve(ctx, sourceRef)
	if err != nil {
		return Content{}, err
	}
	return f.download(ctx, path)
}

func (f *HTTPFetcher) resolve(ctx context.Context, sourceRef string) (string, error) {
	u := fmt.Sprintf("%s/bot%s/getFile?file_id=%s",
		f.baseURL, f.botToken, url.QueryEscape(sourceRef))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return "", fmt.Errorf("%w: reference %q (status %d)", ErrNotFound, sourceRef, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var out struct {
		OK     bool `json:"ok"`
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding resolve response: %w", err)
	}
	if !out.OK || out.Result.FilePath == "" {
		return "", fmt.Errorf("%w: reference %q not resolvable", ErrNotFound, sourceRef)
	}
	return out.Result.FilePath, nil
}

func (f *HTTPFetcher) download(ctx context.Context, filePath string) (Content, error) {
	u := fmt.Sprintf("%s/file/bot%s/%s", f.baseURL, f.botToken, filePath)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Content{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Content{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Content{}, fmt.Errorf("%w: file %q expired", ErrNotFound, filePath)
	}
	if resp.StatusCode != http.StatusOK {
		return Content{}, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return Content{}, fmt.Errorf("reading content body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return Content{Bytes: payload, ContentType: contentType}, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPFetcher implements Fetcher.
var _ Fetcher = (*HTTPFetcher)(nil)
