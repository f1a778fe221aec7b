package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"miniapp-server/internal/domain"
)

// Filters the inference backend implements. Unknown names are rejected
// before dispatch.
var Filters = []string{"cartoon_a", "cartoon_b"}

// Options configures the image client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Client calls the inference backend's image endpoints: prompt-guided
// editing and fixed filters.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs an image client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("image: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// Edit sends the source image and a prompt, returning the edited image.
func (c *Client) Edit(ctx context.Context, source []byte, filename, prompt string) ([]byte, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: source image is required", domain.ErrValidation)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}
	return c.postImage(ctx, "/image/generate", source, filename, map[string]string{"prompt": prompt}, nil)
}

// Filter applies one of the backend's named filters. debugStage optionally
// asks for an intermediate pipeline stage.
func (c *Client) Filter(ctx context.Context, source []byte, filename, filter, debugStage string) ([]byte, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("%w: source image is required", domain.ErrValidation)
	}
	if !validFilter(filter) {
		return nil, fmt.Errorf("%w: unknown filter %q", domain.ErrValidation, filter)
	}
	var query url.Values
	if debugStage != "" {
		query = url.Values{"debug_stage": {debugStage}}
	}
	return c.postImage(ctx, "/image/"+filter, source, filename, nil, query)
}

func validFilter(name string) bool {
	for _, f := range Filters {
		if name == f {
			return true
		}
	}
	return false
}

func (c *Client) postImage(ctx context.Context, path string, source []byte, filename string, fields map[string]string, query url.Values) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename == "" {
		filename = "upload.jpg"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("image: create form file: %w", err)
	}
	if _, err := part.Write(source); err != nil {
		return nil, fmt.Errorf("image: write form file: %w", err)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("image: encode form field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("image: finalize form: %w", err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("image: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Op: "image: " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("image: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}
