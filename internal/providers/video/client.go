package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"miniapp-server/internal/domain"
	"miniapp-server/internal/infra"
)

// VideoIDHeader carries the server-assigned identifier for a generated
// video alongside the binary response body.
const VideoIDHeader = "X-Video-Id"

// Options configures the generation client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client calls the inference backend's text-to-video endpoint. It does not
// interpret backend errors beyond passing status and body text through.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected
// dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("video: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 3 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// Generate validates the request, posts it as multipart form fields, and
// returns the binary video plus its identifier. Invalid parameter values
// never reach the wire.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fields := map[string]string{
		"prompt":              req.Prompt,
		"num_frames":          strconv.Itoa(req.NumFrames),
		"num_inference_steps": strconv.Itoa(req.InferenceSteps),
	}
	if req.Seed > 0 {
		fields["seed"] = strconv.FormatInt(req.Seed, 10)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("video: encode form field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("video: finalize form: %w", err)
	}

	endpoint := c.baseURL + "/video/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("video: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Op: "video: generate", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("video: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	videoID := strings.TrimSpace(resp.Header.Get(VideoIDHeader))
	if videoID == "" {
		return nil, fmt.Errorf("video: backend returned no %s header", VideoIDHeader)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}

	c.logger.Debug().
		Str("video_id", videoID).
		Int("bytes", len(raw)).
		Msg("video: generated")
	return &domain.GenerationResult{VideoID: videoID, Data: raw, MIME: mime}, nil
}
