package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"miniapp-server/internal/domain"
)

// Options configures the delivery client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Client fetches unlocked videos and dispatches them by email. Both paths
// are only callable once payment is verified; callers re-check that before
// invoking, and the request carries the verified flag for the backend's own
// check.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a delivery client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("delivery: base url is required")
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

// Download fetches the asset for a verified video id along with its
// content type. The call is idempotent server-side; repeating it returns
// the same bytes.
func (c *Client) Download(ctx context.Context, videoID string, verified bool) ([]byte, string, error) {
	if videoID == "" {
		return nil, "", fmt.Errorf("%w: video id is required", domain.ErrValidation)
	}
	form := url.Values{
		"video_id":         {videoID},
		"payment_verified": {strconv.FormatBool(verified)},
	}
	endpoint := c.baseURL + "/video/download"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", fmt.Errorf("delivery: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", &domain.NetworkError{Op: "delivery: download", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("delivery: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return raw, mime, nil
}

// SendEmail submits the video and its originating prompt to the send
// endpoint for dispatch to the given address.
func (c *Client) SendEmail(ctx context.Context, email string, videoData []byte, prompt string) error {
	if !validEmail(email) {
		return fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	if len(videoData) == 0 {
		return fmt.Errorf("%w: video payload is required", domain.ErrValidation)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("email", email); err != nil {
		return fmt.Errorf("delivery: encode email field: %w", err)
	}
	if err := writer.WriteField("prompt", prompt); err != nil {
		return fmt.Errorf("delivery: encode prompt field: %w", err)
	}
	part, err := writer.CreateFormFile("video", "video.mp4")
	if err != nil {
		return fmt.Errorf("delivery: create video part: %w", err)
	}
	if _, err := part.Write(videoData); err != nil {
		return fmt.Errorf("delivery: write video part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("delivery: finalize form: %w", err)
	}

	endpoint := c.baseURL + "/video/send-email"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("delivery: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &domain.NetworkError{Op: "delivery: send email", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("delivery: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
