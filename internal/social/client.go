package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"miniapp-server/internal/domain"
)

const maxCastText = 320

// Options configures the cast publisher.
type Options struct {
	BaseURL        string
	APIKey         string
	SignerUUID     string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Client publishes casts with the unlocked video embedded. Publishing is a
// post-delivery action; callers gate it on verified payment.
type Client struct {
	baseURL    string
	apiKey     string
	signerUUID string
	httpClient *http.Client
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("social: base url is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("social: api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		signerUUID: opts.SignerUUID,
		httpClient: httpClient,
	}, nil
}

type castEmbed struct {
	URL string `json:"url"`
}

type castRequest struct {
	SignerUUID string      `json:"signer_uuid,omitempty"`
	Text       string      `json:"text"`
	Embeds     []castEmbed `json:"embeds,omitempty"`
}

type castResponse struct {
	Cast struct {
		Hash string `json:"hash"`
	} `json:"cast"`
}

// Cast publishes text with the given embed URLs and returns the cast hash.
func (c *Client) Cast(ctx context.Context, text string, embedURLs ...string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: cast text is required", domain.ErrValidation)
	}
	if len([]rune(text)) > maxCastText {
		return "", fmt.Errorf("%w: cast text exceeds %d characters", domain.ErrValidation, maxCastText)
	}

	req := castRequest{SignerUUID: c.signerUUID, Text: text}
	for _, u := range embedURLs {
		if u != "" {
			req.Embeds = append(req.Embeds, castEmbed{URL: u})
		}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("social: encode cast: %w", err)
	}

	endpoint := c.baseURL + "/farcaster/cast"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("social: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.NetworkError{Op: "social: cast", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("social: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded castResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("social: decode response: %w", err)
	}
	return decoded.Cast.Hash, nil
}
