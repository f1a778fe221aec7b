package payment

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"miniapp-server/internal/domain"
)

// VerifierOptions configures the receipt verifier.
type VerifierOptions struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Verifier checks a payment receipt against the backend. Only an explicit
// 2xx answer counts as verified; every other outcome, including transport
// failures, leaves the receipt unverified.
type Verifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewVerifier constructs a verifier against the inference backend.
func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("payment: verifier base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Verifier{baseURL: baseURL, httpClient: httpClient}, nil
}

// Verify submits the receipt bound to a single video id. A receipt never
// verifies more than one video; the binding is part of the request.
func (v *Verifier) Verify(ctx context.Context, videoID string, receipt *domain.Receipt) (*domain.Verification, error) {
	if videoID == "" {
		return nil, fmt.Errorf("%w: video id is required", domain.ErrValidation)
	}
	if receipt == nil || receipt.TxHash == "" {
		return nil, fmt.Errorf("%w: receipt is required", domain.ErrValidation)
	}
	amount := receipt.AmountWei
	if amount == nil {
		amount = big.NewInt(0)
	}

	form := url.Values{
		"video_id":         {videoID},
		"transaction_hash": {receipt.TxHash},
		"amount_paid":      {amount.String()},
		"user_address":     {receipt.Payer},
	}
	endpoint := v.baseURL + "/video/verify-zora-payment"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payment: build verify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Op: "payment: verify", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("payment: read verify response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", domain.ErrVerification,
			(&domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}).Error())
	}

	return &domain.Verification{
		VideoID:    videoID,
		TxHash:     receipt.TxHash,
		AmountWei:  new(big.Int).Set(amount),
		Payer:      receipt.Payer,
		Verified:   true,
		VerifiedAt: time.Now().UTC(),
	}, nil
}
