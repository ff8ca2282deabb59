package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	aozerrors "github.com/AOZdotAG/aoz-explorer/internal/errors"
	"github.com/AOZdotAG/aoz-explorer/internal/httpclient"
	"github.com/AOZdotAG/aoz-explorer/internal/logging"
)

// ErrVerifyTimeout marks a verification attempt abandoned on deadline.
var ErrVerifyTimeout = errors.New("payment verification timed out")

// VerifyResult is the facilitator's verdict on a payment payload.
type VerifyResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleResult is the facilitator's settlement outcome.
type SettleResult struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
}

// Facilitator talks to the external x402 facilitator service.
type Facilitator struct {
	baseURL       string
	verifyTimeout time.Duration
	httpClient    *http.Client
	logger        logging.Logger
}

// FacilitatorConfig configures the facilitator client.
type FacilitatorConfig struct {
	BaseURL       string
	VerifyTimeout time.Duration
}

// NewFacilitator creates a facilitator client. The HTTP client carries no
// overall timeout; verification deadlines are applied per call.
func NewFacilitator(config FacilitatorConfig) *Facilitator {
	logger := logging.NewComponentLogger("x402")

	verifyTimeout := 30 * time.Second
	if config.VerifyTimeout > 0 {
		verifyTimeout = config.VerifyTimeout
	}

	return &Facilitator{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		verifyTimeout: verifyTimeout,
		httpClient:    httpclient.New(2*time.Minute, logger),
		logger:        logger,
	}
}

type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Verify asks the facilitator whether the payment payload satisfies the
// requirements. The call is bounded by the configured verify timeout; on
// deadline it returns ErrVerifyTimeout.
func (f *Facilitator) Verify(ctx context.Context, payment string, requirements PaymentRequirements) (*VerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.verifyTimeout)
	defer cancel()

	var result VerifyResult
	err := f.post(ctx, "/verify", payment, requirements, &result)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			f.logger.Warn("Payment verification timed out after %s", f.verifyTimeout)
			return nil, ErrVerifyTimeout
		}
		return nil, err
	}
	return &result, nil
}

// Settle asks the facilitator to submit the payment on chain.
func (f *Facilitator) Settle(ctx context.Context, payment string, requirements PaymentRequirements) (*SettleResult, error) {
	var result SettleResult
	if err := f.post(ctx, "/settle", payment, requirements, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *Facilitator) post(ctx context.Context, path, payment string, requirements PaymentRequirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         Version,
		PaymentHeader:       payment,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return fmt.Errorf("marshal facilitator request: %w", err)
	}

	endpoint := f.baseURL + path
	f.logger.Debug("Facilitator request: POST %s", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return aozerrors.NewTransientError(err, "Payment facilitator unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, 1024*1024)
	if err != nil {
		return fmt.Errorf("read facilitator response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Debug("Facilitator error response (%d): %s", resp.StatusCode, string(respBody))
		return aozerrors.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("facilitator %s returned status %d", path, resp.StatusCode))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode facilitator response: %w", err)
	}
	return nil
}
