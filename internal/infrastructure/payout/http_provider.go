package payout

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/metrics"
)

const maxResponseBytes = 1 << 20

// HTTPProvider implements settlement.PayoutProvider over the provider's JSON API
type HTTPProvider struct {
	config     ProviderConfig
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewHTTPProvider creates a new provider client
func NewHTTPProvider(config ProviderConfig, logger *zap.Logger) (*HTTPProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
		now:    time.Now,
	}, nil
}

// Transfer submits a transfer. The client reference is sent as the idempotency
// key, so resubmitting after an unknown outcome cannot pay twice.
func (p *HTTPProvider) Transfer(ctx context.Context, req settlement.TransferRequest) (*settlement.TransferResult, error) {
	body, err := json.Marshal(transferRequest{
		ClientReference: req.ClientReference,
		Amount:          req.Amount.StringFixed(2),
		Destination: transferDestination{
			Method:           req.Destination.Method,
			AccountReference: req.Destination.AccountReference,
			HolderName:       req.Destination.HolderName,
		},
		Description: req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("payout provider: failed to encode transfer: %w", err)
	}

	start := time.Now()
	resp, err := p.do(ctx, http.MethodPost, "/v1/transfers", body, req.ClientReference)
	metrics.ObserveProviderCall("transfer", resultLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	status, err := mapTransferStatus(resp.Status)
	if err != nil {
		// The transfer exists but we cannot tell what happened to it.
		return nil, fmt.Errorf("%w: %v", settlement.ErrProviderUnavailable, err)
	}
	p.logger.Info("Payout transfer submitted",
		zap.String("client_reference", req.ClientReference),
		zap.String("provider_reference", resp.Reference),
		zap.String("status", string(status)),
	)
	return &settlement.TransferResult{
		Reference:     resp.Reference,
		Status:        status,
		FailureReason: resp.FailureReason,
	}, nil
}

// QueryStatus looks a transfer up by provider or client reference
func (p *HTTPProvider) QueryStatus(ctx context.Context, reference string) (settlement.ProviderStatus, error) {
	start := time.Now()
	resp, err := p.do(ctx, http.MethodGet, "/v1/transfers/"+url.PathEscape(reference), nil, "")
	metrics.ObserveProviderCall("query", resultLabel(err), time.Since(start))
	if err != nil {
		return "", err
	}
	status, err := mapTransferStatus(resp.Status)
	if err != nil {
		return "", fmt.Errorf("%w: %v", settlement.ErrProviderUnavailable, err)
	}
	return status, nil
}

// do performs one signed request and classifies every failure into a provider sentinel
func (p *HTTPProvider) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) (*transferResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payout provider: failed to create request: %w", err)
	}

	ts := strconv.FormatInt(p.now().Unix(), 10)
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.config.UserAgent)
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerSignature, p.sign(method, path, ts, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", settlement.ErrProviderTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", settlement.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", settlement.ErrProviderTimeout, err)
		}
		return nil, fmt.Errorf("%w: failed to read response: %v", settlement.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return nil, fmt.Errorf("%w: %s", settlement.ErrProviderNotFound, path)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: HTTP %d", settlement.ErrProviderTimeout, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", settlement.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s", settlement.ErrProviderRejected, describeError(resp.StatusCode, respBody))
	}

	var out transferResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", settlement.ErrProviderUnavailable, err)
	}
	return &out, nil
}

// sign computes hex(HMAC-SHA256(api key, method \n path \n timestamp \n body))
func (p *HTTPProvider) sign(method, path, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(p.config.APIKey))
	mac.Write([]byte(method + "\n" + path + "\n" + ts + "\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// mapTransferStatus maps provider states to ours
func mapTransferStatus(status string) (settlement.ProviderStatus, error) {
	switch status {
	case transferStatusSucceeded, transferStatusPaid:
		return settlement.ProviderStatusPaid, nil
	case transferStatusQueued, transferStatusProcessing:
		return settlement.ProviderStatusPending, nil
	case transferStatusFailed, transferStatusRejected, transferStatusReturned:
		return settlement.ProviderStatusFailed, nil
	default:
		return "", fmt.Errorf("unknown transfer status %q", status)
	}
}

func describeError(code int, body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		if e.Code != "" {
			return e.Code + ": " + e.Message
		}
		return e.Message
	}
	return "HTTP " + strconv.Itoa(code)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, settlement.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, settlement.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, settlement.ErrProviderNotFound):
		return "not_found"
	default:
		return metrics.ResultError
	}
}

// Ensure HTTPProvider implements settlement.PayoutProvider
var _ settlement.PayoutProvider = (*HTTPProvider)(nil)
