package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet/internal/logging"
)

const (
	// DefaultTimeout bounds a single charge call.
	DefaultTimeout = 10 * time.Second

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 512
)

// HTTPGateway posts charges to a processor's charges endpoint.
type HTTPGateway struct {
	client     *http.Client
	chargesURL string
}

// NewHTTPGateway creates a client for chargesURL. A non-positive timeout falls back to DefaultTimeout.
func NewHTTPGateway(chargesURL string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGateway{
		client:     &http.Client{Timeout: timeout},
		chargesURL: chargesURL,
	}
}

// Charge submits the card and amount. HTTP 422 is the processor's amount floor.
func (g *HTTPGateway) Charge(ctx context.Context, cardNumber string, amount decimal.Decimal) (Payment, error) {
	body, err := json.Marshal(chargeRequest{CreditCard: cardNumber, Amount: json.Number(amount.String())})
	if err != nil {
		return Payment{}, fmt.Errorf("%w: encode charge: %w", ErrGateway, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.chargesURL, bytes.NewReader(body))
	if err != nil {
		return Payment{}, fmt.Errorf("%w: build request: %w", ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := logging.RequestID(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return Payment{}, ErrAmountTooSmall
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Payment{}, fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Payment{}, fmt.Errorf("%w: decode charge response: %w", ErrGateway, err)
	}
	if out.ID == "" {
		return Payment{}, fmt.Errorf("%w: charge response without id", ErrGateway)
	}
	return Payment{Reference: out.ID}, nil
}
