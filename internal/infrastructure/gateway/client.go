package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Client implements ledger.PaymentGateway against a NOWPayments style API.
// Transport failures, timeouts and 5xx responses are retried with exponential
// backoff and surface as ErrUpstreamUnavailable once retries are exhausted.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// NewClient creates a new gateway client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}, nil
}

// CreateInvoice creates a hosted invoice for a contribution
func (c *Client) CreateInvoice(ctx context.Context, req ledger.InvoiceRequest) (*ledger.Invoice, error) {
	body := invoiceRequest{
		PriceAmount:      json.Number(req.FiatAmount.String()),
		PriceCurrency:    req.FiatCurrency,
		PayCurrency:      req.PayCurrency,
		OrderID:          req.OrderID,
		OrderDescription: req.Description,
		IPNCallbackURL:   c.config.CallbackURL,
		SuccessURL:       c.config.SuccessURL,
		CancelURL:        c.config.CancelURL,
	}
	var resp invoiceResponse
	if err := c.do(ctx, http.MethodPost, "/invoice", body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.InvoiceURL == "" {
		return nil, shared.ErrUpstreamUnavailable.WithDetails("gateway returned an incomplete invoice")
	}
	return &ledger.Invoice{
		InvoiceID:  string(resp.ID),
		PaymentURL: resp.InvoiceURL,
	}, nil
}

// GetPaymentStatus pulls the current status of a gateway payment
func (c *Client) GetPaymentStatus(ctx context.Context, gatewayPaymentID string) (*ledger.GatewayStatusSignal, error) {
	var resp paymentPayload
	if err := c.do(ctx, http.MethodGet, "/payment/"+url.PathEscape(gatewayPaymentID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.toSignal()
}

// do performs one API call with retries. Only transient failures are retried.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("gateway: encode request: %w", err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.config.MaxRetries), ctx)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return c.attempt(ctx, method, path, payload, out)
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("Gateway call failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}
	if shared.CodeOf(err) != "" {
		return err
	}
	return shared.ErrUpstreamUnavailable.WithDetails(err.Error())
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("gateway: build request: %w", err))
	}
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("gateway: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("gateway: HTTP %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(shared.ErrNotFound)
	case resp.StatusCode >= 400:
		return backoff.Permanent(shared.NewDomainErrorf(shared.CodeInvalidInput,
			"gateway rejected request: %s", errorMessage(resp.StatusCode, respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return backoff.Permanent(fmt.Errorf("gateway: decode response: %w", err))
	}
	return nil
}

func errorMessage(status int, body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return http.StatusText(status)
}

func (p *paymentPayload) toSignal() (*ledger.GatewayStatusSignal, error) {
	if p.PaymentStatus == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "gateway payload has no payment_status")
	}
	signal := &ledger.GatewayStatusSignal{
		GatewayPaymentID: string(p.PaymentID),
		OrderID:          p.OrderID,
		Status:           p.PaymentStatus,
	}
	var err error
	if signal.ActuallyPaid, err = optionalDecimal(p.ActuallyPaid); err != nil {
		return nil, err
	}
	if p.Fee != nil {
		if signal.NetworkFee, err = optionalDecimal(p.Fee.NetworkFee); err != nil {
			return nil, err
		}
	}
	return signal, nil
}

func optionalDecimal(n *json.Number) (*decimal.Decimal, error) {
	if n == nil || *n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "malformed amount %q", n.String())
	}
	return &d, nil
}

var _ ledger.PaymentGateway = (*Client)(nil)
