// Package payment is the client of the external payments service.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	balancePath = "/payments/balance"
	payPath     = "/payments/pay"

	maxBody = 64 << 10
)

type Result struct {
	Success          bool
	RemainingBalance decimal.Decimal
}

type Client struct {
	BaseURL string
	Client  *http.Client

	tracer trace.Tracer
	newKey func() string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("InterShop/payment"),
		newKey:  uuid.NewString,
	}
}

type balanceResponse struct {
	Balance *decimal.Decimal `json:"balance"`
}

type payRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type payResponse struct {
	Success          *bool            `json:"success"`
	RemainingBalance *decimal.Decimal `json:"remainingBalance"`
}

func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := c.tracer.Start(ctx, "payment.GetBalance", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var out balanceResponse
	if err := c.do(ctx, http.MethodGet, balancePath, nil, &out); err != nil {
		return decimal.Zero, endSpan(span, err)
	}
	if out.Balance == nil {
		return decimal.Zero, endSpan(span, fmt.Errorf("%w: balance missing from response", ErrUnavailable))
	}

	span.SetAttributes(attribute.String("payment.balance", out.Balance.String()))
	return *out.Balance, nil
}

// SubmitPayment makes a single attempt to debit amount. Declines by the
// gateway come back as *GatewayError, everything else that prevents a
// verdict as ErrUnavailable.
func (c *Client) SubmitPayment(ctx context.Context, amount decimal.Decimal) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "payment.SubmitPayment",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("payment.amount", amount.String())),
	)
	defer span.End()

	var out payResponse
	if err := c.do(ctx, http.MethodPost, payPath, payRequest{Amount: amount}, &out); err != nil {
		return Result{}, endSpan(span, err)
	}
	if out.Success == nil {
		return Result{}, endSpan(span, fmt.Errorf("%w: success missing from response", ErrUnavailable))
	}

	res := Result{Success: *out.Success}
	if out.RemainingBalance != nil {
		res.RemainingBalance = *out.RemainingBalance
	} else if res.Success {
		return Result{}, endSpan(span, fmt.Errorf("%w: remainingBalance missing from response", ErrUnavailable))
	}

	span.SetAttributes(attribute.Bool("payment.success", res.Success))
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", c.newKey())
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return decodeGatewayError(resp)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status=%d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed response: %w", ErrUnavailable, err)
	}
	return nil
}

func decodeGatewayError(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body)
	if err != nil || !knownCode(body.Code) {
		return fmt.Errorf("%w: status=%d without a recognised error code", ErrUnavailable, resp.StatusCode)
	}
	return &GatewayError{Code: body.Code, Message: body.Message, Status: resp.StatusCode}
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
