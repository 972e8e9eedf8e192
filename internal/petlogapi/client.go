// Package petlogapi is the typed client for the external PetLog REST API.
// Every figure it returns is authoritative; the console only displays it.
package petlogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/petlog-console/internal/billing"
	"github.com/noah-isme/petlog-console/internal/money"
	"github.com/noah-isme/petlog-console/internal/pricing"
	"github.com/noah-isme/petlog-console/internal/resilience"
)

const maxBodyBytes = 1 << 20

// Config controls how the client reaches the API.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Breaker     *resilience.Breaker
	Transport   http.RoundTripper
	Logger      *zerolog.Logger
}

// Client calls the PetLog API. A zero-token client can only reach public
// endpoints; use WithToken to bind a session.
type Client struct {
	base   *url.URL
	http   resilience.HTTPClient
	token  string
	logger zerolog.Logger
}

// New builds a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("petlogapi: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("petlogapi: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("petlogapi: unsupported scheme %q", base.Scheme)
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: base,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     cfg.Breaker,
			Target:      "petlog-api",
			BaseBackoff: cfg.BaseBackoff,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		logger: logger,
	}, nil
}

// WithToken returns a copy of the client that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

// Booking fetches a single booking.
func (c *Client) Booking(ctx context.Context, id int64) (Booking, error) {
	var out Booking
	err := c.do(ctx, http.MethodGet, bookingPath(id, ""), nil, nil, &out)
	return out, err
}

// BillingPreview fetches the current charges of an active booking.
func (c *Client) BillingPreview(ctx context.Context, id int64) (billing.Snapshot, error) {
	var out billing.Snapshot
	err := c.do(ctx, http.MethodGet, bookingPath(id, "/billing"), nil, nil, &out)
	return out, err
}

// Checkout persists the authoritative checkout of a booking.
func (c *Client) Checkout(ctx context.Context, id int64, req CheckoutRequest) (Booking, error) {
	if req.CheckOutAt != nil {
		utc := req.CheckOutAt.UTC()
		req.CheckOutAt = &utc
	}
	var out Booking
	err := c.do(ctx, http.MethodPatch, bookingPath(id, "/checkout"), nil, req, &out)
	return out, err
}

// UpdatePayment records how a checked-out booking was paid.
func (c *Client) UpdatePayment(ctx context.Context, id int64, req PaymentUpdate) (Booking, error) {
	var out Booking
	err := c.do(ctx, http.MethodPatch, bookingPath(id, "/payment"), nil, req, &out)
	return out, err
}

// Subscription returns the hotel's current plan.
func (c *Client) Subscription(ctx context.Context) (Subscription, error) {
	var out Subscription
	err := c.do(ctx, http.MethodGet, "/subscription", nil, nil, &out)
	return out, err
}

// Plans lists the purchasable plans.
func (c *Client) Plans(ctx context.Context) ([]pricing.Plan, error) {
	var out []pricing.Plan
	err := c.do(ctx, http.MethodGet, "/payment/plans", nil, nil, &out)
	return out, err
}

// UpgradeCost asks the API to prorate a switch to plan.
func (c *Client) UpgradeCost(ctx context.Context, plan string) (UpgradeCost, error) {
	var out UpgradeCost
	q := url.Values{"plan": {plan}}
	err := c.do(ctx, http.MethodGet, "/payment/upgrade-cost", q, nil, &out)
	return out, err
}

// ExtraRoomsCost asks the API to price count additional rooms.
func (c *Client) ExtraRoomsCost(ctx context.Context, count int) (ExtraRoomsCost, error) {
	var out ExtraRoomsCost
	q := url.Values{"count": {strconv.Itoa(count)}}
	err := c.do(ctx, http.MethodGet, "/payment/extra-rooms-cost", q, nil, &out)
	return out, err
}

// ExtraRoomPrice returns the per-room monthly price used for display estimates.
func (c *Client) ExtraRoomPrice(ctx context.Context) (money.Money, error) {
	var out struct {
		Price money.Money `json:"price"`
	}
	err := c.do(ctx, http.MethodGet, "/payment/extra-room-price", nil, nil, &out)
	return out.Price, err
}

// CreatePayment opens a gateway checkout for a plan purchase or upgrade.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentLink, error) {
	var out PaymentLink
	err := c.do(ctx, http.MethodPost, "/payment/create", nil, req, &out)
	return out, err
}

// CreateExtraRoomPayment opens a gateway checkout for additional rooms only.
func (c *Client) CreateExtraRoomPayment(ctx context.Context, count int) (PaymentLink, error) {
	var out PaymentLink
	err := c.do(ctx, http.MethodPost, "/payment/extra-rooms", nil, map[string]int{"count": count}, &out)
	return out, err
}

// Ping probes the API base for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/payment/plans", nil, nil, nil)
}

func bookingPath(id int64, suffix string) string {
	return "/bookings/" + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("petlogapi: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("petlogapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			c.logger.Warn().Str("method", method).Str("path", path).Int("status", statusErr.StatusCode).Msg("petlog_api_server_error")
			return decodeError(statusErr.StatusCode, statusErr.Body)
		}
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("petlog_api_unavailable")
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, method, path, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("petlog_api_call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("petlogapi: decode %s %s: %w", method, path, err)
	}
	return nil
}
