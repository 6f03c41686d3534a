package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultCallTimeout = 10 * time.Second
	maxErrorBody       = 64 << 10
	idempotencyHeader  = "Idempotency-Key"
)

// Options tunes the commerce client
type Options struct {
	// CallTimeout bounds every single backend call. Zero uses 10s.
	CallTimeout time.Duration
	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

// Client talks to the commerce backend REST API
type Client struct {
	HTTPClient     *http.Client
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	CallTimeout    time.Duration

	limiter *rate.Limiter
}

// NewClient creates a commerce client authenticated with a consumer key pair
func NewClient(baseURL, consumerKey, consumerSecret string, opts Options) *Client {
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(base),
		},
		BaseURL:        strings.TrimRight(baseURL, "/"),
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		CallTimeout:    timeout,
		limiter:        limiter,
	}
}

// FetchProduct returns the live product record, or nil when the backend reports 404
func (c *Client) FetchProduct(ctx context.Context, productID int64) (*Product, error) {
	var p Product
	path := "/products/" + strconv.FormatInt(productID, 10)
	found, err := c.get(ctx, "fetch product", path, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// FetchVariation returns the live variation record, or nil when the backend reports 404
func (c *Client) FetchVariation(ctx context.Context, productID, variationID int64) (*Product, error) {
	var p Product
	path := fmt.Sprintf("/products/%d/variations/%d", productID, variationID)
	found, err := c.get(ctx, "fetch variation", path, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// CreateOrder submits a new order. The idempotency key is forwarded as a header
// so an idempotency layer in front of the backend can collapse retried creates.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest, idempotencyKey string) (*Order, error) {
	var order Order
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers[idempotencyHeader] = idempotencyKey
	}
	if _, err := c.do(ctx, "create order", http.MethodPost, "/orders", req, headers, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder changes the status and metadata of an existing order
func (c *Client) UpdateOrder(ctx context.Context, orderID int64, update OrderUpdate) (*Order, error) {
	var order Order
	path := "/orders/" + strconv.FormatInt(orderID, 10)
	if _, err := c.do(ctx, "update order", http.MethodPut, path, update, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// AddOrderNote attaches a note to an order; customer notes are emailed by the backend
func (c *Client) AddOrderNote(ctx context.Context, orderID int64, note string, customerNote bool) error {
	path := fmt.Sprintf("/orders/%d/notes", orderID)
	_, err := c.do(ctx, "add order note", http.MethodPost, path, orderNote{Note: note, CustomerNote: customerNote}, nil, nil)
	return err
}

// Ping checks that the backend answers authenticated requests
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, "/system_status", nil, nil, nil)
	return err
}

func (c *Client) get(ctx context.Context, op, path string, out any) (bool, error) {
	status, err := c.do(ctx, op, http.MethodGet, path, nil, nil, out)
	if err != nil {
		if status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// do performs one backend call and returns the HTTP status it saw, if any
func (c *Client) do(ctx context.Context, op, method, path string, body any, headers map[string]string, out any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.endpoint(path), reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// The caller gave up; that is not a backend failure.
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return 0, newNetworkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return resp.StatusCode, newHTTPError(op, resp.StatusCode, eb.Code, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &Error{
				Kind:   KindFatal,
				Status: resp.StatusCode,
				Op:     op,
				Err:    fmt.Errorf("failed to decode response: %w", err),
			}
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) endpoint(path string) string {
	q := url.Values{}
	q.Set("consumer_key", c.ConsumerKey)
	q.Set("consumer_secret", c.ConsumerSecret)
	return c.BaseURL + path + "?" + q.Encode()
}
