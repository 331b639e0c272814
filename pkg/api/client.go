package api

// UPSTREAM ORDER-MANAGEMENT API CLIENT

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnavailable marks network and timeout failures talking to the
// upstream API. Retrying is the caller's business, not the client's.
var ErrUnavailable = errors.New("upstream api unavailable")

// StatusError is returned when the upstream answers with a non-2xx code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream api status %d", e.Code)
}

// IsRejected reports whether err is a 4xx rejection from the upstream.
func IsRejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

type Service struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsActive    bool   `json:"is_active"`
}

type OrderPayload struct {
	CustomerName    string         `json:"customer_name"`
	CustomerEmail   string         `json:"customer_email"`
	CustomerPhone   string         `json:"customer_phone,omitempty"`
	CustomerContact string         `json:"customer_contact"`
	ServiceID       int            `json:"service_id"`
	Source          string         `json:"source"`
	Specifications  map[string]any `json:"specifications"`
	DeliveryNeeded  string         `json:"delivery_needed,omitempty"`
	DeliveryDetails string         `json:"delivery_details,omitempty"`
}

type OrderRef struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type Order struct {
	ID          int64   `json:"id"`
	Status      string  `json:"status"`
	ServiceName string  `json:"service_name"`
	TotalPrice  float64 `json:"total_price"`
	CreatedAt   string  `json:"created_at"`
}

type FileUploadResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ListServices fetches the service catalog.
func (c *Client) ListServices(ctx context.Context, activeOnly bool) ([]Service, error) {
	endpoint := c.baseURL + "/api/v1/services"
	if activeOnly {
		endpoint += "?active_only=true"
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}

	var services []Service
	if err := json.Unmarshal(body, &services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	return services, nil
}

// SubmitOrder creates a new order upstream. The caller supplies the
// idempotency key for the submission attempt so that a timed-out
// submission retried by the user reuses it and does not create a
// duplicate; an empty key gets a one-off value.
func (c *Client) SubmitOrder(ctx context.Context, payload OrderPayload, idempotencyKey string) (*OrderRef, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	body, err := c.doWithKey(ctx, http.MethodPost, c.baseURL+"/api/v1/orders", bytes.NewReader(data), "application/json", idempotencyKey)
	if err != nil {
		return nil, err
	}

	var ref OrderRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &ref, nil
}

// OrdersByEmail returns all orders registered for the given customer email.
func (c *Client) OrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	endpoint := c.baseURL + "/api/v1/orders?email=" + url.QueryEscape(email)

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}

	var orders []Order
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

// UploadFile sends a model file upstream and returns its remote reference.
func (c *Client) UploadFile(ctx context.Context, filename string, data []byte, contentType string) (*FileUploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}
	_ = contentType // upstream sniffs the part, the original forwarded it for logging only

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/files/upload", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var result FileUploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode upload result: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	return c.doWithKey(ctx, method, endpoint, body, contentType, "")
}

func (c *Client) doWithKey(ctx context.Context, method, endpoint string, body io.Reader, contentType, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost {
		if idempotencyKey == "" {
			idempotencyKey = uuid.NewString()
		}
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Error("API request failed",
			zap.String("url", endpoint),
			zap.Int("status", resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	return unwrapEnvelope(raw), nil
}

// unwrapEnvelope tolerates the two response shapes the upstream uses:
// a bare JSON value or {"success": true, "data": ...}.
func unwrapEnvelope(raw []byte) []byte {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		return envelope.Data
	}
	return raw
}
