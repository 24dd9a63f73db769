// Package api is a typed client for the ExpiryGuard REST API.
package api

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
	"github.com/rs/zerolog"
)

// DefaultBaseURL is where the API listens in a local deployment
const DefaultBaseURL = "http://localhost:8000"

// RequestIDHeader correlates client log lines with server log lines
const RequestIDHeader = "X-Request-ID"

// Client talks to the REST API
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client for the API at baseURL. tokens may be nil for anonymous use.
func NewClient(baseURL string, tokens TokenSource, log zerolog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http: &http.Client{
			Timeout: 60 * time.Second, // OCR uploads are slow
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for an access token
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &out); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	return &out, nil
}

// Signup registers an account and returns its first access token
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/signup", req, &out); err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}
	return &out, nil
}

// CurrentUser returns the account the token belongs to
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, "", &out); err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return &out, nil
}

// ListProducts returns every product of the current user
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.do(ctx, http.MethodGet, "/get-items", nil, "", &out); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return out, nil
}

// AddProduct stores a new product
func (c *Client) AddProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	var out Product
	if err := c.doJSON(ctx, http.MethodPost, "/add-item", in, &out); err != nil {
		return nil, fmt.Errorf("adding product: %w", err)
	}
	return &out, nil
}

// DeleteProduct removes a product by ID
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if err := c.do(ctx, http.MethodDelete, "/delete-item/"+url.PathEscape(id), nil, "", nil); err != nil {
		return fmt.Errorf("deleting product %s: %w", id, err)
	}
	return nil
}

// Statistics returns the dashboard counters
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var out Statistics
	if err := c.do(ctx, http.MethodGet, "/statistics", nil, "", &out); err != nil {
		return nil, fmt.Errorf("getting statistics: %w", err)
	}
	return &out, nil
}

// SendExpiryAlerts asks the server to email alerts for products close to expiry
func (c *Client) SendExpiryAlerts(ctx context.Context) (*AlertResponse, error) {
	var out AlertResponse
	if err := c.do(ctx, http.MethodPost, "/send-expiry-alerts", nil, "", &out); err != nil {
		return nil, fmt.Errorf("sending expiry alerts: %w", err)
	}
	return &out, nil
}

// ProductByBarcode looks a barcode up in the public catalogues and the user's inventory.
// An unknown barcode is not an error: it returns nil, nil.
func (c *Client) ProductByBarcode(ctx context.Context, code string) (*BarcodeProduct, error) {
	var out BarcodeProduct
	err := c.do(ctx, http.MethodGet, "/product-by-barcode/"+url.PathEscape(code), nil, "", &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up barcode %s: %w", code, err)
	}
	return &out, nil
}

// UploadImage sends a product photo to the OCR endpoint
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	var out UploadResult
	if err := c.do(ctx, http.MethodPost, "/upload-image", &body, w.FormDataContentType(), &out); err != nil {
		return nil, fmt.Errorf("uploading image: %w", err)
	}
	return &out, nil
}

// VoiceError is a relay response that carries an error message instead of a product
type VoiceError struct {
	Message    string
	Transcript string
}

func (e *VoiceError) Error() string {
	return "parsing voice input: " + e.Message
}

// ParseVoice turns a spoken sentence into a product name and expiry date
func (c *Client) ParseVoice(ctx context.Context, transcript string) (*VoiceResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: transcript is empty", ErrValidation)
	}

	var out VoiceResult
	req := map[string]string{"transcript": transcript}
	if err := c.doJSON(ctx, http.MethodPost, "/parse-voice", req, &out); err != nil {
		return nil, fmt.Errorf("parsing voice input: %w", err)
	}
	if out.Error != "" {
		return nil, &VoiceError{Message: out.Error, Transcript: out.Transcript}
	}
	return &out, nil
}

// SetSchedulerTime sets the daily time expiry alerts are sent
func (c *Client) SetSchedulerTime(ctx context.Context, hour, minute int) (*MessageResponse, error) {
	t := NotificationTime{Hour: hour, Minute: minute}
	if err := Validate(t); err != nil {
		return nil, err
	}

	var out MessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/scheduler/time", t, &out); err != nil {
		return nil, fmt.Errorf("setting alert time: %w", err)
	}
	return &out, nil
}

// SetNotifications turns expiry alert emails on or off
func (c *Client) SetNotifications(ctx context.Context, on bool) (*MessageResponse, error) {
	path := "/notifications/off"
	if on {
		path = "/notifications/on"
	}

	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, path, nil, "", &out); err != nil {
		return nil, fmt.Errorf("toggling notifications: %w", err)
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(payload), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log := c.log.With().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Logger()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		log.Debug().Msg("api request failed")
		return newStatusError(resp.StatusCode, respBody)
	}
	log.Debug().Msg("api request")

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
