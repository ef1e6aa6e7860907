package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"fairstay-backend/internal/domain"
	"fairstay-backend/internal/metrics"
)

const (
	defaultTimeout       = 60 * time.Second
	healthTimeout        = 5 * time.Second
	legacyConfidence     = 0.8
	maxResponseBytes     = 1 << 20
	maxErrorBodyBytes    = 4096
	detectPath           = "/detect-crack"
	healthPath           = "/health"
	imageFieldName       = "image"
	imageUploadFilename  = "image.jpg"
	defaultImageMimeType = "image/jpeg"
)

// Detection is the normalized result of one detector call.
type Detection struct {
	ProcessedImageURL string
	HasDamage         bool
	Confidence        float64
	BoundingBoxes     []domain.BoundingBox
}

// detectResponse is the detector's JSON body. Older detectors only return image_url.
type detectResponse struct {
	ImageURL      string               `json:"image_url"`
	HasDamage     *bool                `json:"has_damage"`
	Confidence    *float64             `json:"confidence"`
	BoundingBoxes []domain.BoundingBox `json:"bounding_boxes"`
}

// TokenSource supplies an optional bearer token for the detector.
type TokenSource interface {
	Value(ctx context.Context) (string, error)
}

// RejectedError is a non-2xx answer from the detector.
type RejectedError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("inference: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *RejectedError) HTTPStatusCode() int {
	return e.StatusCode
}

// UnreachableError is a transport failure: refused connection, DNS, timeout.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("inference: %s is not reachable: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx answer that cannot be used.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference: malformed response: %s: %v", e.Reason, e.Err)
	}
	return "inference: malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// CredentialsError means the bearer token could not be resolved, so no
// request was sent.
type CredentialsError struct {
	Err error
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("inference: resolve token: %v", e.Err)
}

func (e *CredentialsError) Unwrap() error { return e.Err }

// Client calls the remote damage detector.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	token      TokenSource
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds one Detect call, including the upload.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.token = ts
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("inference: base URL must not be empty")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("inference: base URL %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Detect uploads the image as multipart field "image" and interprets the answer.
func (c *Client) Detect(ctx context.Context, image []byte, contentType string) (Detection, error) {
	if len(image) == 0 {
		return Detection{}, errors.New("inference: image must not be empty")
	}

	start := time.Now()
	det, err := c.detect(ctx, image, contentType)
	metrics.RecordInference(outcome(err), time.Since(start))
	return det, err
}

func (c *Client) detect(ctx context.Context, image []byte, contentType string) (Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, formType, err := multipartImage(image, contentType)
	if err != nil {
		return Detection{}, err
	}

	url := c.baseURL + detectPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Detection{}, fmt.Errorf("inference: create request: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return Detection{}, err
	}

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return Detection{}, err
	}

	var payload detectResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Detection{}, &MalformedResponseError{Reason: "decode body", Err: err}
	}
	if strings.TrimSpace(payload.ImageURL) == "" {
		return Detection{}, &MalformedResponseError{Reason: "missing image_url"}
	}
	return c.toDetection(payload), nil
}

func (c *Client) toDetection(p detectResponse) Detection {
	d := Detection{
		ProcessedImageURL: c.resolve(p.ImageURL),
		HasDamage:         true,
		BoundingBoxes:     p.BoundingBoxes,
	}
	if p.HasDamage != nil {
		d.HasDamage = *p.HasDamage
	}
	switch {
	case p.Confidence != nil:
		d.Confidence = clamp01(*p.Confidence)
	case d.HasDamage:
		d.Confidence = legacyConfidence
	}
	return d
}

// resolve turns a detector-relative path into an absolute URL.
func (c *Client) resolve(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return c.baseURL + "/" + strings.TrimLeft(u, "/")
}

// Health reports whether GET /health answers 2xx within five seconds.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	url := c.baseURL + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("inference: create health request: %w", err)
	}
	_, err = c.doJSONRequest(req, url)
	return err
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.token == nil {
		return nil
	}
	tok, err := c.token.Value(ctx)
	if err != nil {
		return &CredentialsError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	hc := c.httpClient
	if hc == nil {
		hc = http.DefaultClient
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, &UnreachableError{URL: url, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
		return nil, &RejectedError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, &UnreachableError{URL: url, Err: fmt.Errorf("read response body: %w", err)}
	}
	return buf, nil
}

func multipartImage(image []byte, contentType string) (io.Reader, string, error) {
	if strings.TrimSpace(contentType) == "" {
		contentType = defaultImageMimeType
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, imageFieldName, imageUploadFilename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("inference: create form part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("inference: write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("inference: close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func outcome(err error) string {
	var (
		rejected    *RejectedError
		unreachable *UnreachableError
		malformed   *MalformedResponseError
		credentials *CredentialsError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &unreachable):
		return "unreachable"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &credentials):
		return "credentials"
	default:
		return "error"
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
