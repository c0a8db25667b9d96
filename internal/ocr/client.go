// Package ocr talks to the external OCR backend that turns images into
// documents. The backend exposes three endpoints: POST /api/convert,
// GET /api/languages and GET /api/health.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog"
)

// Sentinel errors categorize backend failures so callers can pick the right
// user-facing message without string matching.
var (
	// ErrUnreachable covers connection refused, DNS failures and timeouts.
	ErrUnreachable = errors.New("conversion service unreachable")
	// ErrServer covers non-2xx responses from the backend.
	ErrServer = errors.New("conversion service error")
	// ErrNoText is returned when the backend found no recognizable text.
	ErrNoText = errors.New("no text detected in image")
)

// Request carries one image to convert.
type Request struct {
	FileName    string
	ContentType string
	Data        io.Reader
	// Size is the payload length in bytes, used for progress reporting.
	Size     int64
	Format   string
	Language string
}

// Result is the converted document returned by the backend.
type Result struct {
	Content    []byte
	MIMEType   string
	FileName   string
	TextLength int
}

// Client is an HTTP client for the OCR backend.
type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

// NewClient builds a Client for the given base URL. httpClient may be nil,
// in which case http.DefaultClient is used.
func NewClient(base string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, http: httpClient, log: log}
}

// convertResponse mirrors the backend's JSON. Content is base64.
type convertResponse struct {
	Content    string `json:"content"`
	MIMEType   string `json:"mimeType"`
	Filename   string `json:"filename"`
	TextLength int    `json:"textLength"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// progressReader reports fractional read progress through cb as the request
// body is consumed by the transport.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	cb    func(float64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.total > 0 && p.cb != nil {
		p.read += int64(n)
		frac := float64(p.read) / float64(p.total)
		if frac > 1 {
			frac = 1
		}
		p.cb(frac)
	}
	return n, err
}

// Convert sends the image as multipart form data and returns the decoded
// document. onProgress, if non-nil, receives upload progress in [0,1]. A
// canceled context surfaces as context.Canceled so callers can distinguish
// user cancellation from real failures.
func (c *Client) Convert(ctx context.Context, req Request, onProgress func(float64)) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, req.Data); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	if err := mw.WriteField("format", req.Format); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := mw.WriteField("lang", req.Language); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	total := int64(body.Len())
	reader := &progressReader{r: &body, total: total, cb: onProgress}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/convert", reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.ContentLength = total

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn().Err(err).Msg("convert request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var payload convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	content, err := base64.StdEncoding.DecodeString(payload.Content)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if payload.TextLength == 0 {
		return nil, ErrNoText
	}
	return &Result{
		Content:    content,
		MIMEType:   payload.MIMEType,
		FileName:   payload.Filename,
		TextLength: payload.TextLength,
	}, nil
}

func (c *Client) statusError(resp *http.Response) error {
	var e errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := ""
	if json.Unmarshal(raw, &e) == nil {
		if e.Detail != "" {
			detail = e.Detail
		} else {
			detail = e.Error
		}
	}
	if resp.StatusCode == http.StatusUnprocessableEntity && detail != "" {
		// The backend signals an empty OCR result as a validation error.
		return fmt.Errorf("%w: %s", ErrNoText, detail)
	}
	if detail == "" {
		detail = resp.Status
	}
	return fmt.Errorf("%w: %s", ErrServer, detail)
}

// Health checks GET /api/health. A nil error means the backend is up.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrServer, resp.Status)
	}
	return nil
}
