// Package client calls the tennis analyzer HTTP API and uploads videos
// straight to storage with the presigned URLs it issues.
//
// Every non-2xx response becomes an *APIError whose message is the server's
// "error" field verbatim, so front-ends can show it as is.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/filehandler"
	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout covers the longest API call: ingestion plus stroke
	// counting, which the server bounds at five minutes.
	defaultTimeout = 6 * time.Minute

	maxErrorBody = 64 * 1024
)

// APIError is a non-2xx response from the API or from storage.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// UploadTicket authorizes one direct PUT of a video.
type UploadTicket struct {
	UploadURL string    `json:"uploadUrl"`
	BlobURL   string    `json:"blobUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client talks to one API deployment.
type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
	originSecret string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for API calls and uploads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.uploadClient = hc
	}
}

// WithOriginSecret sends the x-origin-verify header on API calls.
func WithOriginSecret(secret string) Option {
	return func(c *Client) { c.originSecret = secret }
}

// New creates a Client for the API at baseURL (for example
// "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		uploadClient: &http.Client{},
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestUpload asks the API for a presigned upload URL.
func (c *Client) RequestUpload(ctx context.Context, filename, contentType string, size int64) (*UploadTicket, error) {
	q := url.Values{
		"filename":    {filename},
		"contentType": {contentType},
	}
	if size > 0 {
		q.Set("size", strconv.FormatInt(size, 10))
	}

	var ticket UploadTicket
	if err := c.do(ctx, http.MethodGet, "/api/upload-url?"+q.Encode(), nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// PutObject uploads body to a presigned URL. contentType and size must match
// what the ticket was issued for.
func (c *Client) PutObject(ctx context.Context, ticket *UploadTicket, body io.Reader, contentType string, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.UploadURL, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}

	start := time.Now()
	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Debug().Int("statusCode", resp.StatusCode).Str("body", string(body)).Msg("Storage rejected upload")
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("Upload failed: %s", http.StatusText(resp.StatusCode))}
	}

	log.Info().
		Str("blobUrl", ticket.BlobURL).
		Int64("size_bytes", size).
		Dur("duration", time.Since(start)).
		Msg("Upload completed")
	return nil
}

// UploadVideo authorizes and performs the direct upload of a local video
// and returns its storage locator.
func (c *Client) UploadVideo(ctx context.Context, vf *filehandler.VideoFile) (string, error) {
	ticket, err := c.RequestUpload(ctx, vf.Name, vf.MIMEType, vf.Size)
	if err != nil {
		return "", err
	}

	f, err := os.Open(vf.Path)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	if err := c.PutObject(ctx, ticket, f, vf.MIMEType, vf.Size); err != nil {
		return "", err
	}
	return ticket.BlobURL, nil
}

type analyzeRequest struct {
	BlobURL    string `json:"blobUrl"`
	PlayerSide string `json:"playerSide"`
}

// Analyze runs ingestion and stroke counting for an uploaded video.
func (c *Client) Analyze(ctx context.Context, blobURL string, side analysis.PlayerSide) (*analysis.AnalysisResult, error) {
	var result analysis.AnalysisResult
	req := analyzeRequest{BlobURL: blobURL, PlayerSide: string(side)}
	if err := c.do(ctx, http.MethodPost, "/api/analyze", req, &result); err != nil {
		return nil, err
	}
	if result.Strokes == nil {
		result.Strokes = []analysis.StrokeTally{}
	}
	return &result, nil
}

type techniqueRequest struct {
	GeminiFileURI      string `json:"geminiFileUri"`
	GeminiFileMIMEType string `json:"geminiFileMimeType,omitempty"`
	StrokeType         string `json:"strokeType"`
	PlayerSide         string `json:"playerSide"`
}

// Technique requests a breakdown of one stroke type in an ingested video.
func (c *Client) Technique(ctx context.Context, handle analysis.RemoteVideoHandle, strokeType string, side analysis.PlayerSide) (*analysis.TechniqueAnalysis, error) {
	var technique analysis.TechniqueAnalysis
	req := techniqueRequest{
		GeminiFileURI:      handle.URI,
		GeminiFileMIMEType: handle.MIMEType,
		StrokeType:         strokeType,
		PlayerSide:         string(side),
	}
	if err := c.do(ctx, http.MethodPost, "/api/technique", req, &technique); err != nil {
		return nil, err
	}
	return &technique, nil
}

// Release asks the API to delete an ingested video.
func (c *Client) Release(ctx context.Context, geminiFileName string) error {
	req := map[string]string{"geminiFileName": geminiFileName}
	return c.do(ctx, http.MethodPost, "/api/release", req, nil)
}

// DiscardUpload asks the API to delete an uploaded video that will not be
// analyzed.
func (c *Client) DiscardUpload(ctx context.Context, blobURL string) error {
	req := map[string]string{"blobUrl": blobURL}
	return c.do(ctx, http.MethodPost, "/api/release", req, nil)
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.originSecret != "" {
		req.Header.Set("x-origin-verify", c.originSecret)
	}

	start := time.Now()
	log.Debug().Str("method", method).Str("path", endpoint).Msg("API request")
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("API response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(data, &body) == nil {
		msg = body.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("Request failed: %s", http.StatusText(resp.StatusCode))
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
