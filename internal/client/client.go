package client

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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fmueller/voxscribe/internal/service"
	"github.com/fmueller/voxscribe/internal/version"
)

const DefaultBaseURL = "http://localhost:8000"

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Kind       string
	Detail     string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.StatusCode)
	if e.Kind != "" {
		msg += " (" + e.Kind + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.RequestID != "" {
		msg += " [request " + e.RequestID + "]"
	}
	return msg
}

// Client talks to a running voxscribe server.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string
}

func New(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{BaseURL: baseURL, HTTP: httpClient, UserAgent: version.UserAgent()}
}

func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.getJSON(ctx, "/health")
}

func (c *Client) Models(ctx context.Context) (json.RawMessage, error) {
	return c.getJSON(ctx, "/models")
}

// TranscribeFile uploads the file at path. The body is streamed, so large
// files are never held in memory.
func (c *Client) TranscribeFile(ctx context.Context, path string, opts service.Options) (*service.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/transcribe", optionQuery(opts), pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result service.Result
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) TranscribeURL(ctx context.Context, rawURL string, opts service.Options) (*service.Result, error) {
	payload, err := json.Marshal(map[string]any{
		"url":             rawURL,
		"model":           opts.Model,
		"language":        opts.Language,
		"device":          opts.Device,
		"word_timestamps": opts.WordTimestamps,
		"verbose":         opts.Verbose,
	})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/transcribe-url", nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result service.Result
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Detail    string `json:"detail"`
		Kind      string `json:"kind"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Detail, apiErr.Kind = body.Detail, body.Kind
		if body.RequestID != "" {
			apiErr.RequestID = body.RequestID
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func optionQuery(opts service.Options) url.Values {
	q := url.Values{}
	if opts.Model != "" {
		q.Set("model", opts.Model)
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	if opts.Device != "" {
		q.Set("device", opts.Device)
	}
	q.Set("word_timestamps", strconv.FormatBool(opts.WordTimestamps))
	if opts.Verbose {
		q.Set("verbose", "true")
	}
	return q
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
