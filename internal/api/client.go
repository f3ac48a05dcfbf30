package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// PasswordHeader carries the session credential on every authenticated call.
const PasswordHeader = "Password"

// Client is a thin HTTP client for a single management API node.
type Client struct {
	http    *http.Client
	timeout atomic.Int64
}

// NewClient creates a client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	c := &Client{http: &http.Client{}}
	c.SetTimeout(timeout)
	return c
}

// SetTimeout changes the per-request timeout; the next request picks it up.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout.Store(int64(d))
}

// Timeout returns the current per-request timeout.
func (c *Client) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// Request describes one call against one node.
type Request struct {
	BaseURL     string
	Path        string
	Method      string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string
}

// Response is a fully read node response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// ProgressFunc receives download progress for a response body.
type ProgressFunc func(loaded, total int64)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code     int
	Status   string
	Body     string
	Response *Response
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("request failed: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("request failed: %s", e.Status)
}

// StatusText returns the reason phrase of the HTTP status, e.g. "Unauthorized".
func (e *StatusError) StatusText() string {
	if text := http.StatusText(e.Code); text != "" {
		return text
	}
	return e.Status
}

// IsUnauthorized reports whether err is an HTTP 401 from a node.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// JoinURL joins a node base URL with a relative API route.
func JoinURL(base, path string, query url.Values) string {
	u := path
	if base != "" {
		u = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + query.Encode()
}

// Do performs the request and reads the whole body.
func (c *Client) Do(ctx context.Context, r Request, progress ProgressFunc) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	if d := c.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, JoinURL(r.BaseURL, r.Path, r.Query), body)
	if err != nil {
		return nil, err
	}
	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var reader io.Reader = res.Body
	if progress != nil && res.ContentLength > 0 {
		reader = &progressReader{r: res.Body, total: res.ContentLength, fn: progress}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		StatusCode: res.StatusCode,
		Status:     res.Status,
		Header:     res.Header,
		Body:       data,
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return resp, &StatusError{
			Code:     res.StatusCode,
			Status:   res.Status,
			Body:     strings.TrimSpace(string(data)),
			Response: resp,
		}
	}
	return resp, nil
}

type progressReader struct {
	r      io.Reader
	loaded int64
	total  int64
	fn     ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.fn(p.loaded, p.total)
	}
	return n, err
}
