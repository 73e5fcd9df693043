// Package engine is a client for the remote analytics engine's REST API.
//
// The engine owns all data and models. This package only moves parameters
// and results: it imports files into remote frames, evaluates Rapids
// expressions, starts jobs (parse, interaction, model builds), polls them to
// completion and reads back frame summaries and model metrics.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// DefaultPollInterval is how often WaitJob polls a running job.
const DefaultPollInterval = 500 * time.Millisecond

// Client talks to one engine cluster. It is safe for concurrent use.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	pollInterval time.Duration
	logger       log.Logger

	mu        sync.RWMutex
	sessionID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithPollInterval sets the job polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the engine at rawURL, e.g. "http://localhost:54321".
func New(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse engine url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidationError("engine.url", "scheme must be http or https", rawURL)
	}

	c := &Client{
		baseURL:      u,
		http:         &http.Client{Timeout: 5 * time.Minute},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("engine")
	}
	c.logger = c.logger.With(log.EngineURLKey, u.String())
	return c, nil
}

// URL returns the engine base URL.
func (c *Client) URL() string {
	return c.baseURL.String()
}

// SessionID returns the current session id, empty before Connect.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// errorBody is the engine's error schema. Model builders answer parameter
// errors with their own schema, carrying ERRR entries in Messages.
type errorBody struct {
	Msg          string           `json:"msg"`
	ExceptionMsg string           `json:"exception_msg"`
	DevMsg       string           `json:"dev_msg"`
	Messages     []builderMessage `json:"messages"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + path
	u.RawPath = ""
	if strings.Contains(path, "%") {
		u.RawPath = c.baseURL.Path + path
		if p, err := url.PathUnescape(u.RawPath); err == nil {
			u.Path = p
		}
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// raw performs one request and returns the body of a 2xx response.
// Non-2xx responses are turned into RemoteError.
func (c *Client) raw(ctx context.Context, method, path string, query, form url.Values) (io.ReadCloser, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, errors.Wrapf(err, "build request %s %s", method, path)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	c.logger.Debug("engine call",
		log.EndpointKey, method+" "+path,
		"status", resp.StatusCode,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, errors.NewRemoteError(method, path, resp.StatusCode, remoteMessage(data))
	}
	return resp.Body, nil
}

func remoteMessage(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		switch {
		case eb.ExceptionMsg != "":
			return eb.ExceptionMsg
		case eb.Msg != "":
			return eb.Msg
		case eb.DevMsg != "":
			return eb.DevMsg
		}
		if msg := joinErrors(eb.Messages); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(bytes.TrimSpace(data)))
}

// call performs a request and decodes the JSON response into out (if non-nil).
func (c *Client) call(ctx context.Context, method, path string, query, form url.Values, out interface{}) error {
	body, err := c.raw(ctx, method, path, query, form)
	if err != nil {
		return err
	}
	defer body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// keyRef is the engine's {"name": ...} key schema.
type keyRef struct {
	Name string `json:"name"`
}

// ListParam encodes a list parameter the way the engine's form parser
// expects: a JSON array of quoted strings.
func ListParam(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		b, _ := json.Marshal(s)
		quoted[i] = string(b)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func escapeKey(key string) string {
	return url.PathEscape(key)
}

func boolParam(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
